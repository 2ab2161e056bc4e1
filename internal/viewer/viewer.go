// Package viewer hosts one reading session: the material on screen, its
// rendering, the current page and zoom, the highlight popover, and the
// reconcile passes that keep highlights painted.
//
// A Viewer is not safe for concurrent use. Its methods must be called from
// the goroutine running its Loop, usually via Loop.Post or Loop.Call.
// Network work runs on separate goroutines and posts its results back.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docmark/internal/annotation"
	"github.com/dgallion1/docmark/internal/layout"
	"github.com/dgallion1/docmark/internal/popover"
	"github.com/dgallion1/docmark/internal/reconcile"
	"github.com/dgallion1/docmark/internal/render"
	"github.com/dgallion1/docmark/internal/selection"
	"github.com/dgallion1/docmark/internal/stats"
)

var (
	// ErrNoContent is returned when an operation needs a loaded rendering.
	ErrNoContent = errors.New("no content loaded")

	// ErrNotPaginated is returned by page operations on flowing documents.
	ErrNotPaginated = errors.New("rendering is not paginated")
)

// State is the session's load state.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
	StateUnsupported
	StateError
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUnsupported:
		return "unsupported"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Source provides material content and per-material highlight backends.
// *annotation.Client satisfies it.
type Source interface {
	FetchContent(ctx context.Context, notebookID, materialID string) ([]byte, error)
	Highlights(notebookID, materialID string) annotation.Backend
}

type Options struct {
	// SettleDelay is how long reconciliation waits after the last trigger.
	SettleDelay time.Duration

	Render     render.Options
	CrossBlock bool

	// Stats, when set, records every reconcile pass.
	Stats *stats.Render
	Log   *slog.Logger
}

type Viewer struct {
	loop *Loop
	src  Source
	opts Options
	log  *slog.Logger
	key  string

	state       State
	err         error
	material    annotation.Material
	rendering   *render.Rendering
	store       *annotation.Store
	gen         uint64
	cancelFetch context.CancelFunc

	page   int
	zoom   float64
	origin layout.Point

	pop    popover.State
	popGen uint64

	result       reconcile.Result
	overlays     []reconcile.Overlay
	onReconciled func(reconcile.Result)
}

func New(loop *Loop, src Source, opts Options) *Viewer {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	v := &Viewer{loop: loop, src: src, opts: opts, log: log, zoom: 1}
	v.key = fmt.Sprintf("reconcile:%p", v)
	return v
}

// OnReconciled registers fn to run on the loop after every reconcile pass.
func (v *Viewer) OnReconciled(fn func(reconcile.Result)) {
	v.onReconciled = fn
}

// Open switches the session to m. Any content fetch still running for the
// previous material is cancelled and its result discarded. The popover is
// reset. Content and highlights load in the background; reconciliation is
// scheduled once both are in.
func (v *Viewer) Open(ctx context.Context, m annotation.Material) {
	v.stopFetch()
	v.gen++
	gen := v.gen

	v.material = m
	v.rendering = nil
	v.err = nil
	v.result = reconcile.Result{}
	v.overlays = nil
	v.page, v.zoom, v.origin = 0, 1, layout.Point{}
	v.resetPopover()

	store := annotation.NewStore(v.src.Highlights(m.NotebookID, m.ID))
	store.OnChange(func() {
		v.loop.Post(func() {
			if v.store == store {
				v.scheduleReconcile()
			}
		})
	})
	v.store = store

	if _, err := render.FormatOf(m.Filename); err != nil {
		v.state = StateUnsupported
		v.err = err
		return
	}
	v.state = StateLoading

	fetchCtx, cancel := context.WithCancel(ctx)
	v.cancelFetch = cancel
	log := v.log.With("material", m.ID)
	go func() {
		res := v.load(fetchCtx, m, store)
		v.loop.Post(func() { v.loaded(gen, log, res) })
	}()
}

type loadResult struct {
	rendering *render.Rendering
	err       error

	// listErr leaves the document readable without highlights.
	listErr error
}

func (v *Viewer) load(ctx context.Context, m annotation.Material, store *annotation.Store) loadResult {
	data, err := v.src.FetchContent(ctx, m.NotebookID, m.ID)
	if err != nil {
		return loadResult{err: fmt.Errorf("fetch content: %w", err)}
	}
	r, err := render.Convert(data, m.Filename, v.opts.Render)
	if err != nil {
		return loadResult{err: err}
	}
	if _, err := store.List(ctx); err != nil {
		return loadResult{rendering: r, listErr: err}
	}
	return loadResult{rendering: r}
}

func (v *Viewer) loaded(gen uint64, log *slog.Logger, res loadResult) {
	if gen != v.gen {
		log.Debug("discarding stale load")
		return
	}
	v.stopFetch()

	if err := res.err; err != nil {
		v.err = err
		if errors.Is(err, render.ErrUnsupportedFormat) {
			v.state = StateUnsupported
			log.Warn("unsupported material", "error", err)
			return
		}
		v.state = StateError
		log.Error("load material", "error", err)
		return
	}

	r := res.rendering
	v.rendering = r
	v.state = StateReady
	if r.Paginated() && r.PageCount() > 0 {
		v.page = 1
	}
	if res.listErr != nil {
		v.err = res.listErr
		log.Warn("highlights unavailable", "error", res.listErr)
	}
	log.Info("material loaded", "format", r.Format, "pages", r.PageCount())
	v.scheduleReconcile()
}

// Close cancels any running content fetch.
func (v *Viewer) Close() {
	v.stopFetch()
}

func (v *Viewer) stopFetch() {
	if v.cancelFetch != nil {
		v.cancelFetch()
		v.cancelFetch = nil
	}
}

// SetPage navigates to page n (1-based) of a paginated rendering. The
// popover is dismissed.
func (v *Viewer) SetPage(n int) error {
	if v.rendering == nil {
		return ErrNoContent
	}
	if !v.rendering.Paginated() {
		return ErrNotPaginated
	}
	if _, ok := v.rendering.Page(n); !ok {
		return fmt.Errorf("page %d out of range 1..%d", n, v.rendering.PageCount())
	}
	if n == v.page {
		return nil
	}
	v.page = n
	v.overlays = nil
	v.pop = v.pop.Dismiss(popover.Navigation)
	v.popGen++
	v.scheduleReconcile()
	return nil
}

// SetZoom sets the viewer scale. Overlays are recomputed after the settle
// delay.
func (v *Viewer) SetZoom(scale float64) error {
	if scale <= 0 {
		return fmt.Errorf("invalid zoom %v", scale)
	}
	if scale != v.zoom {
		v.zoom = scale
		v.scheduleReconcile()
	}
	return nil
}

// SetPageOrigin records where the page container sits in client
// coordinates.
func (v *Viewer) SetPageOrigin(p layout.Point) {
	if p != v.origin {
		v.origin = p
		v.scheduleReconcile()
	}
}

// TextLayerRendered reports that page's text layer finished rendering.
func (v *Viewer) TextLayerRendered(page int) {
	if page == v.page {
		v.scheduleReconcile()
	}
}

// ContentChanged reports that the rendered content was replaced or
// re-laid out.
func (v *Viewer) ContentChanged() {
	v.scheduleReconcile()
}

func (v *Viewer) scheduleReconcile() {
	v.loop.Debounce(v.key, v.opts.SettleDelay, v.reconcile)
}

// Reconcile runs a reconcile pass now. It is a no-op before content loads.
func (v *Viewer) Reconcile() {
	v.reconcile()
}

func (v *Viewer) reconcile() {
	if v.rendering == nil || v.store == nil {
		return
	}
	start := time.Now()
	hs := v.store.Highlights()

	var res reconcile.Result
	if v.rendering.Paginated() {
		page, ok := v.rendering.Page(v.page)
		if !ok {
			return
		}
		m := render.NewLayerMeasurer(page, v.zoom, v.origin)
		v.overlays, res = reconcile.Project(page.Layer, v.page, v.origin, m, hs)
	} else {
		res = reconcile.ApplyInPlace(v.rendering.Root, hs, reconcile.InPlaceOptions{CrossBlock: v.opts.CrossBlock})
	}
	v.result = res

	if v.opts.Stats != nil {
		v.opts.Stats.RecordPass(string(v.rendering.Format), time.Since(start), len(res.Applied), len(res.Skipped))
	}
	for _, s := range res.Skipped {
		v.log.Debug("highlight not shown", "material", v.material.ID, "highlight", s.HighlightID, "reason", s.Reason)
	}
	if v.onReconciled != nil {
		v.onReconciled(res)
	}
}

// EndSelection captures sel and opens the popover for it.
func (v *Viewer) EndSelection(sel selection.Selection) (selection.TextSelection, error) {
	if v.rendering == nil {
		return selection.TextSelection{}, ErrNoContent
	}
	var opts selection.Options
	if v.rendering.Paginated() {
		page, ok := v.rendering.Page(v.page)
		if !ok {
			return selection.TextSelection{}, ErrNoContent
		}
		opts.Page = v.page
		opts.Measurer = render.NewLayerMeasurer(page, v.zoom, v.origin)
	}
	ts, err := selection.Capture(v.rendering.Root, sel, opts)
	if err != nil {
		return selection.TextSelection{}, err
	}
	v.pop = popover.Open(ts)
	v.popGen++
	return ts, nil
}

// ChooseColor creates a highlight for the pending selection. done runs on
// the loop with the outcome. If the user dismissed or replaced the popover
// meanwhile, the highlight is still kept but the popover is left alone.
func (v *Viewer) ChooseColor(ctx context.Context, color annotation.Color, done func(annotation.Highlight, error)) {
	if done == nil {
		done = func(annotation.Highlight, error) {}
	}
	if _, err := v.pop.Request(color); err != nil {
		done(annotation.Highlight{}, err)
		return
	}
	pop, gen, store := v.pop, v.popGen, v.store
	go func() {
		next, h, err := pop.Choose(ctx, color, store)
		v.loop.Post(func() {
			if gen == v.popGen {
				v.pop = next
				if err == nil {
					v.popGen++
				}
			}
			if err != nil {
				v.log.Warn("create highlight", "material", v.material.ID, "error", err)
			}
			done(h, err)
		})
	}()
}

// Dismiss closes the popover. The host clears its live selection.
func (v *Viewer) Dismiss(reason popover.DismissReason) {
	v.pop = v.pop.Dismiss(reason)
	v.popGen++
}

func (v *Viewer) resetPopover() {
	v.pop = v.pop.Dismiss(popover.Navigation)
	v.popGen++
}

// EditNote sets a highlight's note; a nil note clears it.
func (v *Viewer) EditNote(ctx context.Context, id string, note *string, done func(annotation.Highlight, error)) {
	u := annotation.Update{ClearNote: true}
	if note != nil {
		u = annotation.SetNote(*note)
	}
	v.update(ctx, id, u, done)
}

// Recolor changes a highlight's color.
func (v *Viewer) Recolor(ctx context.Context, id string, c annotation.Color, done func(annotation.Highlight, error)) {
	if !c.Valid() {
		if done != nil {
			done(annotation.Highlight{}, fmt.Errorf("%w: %q", annotation.ErrInvalidColor, c))
		}
		return
	}
	v.update(ctx, id, annotation.Recolor(c), done)
}

func (v *Viewer) update(ctx context.Context, id string, u annotation.Update, done func(annotation.Highlight, error)) {
	store := v.store
	if store == nil {
		if done != nil {
			done(annotation.Highlight{}, ErrNoContent)
		}
		return
	}
	go func() {
		h, err := store.Update(ctx, id, u)
		v.loop.Post(func() {
			if err != nil {
				v.log.Warn("update highlight", "highlight", id, "error", err)
			}
			if done != nil {
				done(h, err)
			}
		})
	}()
}

// Remove deletes a highlight.
func (v *Viewer) Remove(ctx context.Context, id string, done func(error)) {
	store := v.store
	if store == nil {
		if done != nil {
			done(ErrNoContent)
		}
		return
	}
	go func() {
		err := store.Delete(ctx, id)
		v.loop.Post(func() {
			if err != nil {
				v.log.Warn("delete highlight", "highlight", id, "error", err)
			}
			if done != nil {
				done(err)
			}
		})
	}()
}

func (v *Viewer) State() State { return v.state }
func (v *Viewer) Err() error { return v.err }
func (v *Viewer) Material() annotation.Material { return v.material }
func (v *Viewer) Rendering() *render.Rendering { return v.rendering }
func (v *Viewer) Page() int { return v.page }
func (v *Viewer) Zoom() float64 { return v.zoom }
func (v *Viewer) Popover() popover.State { return v.pop }
func (v *Viewer) Result() reconcile.Result { return v.result }
func (v *Viewer) Overlays() []reconcile.Overlay { return v.overlays }

// Highlights returns the material's highlights in reading order.
func (v *Viewer) Highlights() []annotation.Highlight {
	if v.store == nil {
		return nil
	}
	hs := v.store.Highlights()
	annotation.SortForDisplay(hs)
	return hs
}

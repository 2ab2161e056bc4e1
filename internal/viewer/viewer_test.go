package viewer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/dgallion1/docmark/internal/annotation"
	"github.com/dgallion1/docmark/internal/popover"
	"github.com/dgallion1/docmark/internal/reconcile"
	"github.com/dgallion1/docmark/internal/render"
	"github.com/dgallion1/docmark/internal/selection"
	"github.com/dgallion1/docmark/internal/stats"
	"github.com/dgallion1/docmark/internal/textmap"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu         sync.Mutex
	hs         map[string]annotation.Highlight
	next       int
	createErr error
	listErr   error
}

func newFakeBackend(hs ...annotation.Highlight) *fakeBackend {
	b := &fakeBackend{hs: map[string]annotation.Highlight{}}
	for _, h := range hs {
		b.hs[h.ID] = h
	}
	return b
}

func (b *fakeBackend) List(ctx context.Context) ([]annotation.Highlight, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	out := make([]annotation.Highlight, 0, len(b.hs))
	for _, h := range b.hs {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *fakeBackend) Create(ctx context.Context, req annotation.CreateRequest) (annotation.Highlight, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return annotation.Highlight{}, b.createErr
	}
	b.next++
	h := annotation.Highlight{
		ID:           fmt.Sprintf("new%d", b.next),
		Position:     req.Position,
		SelectedText: req.SelectedText,
		Color:        req.Color,
		Note:         req.Note,
		CreatedAt:    base.Add(time.Duration(b.next) * time.Minute),
	}
	h.UpdatedAt = h.CreatedAt
	b.hs[h.ID] = h
	return h, nil
}

func (b *fakeBackend) Update(ctx context.Context, id string, u annotation.Update) (annotation.Highlight, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hs[id]
	if !ok {
		return annotation.Highlight{}, &annotation.StatusError{Op: "update highlight", Code: 404}
	}
	u.Apply(&h, base.Add(time.Hour))
	b.hs[id] = h
	return h, nil
}

func (b *fakeBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.hs, id)
	return nil
}

type fakeSource struct {
	content  map[string][]byte
	backends map[string]*fakeBackend
	block    map[string]bool
	fetchErr error

	mu       sync.Mutex
	fetched  []string
	canceled []string
}

func (s *fakeSource) FetchContent(ctx context.Context, notebookID, materialID string) ([]byte, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, materialID)
	s.mu.Unlock()
	if s.block[materialID] {
		<-ctx.Done()
		s.mu.Lock()
		s.canceled = append(s.canceled, materialID)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.content[materialID], nil
}

func (s *fakeSource) Highlights(notebookID, materialID string) annotation.Backend {
	if b, ok := s.backends[materialID]; ok {
		return b
	}
	return newFakeBackend()
}

func (s *fakeSource) fetchedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fetched...)
}

func (s *fakeSource) canceledIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.canceled...)
}

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

// on runs fn on the loop and waits for it.
func on(t *testing.T, l *Loop, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Call(ctx, fn))
}

func eventually(t *testing.T, l *Loop, cond func(v *Viewer) bool, v *Viewer, msg string) {
	t.Helper()
	require.Eventually(t, func() bool {
		var ok bool
		on(t, l, func() { ok = cond(v) })
		return ok
	}, 2*time.Second, 5*time.Millisecond, msg)
}

func rendered(t *testing.T, l *Loop, v *Viewer) string {
	t.Helper()
	var out string
	on(t, l, func() {
		s, err := render.RenderHTML(v.Rendering().Root)
		require.NoError(t, err)
		out = s
	})
	return out
}

func firstText(n *html.Node) *html.Node {
	if n.Type == html.TextNode && n.Data != "" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := firstText(c); t != nil {
			return t
		}
	}
	return nil
}

func foxMaterial() annotation.Material {
	return annotation.Material{ID: "fox", NotebookID: "nb", Filename: "fox.txt", Format: "plain"}
}

func TestViewer_OpenAppliesStoredHighlights(t *testing.T) {
	l := startLoop(t)
	backend := newFakeBackend(annotation.Highlight{
		ID: "h1", Position: annotation.OffsetPosition(4, 9), SelectedText: "quick",
		Color: annotation.Yellow, CreatedAt: base,
	})
	src := &fakeSource{
		content:  map[string][]byte{"fox": []byte("The quick brown fox")},
		backends: map[string]*fakeBackend{"fox": backend},
	}
	rs := stats.NewRender(time.Hour)
	v := New(l, src, Options{Stats: rs})

	on(t, l, func() {
		v.Open(context.Background(), foxMaterial())
		assert.Equal(t, StateLoading, v.State())
	})
	eventually(t, l, func(v *Viewer) bool { return len(v.Result().Applied) == 1 }, v, "highlight applied")

	assert.Contains(t, rendered(t, l, v),
		`The <mark data-highlight-id="h1" class="highlight highlight-yellow">quick</mark> brown fox`)
	on(t, l, func() {
		assert.Equal(t, StateReady, v.State())
		assert.NoError(t, v.Err())
		assert.Len(t, v.Highlights(), 1)
	})
	assert.GreaterOrEqual(t, rs.Snapshot().Applied, int64(1))
}

func TestViewer_SelectChooseColorCreatesMarker(t *testing.T) {
	l := startLoop(t)
	src := &fakeSource{content: map[string][]byte{"fox": []byte("The quick brown fox")}}
	v := New(l, src, Options{})

	passes := make(chan struct{}, 16)
	on(t, l, func() {
		v.OnReconciled(func(reconcile.Result) {
			select {
			case passes <- struct{}{}:
			default:
			}
		})
		v.Open(context.Background(), foxMaterial())
	})
	select {
	case <-passes:
	case <-time.After(2 * time.Second):
		t.Fatal("no reconcile pass after load")
	}

	on(t, l, func() {
		txt := firstText(v.Rendering().Root)
		ts, err := v.EndSelection(selection.Selection{
			Anchor: textmap.Boundary{Node: txt, Offset: 15},
			Focus:  textmap.Boundary{Node: txt, Offset: 9},
		})
		require.NoError(t, err)
		assert.Equal(t, "brown", ts.Text)
		assert.Equal(t, popover.Pending, v.Popover().Phase)
	})

	created := make(chan annotation.Highlight, 1)
	on(t, l, func() {
		v.ChooseColor(context.Background(), annotation.Green, func(h annotation.Highlight, err error) {
			assert.NoError(t, err)
			created <- h
		})
	})
	var h annotation.Highlight
	select {
	case h = <-created:
	case <-time.After(2 * time.Second):
		t.Fatal("highlight not created")
	}
	assert.Equal(t, annotation.Green, h.Color)

	eventually(t, l, func(v *Viewer) bool { return len(v.Result().Applied) == 1 }, v, "new highlight reconciled")
	assert.Contains(t, rendered(t, l, v),
		`<mark data-highlight-id="new1" class="highlight highlight-green">brown</mark>`)
	on(t, l, func() { assert.Equal(t, popover.Idle, v.Popover().Phase) })
}

func TestViewer_CreateFailureKeepsPopoverPending(t *testing.T) {
	l := startLoop(t)
	backend := newFakeBackend()
	backend.createErr = errors.New("backend down")
	src := &fakeSource{
		content:  map[string][]byte{"fox": []byte("The quick brown fox")},
		backends: map[string]*fakeBackend{"fox": backend},
	}
	v := New(l, src, Options{})
	on(t, l, func() { v.Open(context.Background(), foxMaterial()) })
	eventually(t, l, func(v *Viewer) bool { return v.State() == StateReady }, v, "ready")

	on(t, l, func() {
		txt := firstText(v.Rendering().Root)
		_, err := v.EndSelection(selection.Selection{
			Anchor: textmap.Boundary{Node: txt, Offset: 4},
			Focus:  textmap.Boundary{Node: txt, Offset: 9},
		})
		require.NoError(t, err)
	})

	errc := make(chan error, 1)
	on(t, l, func() {
		v.ChooseColor(context.Background(), annotation.Yellow, func(_ annotation.Highlight, err error) { errc <- err })
	})
	select {
	case err := <-errc:
		assert.ErrorContains(t, err, "backend down")
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}
	on(t, l, func() {
		assert.Equal(t, popover.Pending, v.Popover().Phase)
		assert.Empty(t, v.Highlights())
	})

	on(t, l, func() {
		v.Dismiss(popover.Escape)
		assert.Equal(t, popover.Idle, v.Popover().Phase)
	})
}

func TestViewer_InvalidColorRejectedWithoutBackendCall(t *testing.T) {
	l := startLoop(t)
	src := &fakeSource{content: map[string][]byte{"fox": []byte("The quick brown fox")}}
	v := New(l, src, Options{})
	on(t, l, func() { v.Open(context.Background(), foxMaterial()) })
	eventually(t, l, func(v *Viewer) bool { return v.State() == StateReady }, v, "ready")

	on(t, l, func() {
		var got error
		v.ChooseColor(context.Background(), annotation.Yellow, func(_ annotation.Highlight, err error) { got = err })
		assert.ErrorIs(t, got, popover.ErrNotPending)

		txt := firstText(v.Rendering().Root)
		_, err := v.EndSelection(selection.Selection{
			Anchor: textmap.Boundary{Node: txt, Offset: 0},
			Focus:  textmap.Boundary{Node: txt, Offset: 3},
		})
		require.NoError(t, err)
		v.ChooseColor(context.Background(), "purple", func(_ annotation.Highlight, err error) { got = err })
		assert.ErrorIs(t, got, annotation.ErrInvalidColor)
		assert.Equal(t, popover.Pending, v.Popover().Phase)
	})
}

func TestViewer_UnsupportedFormat(t *testing.T) {
	l := startLoop(t)
	src := &fakeSource{}
	v := New(l, src, Options{})
	on(t, l, func() {
		v.Open(context.Background(), annotation.Material{ID: "bin", NotebookID: "nb", Filename: "tool.exe"})
		assert.Equal(t, StateUnsupported, v.State())
		assert.ErrorIs(t, v.Err(), render.ErrUnsupportedFormat)
		v.Reconcile()
		assert.Nil(t, v.Rendering())
	})
	assert.Empty(t, src.fetchedIDs())
}

func TestViewer_FetchErrorState(t *testing.T) {
	l := startLoop(t)
	src := &fakeSource{fetchErr: errors.New("connection refused")}
	v := New(l, src, Options{})
	on(t, l, func() { v.Open(context.Background(), foxMaterial()) })
	eventually(t, l, func(v *Viewer) bool { return v.State() == StateError }, v, "error state")
	on(t, l, func() { assert.ErrorContains(t, v.Err(), "connection refused") })
}

func TestViewer_ListFailureStillShowsDocument(t *testing.T) {
	l := startLoop(t)
	backend := newFakeBackend()
	backend.listErr = errors.New("timeout")
	src := &fakeSource{
		content:  map[string][]byte{"fox": []byte("The quick brown fox")},
		backends: map[string]*fakeBackend{"fox": backend},
	}
	v := New(l, src, Options{})
	on(t, l, func() { v.Open(context.Background(), foxMaterial()) })
	eventually(t, l, func(v *Viewer) bool { return v.State() == StateReady }, v, "ready")
	on(t, l, func() {
		assert.ErrorContains(t, v.Err(), "timeout")
		assert.Equal(t, "The quick brown fox", v.Rendering().Text())
	})
}

func TestViewer_OpenCancelsPreviousFetch(t *testing.T) {
	l := startLoop(t)
	src := &fakeSource{
		content: map[string][]byte{"b": []byte("second document")},
		block:   map[string]bool{"a": true},
	}
	v := New(l, src, Options{})

	on(t, l, func() {
		v.Open(context.Background(), annotation.Material{ID: "a", NotebookID: "nb", Filename: "a.txt"})
	})
	require.Eventually(t, func() bool { return len(src.fetchedIDs()) == 1 }, time.Second, 5*time.Millisecond)

	on(t, l, func() {
		v.Open(context.Background(), annotation.Material{ID: "b", NotebookID: "nb", Filename: "b.md"})
	})
	eventually(t, l, func(v *Viewer) bool { return v.State() == StateReady }, v, "second material ready")
	require.Eventually(t, func() bool { return len(src.canceledIDs()) == 1 }, time.Second, 5*time.Millisecond)

	on(t, l, func() {
		assert.Equal(t, "b", v.Material().ID)
		assert.Equal(t, render.FormatMarkdown, v.Rendering().Format)
		assert.NoError(t, v.Err())
	})
	assert.Equal(t, []string{"a"}, src.canceledIDs())
}

func TestViewer_RemoveAndRecolor(t *testing.T) {
	l := startLoop(t)
	backend := newFakeBackend(annotation.Highlight{
		ID: "h1", Position: annotation.OffsetPosition(4, 9), SelectedText: "quick",
		Color: annotation.Yellow, CreatedAt: base,
	})
	src := &fakeSource{
		content:  map[string][]byte{"fox": []byte("The quick brown fox")},
		backends: map[string]*fakeBackend{"fox": backend},
	}
	v := New(l, src, Options{})
	on(t, l, func() { v.Open(context.Background(), foxMaterial()) })
	eventually(t, l, func(v *Viewer) bool { return len(v.Result().Applied) == 1 }, v, "applied")

	done := make(chan error, 1)
	on(t, l, func() {
		v.Recolor(context.Background(), "h1", annotation.Pink, func(_ annotation.Highlight, err error) { done <- err })
	})
	require.NoError(t, <-done)
	require.Eventually(t, func() bool {
		return strings.Contains(rendered(t, l, v), "highlight-pink")
	}, 2*time.Second, 5*time.Millisecond)

	note := "fast"
	on(t, l, func() {
		v.EditNote(context.Background(), "h1", &note, func(_ annotation.Highlight, err error) { done <- err })
	})
	require.NoError(t, <-done)
	on(t, l, func() {
		hs := v.Highlights()
		require.Len(t, hs, 1)
		require.NotNil(t, hs[0].Note)
		assert.Equal(t, "fast", *hs[0].Note)
	})

	on(t, l, func() { v.Remove(context.Background(), "h1", func(err error) { done <- err }) })
	require.NoError(t, <-done)
	require.Eventually(t, func() bool {
		return !strings.Contains(rendered(t, l, v), "<mark")
	}, 2*time.Second, 5*time.Millisecond)
	on(t, l, func() { assert.Empty(t, v.Highlights()) })
}

func TestViewer_PageOperationsOnFlowingDocument(t *testing.T) {
	l := startLoop(t)
	src := &fakeSource{content: map[string][]byte{"fox": []byte("The quick brown fox")}}
	v := New(l, src, Options{})
	on(t, l, func() {
		assert.ErrorIs(t, v.SetPage(1), ErrNoContent)
		_, err := v.EndSelection(selection.Selection{})
		assert.ErrorIs(t, err, ErrNoContent)
		v.Open(context.Background(), foxMaterial())
	})
	eventually(t, l, func(v *Viewer) bool { return v.State() == StateReady }, v, "ready")
	on(t, l, func() {
		assert.ErrorIs(t, v.SetPage(2), ErrNotPaginated)
		assert.Error(t, v.SetZoom(0))
		assert.NoError(t, v.SetZoom(1.5))
		assert.Equal(t, 1.5, v.Zoom())
		assert.Equal(t, 0, v.Page())
	})
}

// twoPagePDF builds a PDF with one line of 12pt Courier per page, set at
// (72, 700). Every glyph advances 7.2pt.
func twoPagePDF(lines ...string) []byte {
	kids := make([]string, len(lines))
	for i := range lines {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(lines)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Courier /Encoding /WinAnsiEncoding" +
			" /FirstChar 32 /LastChar 126 /Widths [" + strings.TrimSpace(strings.Repeat("600 ", 95)) + "] >>",
	}
	for i, line := range lines {
		content := fmt.Sprintf("BT /F1 12 Tf 72 700 Td (%s) Tj ET", line)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792]"+
				" /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func pdfMaterial() annotation.Material {
	return annotation.Material{ID: "paper", NotebookID: "nb", Filename: "paper.pdf", Format: "pdf"}
}

// pageText returns the first text node of page n's layer.
func pageText(t *testing.T, v *Viewer, n int) *html.Node {
	t.Helper()
	p, ok := v.Rendering().Page(n)
	require.True(t, ok, "page %d", n)
	txt := firstText(p.Layer)
	require.NotNil(t, txt)
	return txt
}

func TestViewer_PaginatedOverlaysFollowPageAndZoom(t *testing.T) {
	l := startLoop(t)
	backend := newFakeBackend(annotation.Highlight{
		ID: "h2", Position: annotation.PagePosition(2, 0, 5), SelectedText: "Gamma",
		Color: annotation.Blue, CreatedAt: base,
	})
	src := &fakeSource{
		content:  map[string][]byte{"paper": twoPagePDF("Alpha beta", "Gamma delta")},
		backends: map[string]*fakeBackend{"paper": backend},
	}
	v := New(l, src, Options{SettleDelay: 5 * time.Millisecond})

	passes := make(chan reconcile.Result, 16)
	on(t, l, func() {
		v.OnReconciled(func(res reconcile.Result) {
			select {
			case passes <- res:
			default:
			}
		})
		v.Open(context.Background(), pdfMaterial())
	})
	select {
	case <-passes:
	case <-time.After(2 * time.Second):
		t.Fatal("no reconcile pass after load")
	}

	on(t, l, func() {
		require.Equal(t, StateReady, v.State())
		require.NoError(t, v.Err())
		assert.Equal(t, 2, v.Rendering().PageCount())
		assert.Equal(t, 1, v.Page())
		assert.Equal(t, "Alpha beta", textmap.Extract(pageText(t, v, 1).Parent).Text())
		assert.Empty(t, v.Overlays(), "highlight lives on page 2")
		assert.Error(t, v.SetPage(3))
		assert.NoError(t, v.SetPage(2))
		assert.Equal(t, 2, v.Page())
	})
	eventually(t, l, func(v *Viewer) bool { return len(v.Overlays()) == 1 }, v, "overlay on page 2")

	on(t, l, func() {
		ov := v.Overlays()[0]
		assert.Equal(t, "h2", ov.HighlightID)
		assert.Equal(t, annotation.Blue, ov.Color)
		require.Len(t, ov.Rects, 1)
		r := ov.Rects[0]
		assert.InDelta(t, 72, r.X, 1e-6)
		assert.InDelta(t, 80, r.Y, 1e-6)
		assert.InDelta(t, 36, r.Width, 1e-6)
		assert.InDelta(t, 12, r.Height, 1e-6)

		require.NoError(t, v.SetZoom(2))
	})
	eventually(t, l, func(v *Viewer) bool {
		ovs := v.Overlays()
		return len(ovs) == 1 && len(ovs[0].Rects) == 1 && ovs[0].Rects[0].Width > 70
	}, v, "overlay rescaled")
	on(t, l, func() {
		r := v.Overlays()[0].Rects[0]
		assert.InDelta(t, 144, r.X, 1e-6)
		assert.InDelta(t, 160, r.Y, 1e-6)
		assert.InDelta(t, 72, r.Width, 1e-6)
		assert.InDelta(t, 24, r.Height, 1e-6)

		require.NoError(t, v.SetPage(1))
		assert.Empty(t, v.Overlays())
	})
}

func TestViewer_TextLayerRenderedTriggersPassForCurrentPage(t *testing.T) {
	l := startLoop(t)
	src := &fakeSource{content: map[string][]byte{"paper": twoPagePDF("Alpha beta", "Gamma delta")}}
	v := New(l, src, Options{SettleDelay: 5 * time.Millisecond})

	passes := make(chan struct{}, 16)
	on(t, l, func() {
		v.OnReconciled(func(reconcile.Result) {
			select {
			case passes <- struct{}{}:
			default:
			}
		})
		v.Open(context.Background(), pdfMaterial())
	})
	eventually(t, l, func(v *Viewer) bool { return v.State() == StateReady }, v, "ready")
	drain := func() {
		time.Sleep(30 * time.Millisecond)
		for len(passes) > 0 {
			<-passes
		}
	}
	drain()

	on(t, l, func() { v.TextLayerRendered(2) })
	select {
	case <-passes:
		t.Fatal("pass for a page that is not shown")
	case <-time.After(50 * time.Millisecond):
	}

	on(t, l, func() { v.TextLayerRendered(1) })
	select {
	case <-passes:
	case <-time.After(2 * time.Second):
		t.Fatal("no pass after text layer rendered")
	}
}

func TestViewer_PaginatedSelectionIsBoundToCurrentPage(t *testing.T) {
	l := startLoop(t)
	src := &fakeSource{content: map[string][]byte{"paper": twoPagePDF("Alpha beta", "Gamma delta")}}
	v := New(l, src, Options{})
	on(t, l, func() { v.Open(context.Background(), pdfMaterial()) })
	eventually(t, l, func(v *Viewer) bool { return v.State() == StateReady }, v, "ready")

	on(t, l, func() {
		txt := pageText(t, v, 1)
		ts, err := v.EndSelection(selection.Selection{
			Anchor: textmap.Boundary{Node: txt, Offset: 6},
			Focus:  textmap.Boundary{Node: txt, Offset: 10},
		})
		require.NoError(t, err)
		assert.Equal(t, "beta", ts.Text)
		assert.Equal(t, 1, ts.Page)
		assert.Equal(t, 6, ts.StartOffset)
		assert.False(t, ts.Anchor.Empty(), "anchor measured from glyph boxes")
		assert.Equal(t, popover.Pending, v.Popover().Phase)

		require.NoError(t, v.SetPage(2))
		assert.Equal(t, popover.Idle, v.Popover().Phase, "navigation dismisses the popover")

		_, err = v.EndSelection(selection.Selection{
			Anchor: textmap.Boundary{Node: txt, Offset: 0},
			Focus:  textmap.Boundary{Node: txt, Offset: 5},
		})
		assert.ErrorIs(t, err, selection.ErrPageMismatch)
		assert.Equal(t, popover.Idle, v.Popover().Phase)
	})
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l := startLoop(t)
	var got []int
	for i := range 50 {
		l.Post(func() { got = append(got, i) })
	}
	on(t, l, func() {})
	require.Len(t, got, 50)
	for i, n := range got {
		assert.Equal(t, i, n)
	}
}

func TestLoop_DebounceCoalesces(t *testing.T) {
	l := startLoop(t)
	var runs int
	for range 5 {
		l.Debounce("k", 20*time.Millisecond, func() { runs++ })
	}
	require.Eventually(t, func() bool {
		var n int
		on(t, l, func() { n = runs })
		return n == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(40 * time.Millisecond)
	on(t, l, func() { assert.Equal(t, 1, runs) })
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unsupported", StateUnsupported.String())
	assert.Equal(t, "state(42)", State(42).String())
}

// Package selection turns a live selection in a rendered tree into the
// offset-addressed span a highlight is stored with.
package selection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/docmark/internal/annotation"
	"github.com/dgallion1/docmark/internal/layout"
	"github.com/dgallion1/docmark/internal/textmap"
	"golang.org/x/net/html"
)

var (
	// ErrCollapsed is returned when the selection covers no characters.
	ErrCollapsed = errors.New("selection is collapsed")

	// ErrEmpty is returned when the selection holds only whitespace.
	ErrEmpty = errors.New("selection is empty")

	// ErrPageMismatch is returned on paginated renderings when either end of
	// the selection is outside the current page's text layer.
	ErrPageMismatch = errors.New("selection is outside the current page")

	// ErrOutsideRoot is returned when a boundary is not inside the root.
	ErrOutsideRoot = textmap.ErrOutsideRoot
)

// Selection is a live selection. Focus may precede Anchor when the user
// dragged backwards.
type Selection struct {
	Anchor textmap.Boundary
	Focus  textmap.Boundary
}

// Options describe the viewer the selection was made in.
type Options struct {
	// Page is the current page on a paginated viewer, 0 otherwise.
	Page int

	// Measurer, when set, is used to compute the selection's bounding rect.
	Measurer layout.RangeMeasurer
}

// TextSelection is a captured selection, trimmed of surrounding whitespace.
type TextSelection struct {
	Text        string      `json:"text"`
	StartOffset int         `json:"start_offset"`
	EndOffset   int         `json:"end_offset"`
	Page        int         `json:"page,omitempty"`
	Anchor      layout.Rect `json:"anchor"`
}

// Position returns the descriptor a highlight over this selection is stored
// with.
func (s TextSelection) Position() annotation.Position {
	if s.Page > 0 {
		return annotation.PagePosition(s.Page, s.StartOffset, s.EndOffset)
	}
	return annotation.OffsetPosition(s.StartOffset, s.EndOffset)
}

// Capture computes the canonical span of sel below root. On paginated
// viewers both ends must lie in the current page's text layer and the
// offsets are local to that layer. The tree is not modified.
func Capture(root *html.Node, sel Selection, opts Options) (TextSelection, error) {
	if opts.Page > 0 {
		layer, err := pageLayer(root, sel, opts.Page)
		if err != nil {
			return TextSelection{}, err
		}
		root = layer
	}

	a, err := textmap.OffsetOf(root, sel.Anchor)
	if err != nil {
		return TextSelection{}, fmt.Errorf("anchor: %w", err)
	}
	f, err := textmap.OffsetOf(root, sel.Focus)
	if err != nil {
		return TextSelection{}, fmt.Errorf("focus: %w", err)
	}
	start, end := a, f
	if f < a {
		start, end = f, a
	}
	if start == end {
		return TextSelection{}, ErrCollapsed
	}

	tbl := textmap.Extract(root)
	raw := tbl.Slice(start, end)
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TextSelection{}, ErrEmpty
	}
	lead := utf8.RuneCountInString(raw) - utf8.RuneCountInString(strings.TrimLeftFunc(raw, unicode.IsSpace))

	ts := TextSelection{
		Text:        trimmed,
		StartOffset: start + lead,
		EndOffset:   start + lead + utf8.RuneCountInString(trimmed),
		Page:        opts.Page,
	}
	if opts.Measurer != nil {
		sb, ok1 := tbl.Boundary(ts.StartOffset, false)
		eb, ok2 := tbl.Boundary(ts.EndOffset, true)
		if ok1 && ok2 {
			if rects, err := opts.Measurer.ClientRects(sb, eb); err == nil {
				ts.Anchor = layout.Union(rects)
			}
		}
	}
	return ts, nil
}

// pageLayer returns the text layer holding both ends of sel, if that layer
// is the given page.
func pageLayer(root *html.Node, sel Selection, page int) (*html.Node, error) {
	if !textmap.Contains(root, sel.Anchor.Node) || !textmap.Contains(root, sel.Focus.Node) {
		return nil, ErrOutsideRoot
	}
	want := strconv.Itoa(page)
	la := enclosingLayer(sel.Anchor.Node)
	lf := enclosingLayer(sel.Focus.Node)
	if la == nil || la != lf || layerPage(la) != want {
		return nil, ErrPageMismatch
	}
	return la, nil
}

func enclosingLayer(n *html.Node) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && layerPage(n) != "" && hasClass(n, "textLayer") {
			return n
		}
	}
	return nil
}

func layerPage(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "data-page-number" {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

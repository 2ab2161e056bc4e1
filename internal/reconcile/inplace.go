// Package reconcile keeps a rendered tree in sync with a material's
// highlights.
//
// Non-paginated renderings are marked up in place: each highlight's span is
// wrapped in <mark> elements inside the tree. Paginated renderings are left
// untouched and highlights are projected as rectangles onto an overlay that
// sits above the page's text layer.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/dgallion1/docmark/internal/annotation"
	"github.com/dgallion1/docmark/internal/textmap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MarkerAttr identifies marker elements and overlay rects.
const MarkerAttr = "data-highlight-id"

// Skip records a highlight that could not be shown in a pass.
type Skip struct {
	HighlightID string `json:"highlight_id"`
	Reason      string `json:"reason"`
}

// Result reports what a reconcile pass did.
type Result struct {
	Applied []string `json:"applied"`
	Skipped []Skip   `json:"skipped"`
}

func (r *Result) skip(id, format string, args ...any) {
	r.Skipped = append(r.Skipped, Skip{HighlightID: id, Reason: fmt.Sprintf(format, args...)})
}

// InPlaceOptions control in-place markup.
type InPlaceOptions struct {
	// Page selects highlights for one page; 0 selects unpaged highlights.
	Page int

	// CrossBlock allows one highlight to wrap text in several block
	// containers, such as two paragraphs.
	CrossBlock bool
}

// phrasingForbidden lists parents that cannot hold a <mark> in place of a
// text child.
var phrasingForbidden = map[string]bool{
	"table": true, "tbody": true, "thead": true, "tfoot": true, "tr": true,
	"colgroup": true, "ul": true, "ol": true, "dl": true, "select": true,
	"optgroup": true, "datalist": true, "option": true, "textarea": true,
	"svg": true, "math": true,
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"body": true, "caption": true, "dd": true, "details": true, "dialog": true,
	"div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"hgroup": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "pre": true, "section": true, "summary": true, "table": true,
	"td": true, "th": true, "ul": true,
}

// ApplyInPlace removes every marker below root and re-applies hs. Highlights
// that cannot be applied are reported in the result and leave the tree as it
// was; the rest still apply. Applying the same set twice yields the same tree.
//
// Overlapping highlights nest. The highlight with the lower start is the
// innermost marker; on equal starts the later-created one is.
func ApplyInPlace(root *html.Node, hs []annotation.Highlight, opts InPlaceOptions) Result {
	var res Result
	if root == nil {
		return res
	}
	RemoveMarkers(root)
	// One marker per text node, so adjacent text must be merged first.
	textmap.Normalize(root)
	tbl := textmap.Extract(root)

	var todo []annotation.Highlight
	for _, h := range hs {
		if h.Position.PageNumber() != opts.Page {
			continue
		}
		start, end, ok := h.Position.Offsets()
		switch {
		case !ok:
			res.skip(h.ID, "position has no offsets")
		case start < 0 || end <= start:
			res.skip(h.ID, "invalid span [%d, %d)", start, end)
		case end > tbl.Len():
			res.skip(h.ID, "span [%d, %d) exceeds text length %d", start, end, tbl.Len())
		default:
			todo = append(todo, h)
		}
	}

	// Descending start, then creation order: later applications end up
	// innermost.
	sort.SliceStable(todo, func(i, j int) bool {
		si, _, _ := todo[i].Position.Offsets()
		sj, _, _ := todo[j].Position.Offsets()
		if si != sj {
			return si > sj
		}
		if !todo[i].CreatedAt.Equal(todo[j].CreatedAt) {
			return todo[i].CreatedAt.Before(todo[j].CreatedAt)
		}
		return todo[i].ID < todo[j].ID
	})

	for _, h := range todo {
		if err := applyOne(root, tbl, h, opts.CrossBlock); err != nil {
			res.skip(h.ID, "%v", err)
			continue
		}
		res.Applied = append(res.Applied, h.ID)
	}
	return res
}

type segment struct {
	run      int
	from, to int
}

func applyOne(root *html.Node, tbl *textmap.Table, h annotation.Highlight, crossBlock bool) error {
	start, end, _ := h.Position.Offsets()
	first, last, ok := tbl.Overlapping(start, end)
	if !ok {
		return fmt.Errorf("span [%d, %d) not found in text", start, end)
	}

	var segs []segment
	var block *html.Node
	for ri := first; ri <= last; ri++ {
		r := tbl.Runs[ri]
		from := max(start, r.Start) - r.Start
		to := min(end, r.End) - r.Start
		if from >= to {
			continue
		}
		parent := r.Node.Parent
		if parent == nil {
			return fmt.Errorf("text node is detached")
		}
		if parent.Type == html.ElementNode && phrasingForbidden[parent.Data] {
			return fmt.Errorf("cannot wrap text inside <%s>", parent.Data)
		}
		if !crossBlock {
			b := nearestBlock(root, r.Node)
			if block == nil {
				block = b
			} else if b != block {
				return fmt.Errorf("span crosses block boundary")
			}
		}
		segs = append(segs, segment{run: ri, from: from, to: to})
	}
	if len(segs) == 0 {
		return fmt.Errorf("span [%d, %d) covers no text", start, end)
	}

	// Highest run first so lower run indices stay valid as runs split.
	for i := len(segs) - 1; i >= 0; i-- {
		wrap(tbl, segs[i], h)
	}
	return nil
}

// wrap splits run s.run around [from, to) and wraps the middle in a marker.
func wrap(tbl *textmap.Table, s segment, h annotation.Highlight) {
	r := tbl.Runs[s.run]
	n := r.Node
	parent := n.Parent
	runes := []rune(n.Data)

	mark := newMarker(h)
	mid := &html.Node{Type: html.TextNode, Data: string(runes[s.from:s.to])}
	mark.AppendChild(mid)

	var pieces []textmap.Run
	if s.from > 0 {
		n.Data = string(runes[:s.from])
		parent.InsertBefore(mark, n.NextSibling)
		pieces = append(pieces, textmap.Run{Node: n, Start: r.Start, End: r.Start + s.from})
	} else {
		parent.InsertBefore(mark, n)
		parent.RemoveChild(n)
	}
	pieces = append(pieces, textmap.Run{Node: mid, Start: r.Start + s.from, End: r.Start + s.to})
	if s.to < len(runes) {
		after := &html.Node{Type: html.TextNode, Data: string(runes[s.to:])}
		parent.InsertBefore(after, mark.NextSibling)
		pieces = append(pieces, textmap.Run{Node: after, Start: r.Start + s.to, End: r.End})
	}
	tbl.Replace(s.run, pieces...)
}

func newMarker(h annotation.Highlight) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "mark",
		DataAtom: atom.Mark,
		Attr: []html.Attribute{
			{Key: MarkerAttr, Val: h.ID},
			{Key: "class", Val: "highlight highlight-" + string(h.Color.OrDefault())},
		},
	}
}

func nearestBlock(root, n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == root || (p.Type == html.ElementNode && blockElements[p.Data]) {
			return p
		}
	}
	return root
}

// RemoveMarkers replaces every element carrying MarkerAttr below root with
// its children and merges the text nodes left adjacent. It returns the number
// of markers removed.
func RemoveMarkers(root *html.Node) int {
	var markers []*html.Node
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && hasAttr(c, MarkerAttr) {
				markers = append(markers, c)
			}
			collect(c)
		}
	}
	collect(root)
	if len(markers) == 0 {
		return 0
	}

	parents := map[*html.Node]bool{}
	for i := len(markers) - 1; i >= 0; i-- {
		m := markers[i]
		parent := m.Parent
		for c := m.FirstChild; c != nil; {
			next := c.NextSibling
			m.RemoveChild(c)
			parent.InsertBefore(c, m)
			c = next
		}
		parent.RemoveChild(m)
		delete(parents, m)
		parents[parent] = true
	}
	for p := range parents {
		textmap.Normalize(p)
	}
	return len(markers)
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

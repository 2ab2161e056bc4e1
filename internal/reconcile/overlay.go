package reconcile

import (
	"fmt"
	"sort"

	"github.com/dgallion1/docmark/internal/annotation"
	"github.com/dgallion1/docmark/internal/layout"
	"github.com/dgallion1/docmark/internal/textmap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Overlay is one highlight's projected rectangles, relative to the page
// container.
type Overlay struct {
	HighlightID string           `json:"highlight_id"`
	Color       annotation.Color `json:"color"`
	Rects       []layout.Rect    `json:"rects"`
}

// OverlayFill maps palette colors to translucent fills.
var OverlayFill = map[annotation.Color]string{
	annotation.Yellow: "rgba(253, 224, 71, 0.4)",
	annotation.Green:  "rgba(134, 239, 172, 0.4)",
	annotation.Blue:   "rgba(147, 197, 253, 0.4)",
	annotation.Pink:   "rgba(249, 168, 212, 0.4)",
}

// Project computes overlay rectangles for the highlights on one page. layer
// is that page's text layer and is never modified; m measures ranges in
// client coordinates, and origin is the page container's client position.
// Highlights on other pages are ignored. Highlights whose span cannot be
// located or measured are reported as skipped for this pass.
func Project(layer *html.Node, page int, origin layout.Point, m layout.RangeMeasurer, hs []annotation.Highlight) ([]Overlay, Result) {
	var res Result
	if layer == nil || m == nil {
		return nil, res
	}
	tbl := textmap.Extract(layer)

	onPage := make([]annotation.Highlight, 0, len(hs))
	for _, h := range hs {
		if h.Position.PageNumber() == page {
			onPage = append(onPage, h)
		}
	}
	// Paint order: earlier starts first, later-created on top.
	sort.SliceStable(onPage, func(i, j int) bool {
		si, _, _ := onPage[i].Position.Offsets()
		sj, _, _ := onPage[j].Position.Offsets()
		if si != sj {
			return si < sj
		}
		if !onPage[i].CreatedAt.Equal(onPage[j].CreatedAt) {
			return onPage[i].CreatedAt.Before(onPage[j].CreatedAt)
		}
		return onPage[i].ID < onPage[j].ID
	})

	var overlays []Overlay
	for _, h := range onPage {
		start, end, ok := h.Position.Offsets()
		if !ok {
			res.skip(h.ID, "position has no offsets")
			continue
		}
		if start < 0 || end <= start {
			res.skip(h.ID, "invalid span [%d, %d)", start, end)
			continue
		}
		sb, ok := tbl.Boundary(start, false)
		if !ok {
			res.skip(h.ID, "start offset %d outside page text", start)
			continue
		}
		eb, ok := tbl.Boundary(end, true)
		if !ok {
			res.skip(h.ID, "end offset %d outside page text", end)
			continue
		}
		rects, err := m.ClientRects(sb, eb)
		if err != nil {
			res.skip(h.ID, "measure: %v", err)
			continue
		}
		local := make([]layout.Rect, 0, len(rects))
		for _, r := range rects {
			if r.Empty() {
				continue
			}
			local = append(local, r.Translate(-origin.X, -origin.Y))
		}
		if len(local) == 0 {
			res.skip(h.ID, "span has no visible rects")
			continue
		}
		overlays = append(overlays, Overlay{HighlightID: h.ID, Color: h.Color.OrDefault(), Rects: local})
		res.Applied = append(res.Applied, h.ID)
	}
	return overlays, res
}

// RenderOverlay builds the overlay element placed above a page's text layer.
// It ignores pointer events so selection on the text layer keeps working.
func RenderOverlay(overlays []Overlay) *html.Node {
	root := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: "highlight-overlay"},
			{Key: "style", Val: "position:absolute;inset:0;pointer-events:none"},
		},
	}
	for _, o := range overlays {
		fill := OverlayFill[o.Color.OrDefault()]
		for _, r := range o.Rects {
			root.AppendChild(&html.Node{
				Type:     html.ElementNode,
				Data:     "div",
				DataAtom: atom.Div,
				Attr: []html.Attribute{
					{Key: MarkerAttr, Val: o.HighlightID},
					{Key: "class", Val: "highlight-rect highlight-" + string(o.Color.OrDefault())},
					{Key: "style", Val: fmt.Sprintf(
						"position:absolute;left:%.2fpx;top:%.2fpx;width:%.2fpx;height:%.2fpx;background-color:%s",
						r.X, r.Y, r.Width, r.Height, fill)},
				},
			})
		}
	}
	return root
}

// Package layout holds the geometry shared by renderers and the reconciler:
// points, rectangles, and the range-measuring capability a live rendering
// must provide for overlay projection.
package layout

import (
	"math"

	"github.com/dgallion1/docmark/internal/textmap"
)

// Point is a position in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Translate returns r moved by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	r.X += dx
	r.Y += dy
	return r
}

// Scale returns r with every coordinate multiplied by s.
func (r Rect) Scale(s float64) Rect {
	return Rect{X: r.X * s, Y: r.Y * s, Width: r.Width * s, Height: r.Height * s}
}

// Union returns the smallest rectangle containing every non-empty rect.
func Union(rects []Rect) Rect {
	var out Rect
	first := true
	for _, r := range rects {
		if r.Empty() {
			continue
		}
		if first {
			out = r
			first = false
			continue
		}
		x0 := math.Min(out.X, r.X)
		y0 := math.Min(out.Y, r.Y)
		x1 := math.Max(out.Right(), r.Right())
		y1 := math.Max(out.Bottom(), r.Bottom())
		out = Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
	}
	return out
}

// RangeMeasurer is implemented by any rendering that can answer range
// queries against its live text: given two boundary points, return the
// bounding rectangles (one per visual line) of the text between them, in
// client coordinates.
type RangeMeasurer interface {
	ClientRects(start, end textmap.Boundary) ([]Rect, error)
}

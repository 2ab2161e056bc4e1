package render

import (
	"testing"

	"github.com/dgallion1/docmark/internal/layout"
	"github.com/dgallion1/docmark/internal/textmap"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var letter = mediaBox{x1: 612, y1: 792}

// word lays s out as one glyph per rune starting at x on baseline y.
func word(s string, x, y float64) []glyph {
	var gs []glyph
	for _, r := range s {
		gs = append(gs, glyph{s: string(r), x: x, y: y, w: 6, size: 12})
		x += 6
	}
	return gs
}

func TestGroupLines_SynthesizesSpacesAndBreaks(t *testing.T) {
	var gs []glyph
	gs = append(gs, word("The", 72, 700)...)
	gs = append(gs, word("quick", 72+18+6, 700)...) // one glyph-width gap
	gs = append(gs, word("fox", 72, 680)...)

	lines := groupLines(gs, letter)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if got := string(lines[0].text); got != "The quick" {
		t.Errorf("expected %q, got %q", "The quick", got)
	}
	if got := string(lines[1].text); got != "fox" {
		t.Errorf("expected %q, got %q", "fox", got)
	}
	for i, l := range lines {
		if len(l.boxes) != len(l.text) {
			t.Errorf("line %d: %d boxes for %d runes", i, len(l.boxes), len(l.text))
		}
	}
	// Baseline 700 on a 792pt page, 12pt font: top edge at 80.
	if lines[0].top != 80 {
		t.Errorf("expected top 80, got %v", lines[0].top)
	}
}

func TestGroupLines_HonoursMediaBoxOrigin(t *testing.T) {
	box := mediaBox{x0: 10, y0: 20, x1: 622, y1: 812}
	lines := groupLines(word("A", 82, 720), box)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	want := layout.Rect{X: 72, Y: 80, Width: 6, Height: 12}
	if diff := cmp.Diff(want, lines[0].boxes[0]); diff != "" {
		t.Errorf("box mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPage_TextLayer(t *testing.T) {
	var gs []glyph
	gs = append(gs, word("Hello", 72, 700)...)
	gs = append(gs, word("world", 72, 680)...)
	p := buildPage(3, letter, gs)

	if attr(p.Layer, "data-page-number") != "3" || !hasClass(p.Layer, "textLayer") {
		t.Errorf("unexpected layer attributes %v", p.Layer.Attr)
	}
	if got := textmap.Extract(p.Layer).Text(); got != "Helloworld" {
		t.Errorf("expected %q, got %q", "Helloworld", got)
	}
	if findElement(p.Layer, "br") == nil {
		t.Error("expected a <br> between lines")
	}
	if !p.HasGeometry() {
		t.Error("expected glyph geometry")
	}
}

func TestLayerMeasurer_OneRectPerLine(t *testing.T) {
	var gs []glyph
	gs = append(gs, word("Hello", 72, 700)...)
	gs = append(gs, word("world", 72, 680)...)
	p := buildPage(1, letter, gs)

	tbl := textmap.Extract(p.Layer)
	start, _ := tbl.Boundary(3, false) // "lo"
	end, _ := tbl.Boundary(7, true)    // "wo"

	m := NewLayerMeasurer(p, 2, layout.Point{X: 100, Y: 50})
	rects, err := m.ClientRects(start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []layout.Rect{
		{X: 100 + (72+18)*2, Y: 50 + 80*2, Width: 12 * 2, Height: 24},
		{X: 100 + 72*2, Y: 50 + 100*2, Width: 12 * 2, Height: 24},
	}
	if diff := cmp.Diff(want, rects, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("rects mismatch (-want +got):\n%s", diff)
	}
}

func TestLayerMeasurer_NoGeometry(t *testing.T) {
	p := &Page{Number: 1, Layer: textLayer(1, 0, 0)}
	m := NewLayerMeasurer(p, 1, layout.Point{})
	if _, err := m.ClientRects(textmap.Boundary{}, textmap.Boundary{}); err != ErrNoGeometry {
		t.Errorf("expected ErrNoGeometry, got %v", err)
	}
}

func TestPDFConverter_RejectsGarbage(t *testing.T) {
	_, err := Convert([]byte("not a pdf"), "bad.pdf", Options{})
	if err == nil {
		t.Fatal("expected error for invalid pdf")
	}
}

func TestRendering_ClonePaginated(t *testing.T) {
	p1 := buildPage(1, letter, word("one", 72, 700))
	p2 := buildPage(2, letter, word("two", 72, 700))
	root := documentRoot(FormatPDF)
	root.AppendChild(p1.Layer)
	root.AppendChild(p2.Layer)
	r := &Rendering{Format: FormatPDF, Root: root, Pages: []*Page{p1, p2}}

	cp := r.Clone()
	page, ok := cp.Page(2)
	if !ok {
		t.Fatal("expected page 2")
	}
	if page.Layer == p2.Layer {
		t.Error("expected cloned layer")
	}
	if page.Layer.Parent != cp.Root {
		t.Error("expected cloned layer to live in cloned root")
	}
	if !page.HasGeometry() {
		t.Error("expected geometry to carry over")
	}
}

package render

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dgallion1/docmark/internal/layout"
	"github.com/dgallion1/docmark/internal/textmap"
	pdflib "github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ErrNoGeometry is returned when measuring a page that has no glyph boxes,
// such as one produced by the pdftotext fallback.
var ErrNoGeometry = errors.New("page has no glyph geometry")

// US Letter, used when a page carries no MediaBox.
const (
	defaultPageWidth  = 612
	defaultPageHeight = 792
)

// Page is one page of a paginated rendering.
type Page struct {
	Number int
	Width  float64
	Height float64

	// Layer is the page's text layer: a div.textLayer holding one span per
	// line of text with a <br> between lines.
	Layer *html.Node

	// lines[i] holds one box per rune of the i-th text node of Layer, in
	// page coordinates at scale 1 with the origin at the top-left corner.
	lines [][]layout.Rect
}

// HasGeometry reports whether the page can answer range measurements.
func (p *Page) HasGeometry() bool { return len(p.lines) > 0 }

// PDFConverter handles PDF files. It reads glyphs with the Go library and,
// when that fails, can fall back to pdftotext.
type PDFConverter struct {
	FallbackPdftotext bool
}

func (c *PDFConverter) Convert(data []byte, filename string) (*Rendering, error) {
	pages, err := readPDF(data)
	if err != nil && c.FallbackPdftotext {
		pages, err = pdftotextPages(data)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	root := documentRoot(FormatPDF)
	for _, p := range pages {
		root.AppendChild(p.Layer)
	}
	return &Rendering{
		Format: FormatPDF,
		Title:  titleFromFilename(filename),
		Root:   root,
		Pages:  pages,
	}, nil
}

// glyph is one positioned piece of text in PDF user space (y grows upward).
type glyph struct {
	s    string
	x, y float64
	w    float64
	size float64
}

type mediaBox struct {
	x0, y0, x1, y1 float64
}

func (b mediaBox) width() float64  { return b.x1 - b.x0 }
func (b mediaBox) height() float64 { return b.y1 - b.y0 }

func readPDF(data []byte) (pages []*Page, err error) {
	// The reader panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := reader.NumPage()
	if n == 0 {
		return nil, errors.New("pdf has no pages")
	}
	for i := 1; i <= n; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, buildPage(i, mediaBox{x1: defaultPageWidth, y1: defaultPageHeight}, nil))
			continue
		}
		var glyphs []glyph
		for _, t := range p.Content().Text {
			glyphs = append(glyphs, glyph{s: t.S, x: t.X, y: t.Y, w: t.W, size: t.FontSize})
		}
		pages = append(pages, buildPage(i, pageMediaBox(p.V), glyphs))
	}
	return pages, nil
}

// pageMediaBox resolves the MediaBox, which may be inherited from an ancestor
// page tree node.
func pageMediaBox(v pdflib.Value) mediaBox {
	for depth := 0; !v.IsNull() && depth < 32; depth++ {
		mb := v.Key("MediaBox")
		if mb.Len() == 4 {
			b := mediaBox{
				x0: mb.Index(0).Float64(),
				y0: mb.Index(1).Float64(),
				x1: mb.Index(2).Float64(),
				y1: mb.Index(3).Float64(),
			}
			if b.width() > 0 && b.height() > 0 {
				return b
			}
		}
		v = v.Key("Parent")
	}
	return mediaBox{x1: defaultPageWidth, y1: defaultPageHeight}
}

type pdfLine struct {
	text  []rune
	boxes []layout.Rect
	left  float64
	top   float64
	size  float64
}

func (l *pdfLine) add(r rune, box layout.Rect) {
	l.text = append(l.text, r)
	l.boxes = append(l.boxes, box)
}

// groupLines turns glyphs in content order into lines in top-left page
// coordinates. A space is synthesized where the horizontal gap between
// glyphs on one line exceeds a quarter of the font size.
func groupLines(glyphs []glyph, box mediaBox) []pdfLine {
	var lines []pdfLine
	var prev glyph
	for _, g := range glyphs {
		if g.s == "" {
			continue
		}
		size := g.size
		if size <= 0 {
			size = 10
		}
		top := box.height() - (g.y - box.y0) - size
		left := g.x - box.x0

		newLine := len(lines) == 0 || math.Abs(g.y-prev.y) > size*0.5 || g.x < prev.x-size
		if newLine {
			lines = append(lines, pdfLine{left: left, top: top, size: size})
		}
		cur := &lines[len(lines)-1]
		if !newLine {
			gapStart := prev.x + prev.w
			if gap := g.x - gapStart; gap > size*0.25 && !strings.HasPrefix(g.s, " ") && cur.text[len(cur.text)-1] != ' ' {
				cur.add(' ', layout.Rect{X: gapStart - box.x0, Y: top, Width: gap, Height: size})
			}
		}

		runes := []rune(g.s)
		w := g.w
		if w <= 0 {
			w = size * 0.5 * float64(len(runes))
		}
		step := w / float64(len(runes))
		for i, r := range runes {
			cur.add(r, layout.Rect{X: left + float64(i)*step, Y: top, Width: step, Height: size})
		}
		prev = g
		prev.w = w
	}

	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(string(l.text)) != "" {
			out = append(out, l)
		}
	}
	return out
}

func buildPage(num int, box mediaBox, glyphs []glyph) *Page {
	p := &Page{Number: num, Width: box.width(), Height: box.height()}
	p.Layer = textLayer(num, p.Width, p.Height)
	for i, ln := range groupLines(glyphs, box) {
		if i > 0 {
			p.Layer.AppendChild(element("br"))
		}
		span := element("span", "style", fmt.Sprintf("left:%.2fpx;top:%.2fpx;font-size:%.2fpx", ln.left, ln.top, ln.size))
		span.AppendChild(textNode(string(ln.text)))
		p.Layer.AppendChild(span)
		p.lines = append(p.lines, ln.boxes)
	}
	return p
}

func textLayer(num int, width, height float64) *html.Node {
	attrs := []string{"class", "textLayer", "data-page-number", strconv.Itoa(num)}
	if width > 0 && height > 0 {
		attrs = append(attrs, "style", fmt.Sprintf("width:%.2fpx;height:%.2fpx", width, height))
	}
	return element("div", attrs...)
}

// pdftotextPages extracts text with the poppler CLI. Pages are split on form
// feeds and carry no geometry.
func pdftotextPages(data []byte) ([]*Page, error) {
	tmp, err := os.CreateTemp("", "docmark-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	out, err := exec.Command("pdftotext", "-layout", tmpPath, "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}

	chunks := strings.Split(strings.TrimSuffix(string(out), "\f"), "\f")
	pages := make([]*Page, 0, len(chunks))
	for i, chunk := range chunks {
		p := &Page{Number: i + 1, Layer: textLayer(i+1, 0, 0)}
		first := true
		for _, line := range strings.Split(chunk, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !first {
				p.Layer.AppendChild(element("br"))
			}
			span := element("span")
			span.AppendChild(textNode(line))
			p.Layer.AppendChild(span)
			first = false
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// LayerMeasurer answers range measurements for one page from the glyph boxes
// recorded while building its text layer. Rects are scaled by the viewer zoom
// and offset by the page container's client origin.
type LayerMeasurer struct {
	page   *Page
	scale  float64
	origin layout.Point
	index  map[*html.Node]int
}

// NewLayerMeasurer indexes the text nodes of p's layer.
func NewLayerMeasurer(p *Page, scale float64, origin layout.Point) *LayerMeasurer {
	if scale <= 0 {
		scale = 1
	}
	m := &LayerMeasurer{page: p, scale: scale, origin: origin, index: map[*html.Node]int{}}
	if p == nil || p.Layer == nil {
		return m
	}
	i := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode && n.Data != "" {
			m.index[n] = i
			i++
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(p.Layer)
	return m
}

// ClientRects returns one rect per line touched by [start, end).
func (m *LayerMeasurer) ClientRects(start, end textmap.Boundary) ([]layout.Rect, error) {
	if m.page == nil || !m.page.HasGeometry() {
		return nil, ErrNoGeometry
	}
	si, ok := m.index[start.Node]
	if !ok {
		return nil, errors.New("start boundary is not a text node of this page")
	}
	ei, ok := m.index[end.Node]
	if !ok {
		return nil, errors.New("end boundary is not a text node of this page")
	}
	if si >= len(m.page.lines) || ei >= len(m.page.lines) {
		return nil, errors.New("text layer does not match page geometry")
	}

	var rects []layout.Rect
	for li := si; li <= ei; li++ {
		boxes := m.page.lines[li]
		from, to := 0, len(boxes)
		if li == si {
			from = min(max(start.Offset, 0), len(boxes))
		}
		if li == ei {
			to = min(max(end.Offset, 0), len(boxes))
		}
		if from >= to {
			continue
		}
		r := layout.Union(boxes[from:to])
		if r.Empty() {
			continue
		}
		rects = append(rects, r.Scale(m.scale).Translate(m.origin.X, m.origin.Y))
	}
	return rects, nil
}

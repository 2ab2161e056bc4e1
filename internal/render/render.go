// Package render converts uploaded material bytes into the rendered tree the
// highlight machinery works on.
//
// Every format produces a golang.org/x/net/html tree. Non-paginated formats
// produce one document root; PDFs produce one text layer per page with the
// glyph geometry needed to project highlights onto the page image.
package render

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/docmark/internal/textmap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrUnsupportedFormat is returned for files no converter handles.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Format names a rendering family.
type Format string

const (
	FormatPlain    Format = "plain"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatCSV      Format = "csv"
	FormatDOCX     Format = "docx"
	FormatPDF      Format = "pdf"
)

// Paginated reports whether positions on this format carry a page.
func (f Format) Paginated() bool { return f == FormatPDF }

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]Format{
	".txt":      FormatPlain,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".csv":      FormatCSV,
	".docx":     FormatDOCX,
	".pdf":      FormatPDF,
}

// ContentTypes maps formats to the media type served for raw content.
var ContentTypes = map[Format]string{
	FormatPlain:    "text/plain; charset=utf-8",
	FormatMarkdown: "text/markdown; charset=utf-8",
	FormatHTML:     "text/html; charset=utf-8",
	FormatCSV:      "text/csv; charset=utf-8",
	FormatDOCX:     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatPDF:      "application/pdf",
}

// FormatOf returns the format for a filename.
func FormatOf(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	f, ok := SupportedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	_, err := FormatOf(filename)
	return err == nil
}

// Options tune conversion.
type Options struct {
	// FallbackPdftotext shells out to pdftotext when the Go PDF reader
	// fails. Pages produced this way carry no glyph geometry.
	FallbackPdftotext bool
}

// Converter turns raw document bytes into a Rendering.
type Converter interface {
	Convert(data []byte, filename string) (*Rendering, error)
}

// ForFile returns the appropriate converter for a filename.
func ForFile(filename string, opts Options) (Converter, error) {
	f, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatPlain:
		return &TextConverter{}, nil
	case FormatMarkdown:
		return &MarkdownConverter{}, nil
	case FormatHTML:
		return &HTMLConverter{}, nil
	case FormatCSV:
		return &CSVConverter{}, nil
	case FormatDOCX:
		return &DOCXConverter{}, nil
	case FormatPDF:
		return &PDFConverter{FallbackPdftotext: opts.FallbackPdftotext}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

// Convert picks a converter by filename and runs it.
func Convert(data []byte, filename string, opts Options) (*Rendering, error) {
	c, err := ForFile(filename, opts)
	if err != nil {
		return nil, err
	}
	r, err := c.Convert(data, filename)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", filename, err)
	}
	return r, nil
}

// Rendering is one material converted for display.
type Rendering struct {
	Format Format
	Title  string

	// Root holds the whole document. For paginated formats it contains
	// every page's text layer in order.
	Root *html.Node

	// Pages is empty for non-paginated formats.
	Pages []*Page
}

// Paginated reports whether the rendering is split into pages.
func (r *Rendering) Paginated() bool { return r.Format.Paginated() }

// Page returns page n (1-based).
func (r *Rendering) Page(n int) (*Page, bool) {
	if n < 1 || n > len(r.Pages) {
		return nil, false
	}
	return r.Pages[n-1], true
}

// PageCount returns the number of pages, or 0 for non-paginated formats.
func (r *Rendering) PageCount() int { return len(r.Pages) }

// Clone deep-copies the tree so callers can mark it up without touching a
// cached rendering.
func (r *Rendering) Clone() *Rendering {
	out := &Rendering{Format: r.Format, Title: r.Title, Root: cloneTree(r.Root)}
	if len(r.Pages) == 0 {
		return out
	}
	// Page layers are children of Root; find their copies by position.
	layers := map[int]*html.Node{}
	collectLayers(out.Root, layers)
	for _, p := range r.Pages {
		cp := *p
		if l, ok := layers[p.Number]; ok {
			cp.Layer = l
		} else {
			cp.Layer = cloneTree(p.Layer)
		}
		out.Pages = append(out.Pages, &cp)
	}
	return out
}

func collectLayers(n *html.Node, into map[int]*html.Node) {
	if n == nil {
		return
	}
	if n.Type == html.ElementNode && hasClass(n, "textLayer") {
		if num, err := strconv.Atoi(attr(n, "data-page-number")); err == nil {
			into[num] = n
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectLayers(c, into)
	}
}

func cloneTree(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	cp := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cp.AppendChild(cloneTree(c))
	}
	return cp
}

// RenderHTML serializes a node and its subtree.
func RenderHTML(n *html.Node) (string, error) {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return b.String(), nil
}

// Text returns the canonical text of the rendering, pages concatenated.
func (r *Rendering) Text() string {
	return textmap.Extract(r.Root).Text()
}

// element creates an element node with the atom set.
func element(tag string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// appendText adds s to parent, skipping empty strings.
func appendText(parent *html.Node, s string) {
	if s == "" {
		return
	}
	parent.AppendChild(textNode(s))
}

func documentRoot(f Format) *html.Node {
	return element("div", "class", "document document-"+string(f))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dgallion1/docmark/internal/textmap"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MarkdownConverter renders Markdown (GitHub flavored) to HTML with goldmark.
// Raw HTML in the source is not passed through.
type MarkdownConverter struct{}

func (c *MarkdownConverter) Convert(data []byte, filename string) (*Rendering, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(data))

	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, data, doc); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	root := documentRoot(FormatMarkdown)
	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(&buf, context)
	if err != nil {
		return nil, fmt.Errorf("parse rendered markdown: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	textmap.Normalize(root)

	title := firstHeading(doc, data)
	if title == "" {
		title = titleFromFilename(filename)
	}
	return &Rendering{Format: FormatMarkdown, Title: title, Root: root}, nil
}

// firstHeading returns the text of the first level-1 heading.
func firstHeading(doc ast.Node, src []byte) string {
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			return inlineText(h, src)
		}
	}
	return ""
}

// inlineText gets the text content of a goldmark inline subtree.
func inlineText(n ast.Node, src []byte) string {
	var buf strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.WriteString(inlineText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}

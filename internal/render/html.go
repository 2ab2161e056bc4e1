package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dgallion1/docmark/internal/textmap"
	"golang.org/x/net/html"
)

// HTMLConverter handles HTML files. The body is kept as authored minus
// scripts, page chrome and event handler attributes.
type HTMLConverter struct{}

func (c *HTMLConverter) Convert(data []byte, filename string) (*Rendering, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := titleFromFilename(filename)
	if t := findTitle(doc); t != "" {
		title = t
	}

	root := documentRoot(FormatHTML)
	src := findBody(doc)
	if src == nil {
		src = doc
	}
	for c := src.FirstChild; c != nil; {
		next := c.NextSibling
		src.RemoveChild(c)
		if keep := sanitize(c); keep {
			root.AppendChild(c)
		}
		c = next
	}
	textmap.Normalize(root)

	return &Rendering{Format: FormatHTML, Title: title, Root: root}, nil
}

// sanitize strips unsafe or non-content nodes below n and reports whether n
// itself should be kept.
func sanitize(n *html.Node) bool {
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return false
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "nav", "footer", "header", "iframe", "object", "embed", "link", "meta", "base", "form":
			return false
		}
		attrs := n.Attr[:0]
		for _, a := range n.Attr {
			key := strings.ToLower(a.Key)
			if strings.HasPrefix(key, "on") || key == "data-highlight-id" {
				continue
			}
			if (key == "href" || key == "src") && strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.Val)), "javascript:") {
				continue
			}
			attrs = append(attrs, a)
		}
		n.Attr = attrs
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if !sanitize(c) {
			n.RemoveChild(c)
		}
		c = next
	}
	return true
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

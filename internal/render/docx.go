package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dgallion1/docmark/internal/textmap"
	"github.com/fumiama/go-docx"
	"golang.org/x/net/html"
)

// DOCXConverter converts .docx files to semantic markup: headings, paragraphs
// with inline emphasis, line breaks, hyperlinks and tables.
type DOCXConverter struct{}

func (c *DOCXConverter) Convert(data []byte, filename string) (*Rendering, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	w := &docxWriter{
		refer: func(id string) string {
			target, err := doc.ReferTarget(id)
			if err != nil {
				return ""
			}
			return target
		},
	}
	root := documentRoot(FormatDOCX)
	for _, item := range doc.Document.Body.Items {
		w.item(root, item)
	}
	textmap.Normalize(root)

	title := w.title
	if title == "" {
		title = titleFromFilename(filename)
	}
	return &Rendering{Format: FormatDOCX, Title: title, Root: root}, nil
}

type docxWriter struct {
	refer func(id string) string
	title string
}

func (w *docxWriter) item(parent *html.Node, item interface{}) {
	switch it := item.(type) {
	case *docx.Paragraph:
		w.paragraph(parent, it)
	case *docx.Table:
		w.table(parent, it)
	}
}

func (w *docxWriter) paragraph(parent *html.Node, para *docx.Paragraph) {
	level := docxHeadingLevel(para)
	tag := "p"
	if level > 0 {
		tag = fmt.Sprintf("h%d", level)
	}
	el := element(tag)
	for _, child := range para.Children {
		switch ch := child.(type) {
		case *docx.Run:
			w.run(el, ch)
		case *docx.Hyperlink:
			a := element("a")
			if target := w.refer(ch.ID); target != "" {
				a.Attr = append(a.Attr, html.Attribute{Key: "href", Val: target})
			}
			w.run(a, &ch.Run)
			if a.FirstChild != nil {
				el.AppendChild(a)
			}
		}
	}
	if el.FirstChild == nil {
		return
	}
	if level == 1 && w.title == "" {
		w.title = textContent(el)
	}
	parent.AppendChild(el)
}

// run appends a run's content to parent, wrapped in one element per inline
// emphasis the run carries.
func (w *docxWriter) run(parent *html.Node, run *docx.Run) {
	var outer, inner *html.Node
	wrap := func(tag string) {
		e := element(tag)
		if inner == nil {
			outer = e
		} else {
			inner.AppendChild(e)
		}
		inner = e
	}
	if rp := run.RunProperties; rp != nil {
		if rp.Bold != nil {
			wrap("strong")
		}
		if rp.Italic != nil {
			wrap("em")
		}
		if rp.Underline != nil && rp.Underline.Val != "none" {
			wrap("u")
		}
		if rp.Strike != nil && rp.Strike.Val != "false" && rp.Strike.Val != "0" {
			wrap("s")
		}
	}
	target := parent
	if inner != nil {
		target = inner
	}
	for _, rc := range run.Children {
		switch t := rc.(type) {
		case *docx.Text:
			appendText(target, t.Text)
		case *docx.Tab:
			appendText(target, "\t")
		case *docx.BarterRabbet:
			target.AppendChild(element("br"))
		}
	}
	if outer != nil && inner.FirstChild != nil {
		parent.AppendChild(outer)
	}
}

func (w *docxWriter) table(parent *html.Node, t *docx.Table) {
	table := element("table", "class", "doc-table")
	tbody := element("tbody")
	for _, row := range t.TableRows {
		tr := element("tr")
		for _, cell := range row.TableCells {
			td := element("td")
			for _, p := range cell.Paragraphs {
				w.paragraph(td, p)
			}
			for _, nested := range cell.Tables {
				w.table(td, nested)
			}
			tr.AppendChild(td)
		}
		tbody.AppendChild(tr)
	}
	table.AppendChild(tbody)
	parent.AppendChild(table)
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if !strings.HasPrefix(style, "heading") || len(style) != len("heading")+1 {
		return 0
	}
	level := int(style[len(style)-1] - '0')
	if level < 1 || level > 6 {
		return 0
	}
	return level
}

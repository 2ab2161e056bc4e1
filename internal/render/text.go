package render

import (
	"strings"
)

// TextConverter handles plain text files. The text is kept verbatim inside a
// <pre> so offsets match the file after line-ending normalization.
type TextConverter struct{}

func (c *TextConverter) Convert(data []byte, filename string) (*Rendering, error) {
	text := strings.TrimPrefix(string(data), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	root := documentRoot(FormatPlain)
	pre := element("pre", "class", "doc-text")
	appendText(pre, text)
	root.AppendChild(pre)

	return &Rendering{
		Format: FormatPlain,
		Title:  titleFromFilename(filename),
		Root:   root,
	}, nil
}

package render

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"golang.org/x/net/html"
)

// CSVConverter renders CSV files as a table. The first row is the header.
type CSVConverter struct{}

func (c *CSVConverter) Convert(data []byte, filename string) (*Rendering, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	root := documentRoot(FormatCSV)
	r := &Rendering{Format: FormatCSV, Title: titleFromFilename(filename), Root: root}
	if len(records) == 0 {
		return r, nil
	}

	table := element("table", "class", "doc-table")
	thead := element("thead")
	thead.AppendChild(csvRow(records[0], "th"))
	table.AppendChild(thead)

	tbody := element("tbody")
	for _, rec := range records[1:] {
		tbody.AppendChild(csvRow(rec, "td"))
	}
	table.AppendChild(tbody)
	root.AppendChild(table)
	return r, nil
}

func csvRow(cells []string, tag string) *html.Node {
	tr := element("tr")
	for _, cell := range cells {
		td := element(tag)
		appendText(td, cell)
		tr.AppendChild(td)
	}
	return tr
}

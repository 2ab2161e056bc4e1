package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docmark/internal/layout"
	"github.com/dgallion1/docmark/internal/render"
	"github.com/dgallion1/docmark/internal/selection"
	"github.com/dgallion1/docmark/internal/textmap"
)

var selectCmd = &cobra.Command{
	Use:   "select [file] [start] [end]",
	Short: "Capture a selection the way the viewer does",
	Long: `Selects the characters [start, end) of a local document's canonical text,
trims surrounding whitespace, and prints the position a highlight over it
would be stored with. On PDFs the offsets are relative to --page.`,
	Args: cobra.ExactArgs(3),
	RunE: runSelect,
}

var selectPage int

func init() {
	selectCmd.Flags().IntVar(&selectPage, "page", 1, "page for paginated documents")
	rootCmd.AddCommand(selectCmd)
}

func runSelect(cmd *cobra.Command, args []string) error {
	start, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid start %q", args[1])
	}
	end, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid end %q", args[2])
	}

	doc, err := loadRendering(args[0])
	if err != nil {
		return err
	}

	scope := doc.Root
	var opts selection.Options
	if doc.Paginated() {
		page, ok := doc.Page(selectPage)
		if !ok {
			return fmt.Errorf("page %d out of range 1..%d", selectPage, doc.PageCount())
		}
		scope = page.Layer
		opts.Page = selectPage
		if page.HasGeometry() {
			opts.Measurer = render.NewLayerMeasurer(page, 1, layout.Point{})
		}
	}

	tbl := textmap.Extract(scope)
	anchor, ok := tbl.Boundary(start, false)
	if !ok {
		return fmt.Errorf("start %d outside text of length %d", start, tbl.Len())
	}
	focus, ok := tbl.Boundary(end, true)
	if !ok {
		return fmt.Errorf("end %d outside text of length %d", end, tbl.Len())
	}

	ts, err := selection.Capture(doc.Root, selection.Selection{Anchor: anchor, Focus: focus}, opts)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"selection": ts,
		"position":  ts.Position(),
	})
}

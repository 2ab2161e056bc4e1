package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docmark/internal/annotation"
	"github.com/dgallion1/docmark/internal/layout"
	"github.com/dgallion1/docmark/internal/reconcile"
	"github.com/dgallion1/docmark/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Render a local document with highlights",
	Long: `Converts a local document to HTML and shows the highlights read from
--highlights (a JSON array as returned by the server). Flowing documents get
in-place <mark> elements; PDFs print one page's text layer followed by its
overlay.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	renderHighlights string
	renderPage       int
	renderScale      float64
	renderCrossBlock bool
	renderPdftotext  bool
)

func init() {
	renderCmd.Flags().StringVar(&renderHighlights, "highlights", "", "JSON file of highlights to show")
	renderCmd.Flags().IntVar(&renderPage, "page", 1, "page to render for paginated documents")
	renderCmd.Flags().Float64Var(&renderScale, "scale", 1, "zoom used for overlay rectangles")
	renderCmd.Flags().BoolVar(&renderCrossBlock, "cross-block", false, "allow highlights spanning several blocks")
	renderCmd.Flags().BoolVar(&renderPdftotext, "pdftotext", true, "fall back to pdftotext for unreadable PDFs")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	doc, err := loadRendering(args[0])
	if err != nil {
		return err
	}
	hs, err := readHighlights(renderHighlights)
	if err != nil {
		return err
	}

	var (
		out string
		res reconcile.Result
	)
	if doc.Paginated() {
		page, ok := doc.Page(renderPage)
		if !ok {
			return fmt.Errorf("page %d out of range 1..%d", renderPage, doc.PageCount())
		}
		m := render.NewLayerMeasurer(page, renderScale, layout.Point{})
		var overlays []reconcile.Overlay
		overlays, res = reconcile.Project(page.Layer, renderPage, layout.Point{}, m, hs)
		layer, err := render.RenderHTML(page.Layer)
		if err != nil {
			return err
		}
		overlay, err := render.RenderHTML(reconcile.RenderOverlay(overlays))
		if err != nil {
			return err
		}
		out = layer + "\n" + overlay
	} else {
		res = reconcile.ApplyInPlace(doc.Root, hs, reconcile.InPlaceOptions{CrossBlock: renderCrossBlock})
		out, err = render.RenderHTML(doc.Root)
		if err != nil {
			return err
		}
	}

	cmd.Println(out)
	for _, s := range res.Skipped {
		cmd.PrintErrf("skipped %s: %s\n", s.HighlightID, s.Reason)
	}
	return nil
}

func loadRendering(path string) (*render.Rendering, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return render.Convert(data, path, render.Options{FallbackPdftotext: renderPdftotext})
}

func readHighlights(path string) ([]annotation.Highlight, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read highlights: %w", err)
	}
	var hs []annotation.Highlight
	if err := json.Unmarshal(data, &hs); err != nil {
		return nil, fmt.Errorf("parse highlights: %w", err)
	}
	return hs, nil
}

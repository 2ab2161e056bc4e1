package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docmark/internal/annotation"
)

var highlightsCmd = &cobra.Command{
	Use:     "highlights",
	Aliases: []string{"hl"},
	Short:   "Manage highlights on a material",
}

var highlightsListCmd = &cobra.Command{
	Use:   "list [material-id]",
	Short: "List highlights in reading order",
	Args:  cobra.ExactArgs(1),
	RunE:  runHighlightsList,
}

var highlightsAddCmd = &cobra.Command{
	Use:   "add [material-id] [start] [end] [text]",
	Short: "Create a highlight over [start, end)",
	Args:  cobra.ExactArgs(4),
	RunE:  runHighlightsAdd,
}

var highlightsNoteCmd = &cobra.Command{
	Use:   "note [material-id] [highlight-id] [note]",
	Short: "Set a highlight's note; omit the note to clear it",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runHighlightsNote,
}

var highlightsColorCmd = &cobra.Command{
	Use:   "color [material-id] [highlight-id] [color]",
	Short: "Change a highlight's color",
	Args:  cobra.ExactArgs(3),
	RunE:  runHighlightsColor,
}

var highlightsRemoveCmd = &cobra.Command{
	Use:   "rm [material-id] [highlight-id]",
	Short: "Delete a highlight",
	Args:  cobra.ExactArgs(2),
	RunE:  runHighlightsRemove,
}

var (
	addColor string
	addPage  int
	addNote  string
)

func init() {
	highlightsAddCmd.Flags().StringVarP(&addColor, "color", "c", "", "yellow, green, blue or pink (default yellow)")
	highlightsAddCmd.Flags().IntVarP(&addPage, "page", "p", 0, "page number for PDFs")
	highlightsAddCmd.Flags().StringVar(&addNote, "note", "", "note to attach")

	highlightsCmd.AddCommand(highlightsListCmd)
	highlightsCmd.AddCommand(highlightsAddCmd)
	highlightsCmd.AddCommand(highlightsNoteCmd)
	highlightsCmd.AddCommand(highlightsColorCmd)
	highlightsCmd.AddCommand(highlightsRemoveCmd)
	rootCmd.AddCommand(highlightsCmd)
}

// materialStore returns a store for the material, loaded from the server.
func materialStore(cmd *cobra.Command, materialID string) (*annotation.Store, func(), error) {
	c, err := newClient()
	if err != nil {
		return nil, nil, err
	}
	store := annotation.NewStore(c.Highlights(notebookID, materialID))
	if _, err := store.List(cmd.Context()); err != nil {
		c.Close()
		return nil, nil, err
	}
	return store, c.Close, nil
}

func runHighlightsList(cmd *cobra.Command, args []string) error {
	store, closeFn, err := materialStore(cmd, args[0])
	if err != nil {
		return err
	}
	defer closeFn()

	hs := store.Highlights()
	if len(hs) == 0 {
		cmd.Printf("No highlights on material: %s\n", args[0])
		return nil
	}
	annotation.SortForDisplay(hs)
	for _, h := range hs {
		start, end, _ := h.Position.Offsets()
		where := fmt.Sprintf("%d-%d", start, end)
		if p := h.Position.PageNumber(); p > 0 {
			where = fmt.Sprintf("p%d %s", p, where)
		}
		cmd.Printf("  %s  [%s] %-6s %q\n", h.ID, where, h.Color, h.SelectedText)
		if h.Note != nil {
			cmd.Printf("      note: %s\n", *h.Note)
		}
	}
	return nil
}

func runHighlightsAdd(cmd *cobra.Command, args []string) error {
	start, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid start %q", args[1])
	}
	end, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid end %q", args[2])
	}
	color, err := annotation.ParseColor(addColor)
	if err != nil {
		return err
	}

	req := annotation.CreateRequest{
		Position:     annotation.OffsetPosition(start, end),
		SelectedText: args[3],
		Color:        color,
	}
	if addPage > 0 {
		req.Position = annotation.PagePosition(addPage, start, end)
	}
	if addNote != "" {
		req.Note = &addNote
	}
	if err := req.Validate(addPage > 0); err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()
	store := annotation.NewStore(c.Highlights(notebookID, args[0]))
	h, err := store.Create(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to create highlight: %w", err)
	}
	return printJSON(cmd, h)
}

func runHighlightsNote(cmd *cobra.Command, args []string) error {
	u := annotation.Update{ClearNote: true}
	if len(args) == 3 {
		u = annotation.SetNote(args[2])
	}
	return updateHighlight(cmd, args[0], args[1], u)
}

func runHighlightsColor(cmd *cobra.Command, args []string) error {
	color, err := annotation.ParseColor(args[2])
	if err != nil {
		return err
	}
	return updateHighlight(cmd, args[0], args[1], annotation.Recolor(color))
}

func updateHighlight(cmd *cobra.Command, materialID, id string, u annotation.Update) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()
	store := annotation.NewStore(c.Highlights(notebookID, materialID))
	h, err := store.Update(cmd.Context(), id, u)
	if err != nil {
		return fmt.Errorf("failed to update highlight: %w", err)
	}
	return printJSON(cmd, h)
}

func runHighlightsRemove(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()
	store := annotation.NewStore(c.Highlights(notebookID, args[0]))
	if err := store.Delete(cmd.Context(), args[1]); err != nil {
		return fmt.Errorf("failed to delete highlight: %w", err)
	}
	cmd.Printf("Deleted highlight: %s\n", args[1])
	return nil
}

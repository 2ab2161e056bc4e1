package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var materialsCmd = &cobra.Command{
	Use:   "materials",
	Short: "Manage materials in a notebook",
}

var materialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List materials",
	Args:  cobra.NoArgs,
	RunE:  runMaterialsList,
}

var materialsUploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runMaterialsUpload,
}

var materialsRemoveCmd = &cobra.Command{
	Use:   "rm [material-id]",
	Short: "Delete a material and its highlights",
	Args:  cobra.ExactArgs(1),
	RunE:  runMaterialsRemove,
}

var uploadTitle string

func init() {
	materialsUploadCmd.Flags().StringVarP(&uploadTitle, "title", "t", "", "title (defaults to the document's own)")

	materialsCmd.AddCommand(materialsListCmd)
	materialsCmd.AddCommand(materialsUploadCmd)
	materialsCmd.AddCommand(materialsRemoveCmd)
	rootCmd.AddCommand(materialsCmd)
}

func runMaterialsList(cmd *cobra.Command, _ []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ms, err := c.ListMaterials(cmd.Context(), notebookID)
	if err != nil {
		return fmt.Errorf("failed to list materials: %w", err)
	}
	if len(ms) == 0 {
		cmd.Printf("No materials in notebook: %s\n", notebookID)
		return nil
	}
	for _, m := range ms {
		cmd.Printf("  %s\n", m.ID)
		cmd.Printf("    Title:  %s\n", m.Title)
		cmd.Printf("    File:   %s (%s, %d bytes)\n", m.Filename, m.Format, m.Size)
		cmd.Printf("    Added:  %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	cmd.Printf("\nTotal: %d materials\n", len(ms))
	return nil
}

func runMaterialsUpload(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := c.Upload(cmd.Context(), notebookID, filepath.Base(args[0]), uploadTitle, f)
	if err != nil {
		return fmt.Errorf("failed to upload: %w", err)
	}
	return printJSON(cmd, m)
}

func runMaterialsRemove(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.DeleteMaterial(cmd.Context(), notebookID, args[0]); err != nil {
		return fmt.Errorf("failed to delete material: %w", err)
	}
	cmd.Printf("Deleted material: %s\n", args[0])
	return nil
}

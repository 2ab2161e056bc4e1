// Command docmark renders study documents with their highlights and manages
// materials and highlights on a docmark server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docmark/internal/annotation"
)

var (
	serverURL  string
	apiKey     string
	notebookID string
	rateLimit  float64
)

var rootCmd = &cobra.Command{
	Use:           "docmark",
	Short:         "Offset-anchored highlights over rendered documents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("DOCMARK_URL", "http://localhost:8090"), "docmark server URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("DOCMARK_API_KEY"), "API key for the server")
	rootCmd.PersistentFlags().StringVarP(&notebookID, "notebook", "n", "default", "notebook ID")
	rootCmd.PersistentFlags().Float64Var(&rateLimit, "rate", 10, "max requests per second (0 = unlimited)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		rootCmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}

func newClient() (*annotation.Client, error) {
	if serverURL == "" {
		return nil, errors.New("--server is required")
	}
	return annotation.NewClient(serverURL, apiKey, rateLimit), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/logindex/internal/core/checkpoint"
	"github.com/vietddude/logindex/internal/infra/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the checkpointed position of every log",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	app, cfg := openApp(cmd)
	defer func() {
		_ = app.Close()
	}()

	data, err := app.Checkpoint(cmd.Context())
	if storage.IsNotFound(err) || (err == nil && len(data) == 0) {
		fmt.Printf("No checkpoint for index %s\n", cfg.Indexer.Name)
		return
	}
	if err != nil {
		slog.Error("Failed to fetch checkpoint", "error", err)
		os.Exit(1)
	}

	set, version, err := checkpoint.Decode(data)
	if err != nil {
		slog.Error("Failed to decode checkpoint", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Index %s, view version %d (configured %d), %d entries indexed\n",
		cfg.Indexer.Name, version, cfg.Indexer.Version, set.Indexed())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "LOG\tINDEXED")
	for _, c := range set.Cursors() {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", c.LogID, c.Max)
	}
	_ = w.Flush()
}

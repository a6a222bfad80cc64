package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop the checkpoint and clear the view so the next run rebuilds it",
	Run:   runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) {
	app, cfg := openApp(cmd)
	defer func() {
		_ = app.Close()
	}()

	if err := app.Reset(cmd.Context()); err != nil {
		slog.Error("Failed to reset index", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Successfully reset index %s\n", cfg.Indexer.Name)
}

package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/logindex/internal/core/domain"
)

var appendCmd = &cobra.Command{
	Use:   "append [log_name] [json]...",
	Short: "Append JSON entries to a local log",
	Long: `Append JSON entries to the log called log_name, creating it if needed.
The logs are opened directly, so the indexer must not be running.`,
	Args: cobra.MinimumNArgs(2),
	Run:  runAppend,
}

func init() {
	rootCmd.AddCommand(appendCmd)
}

func runAppend(cmd *cobra.Command, args []string) {
	name := args[0]
	values := make([][]byte, 0, len(args)-1)
	for _, arg := range args[1:] {
		if !json.Valid([]byte(arg)) {
			fmt.Printf("Invalid JSON entry: %s\n", arg)
			os.Exit(1)
		}
		values = append(values, []byte(arg))
	}

	app, _ := openApp(cmd)
	defer func() {
		_ = app.Close()
	}()

	seq, err := app.Append(cmd.Context(), name, values...)
	if err != nil {
		slog.Error("Failed to append", "log", name, "error", err)
		os.Exit(1)
	}

	id := domain.LogIDFromName(name)
	for i := range values {
		fmt.Println(domain.Entry{LogID: id, Seq: seq + uint32(i)}.ID())
	}
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/explorer/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show row counts and the change feed position of every collection",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	counts, err := db.Counts(ctx)
	if err != nil {
		slog.Error("Failed to count rows", "error", err)
		os.Exit(1)
	}
	seqs, err := db.LastSequences(ctx)
	if err != nil {
		slog.Error("Failed to read change feed", "error", err)
		os.Exit(1)
	}
	last := make(map[string]int64, len(seqs))
	for _, s := range seqs {
		last[s.Collection] = s.Seq
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "COLLECTION\tROWS\tLAST SEQ")
	for _, c := range counts {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", c.Table, c.Rows, last[c.Table])
	}
	_ = w.Flush()
}

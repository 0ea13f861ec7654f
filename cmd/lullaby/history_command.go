package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucianfialho/urban-lullaby/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent passes from the local history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			path := cfg.HistoryDBPath()
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "No pass history yet (%s does not exist)\n", path)
				return nil
			}
			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			passes, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				if passes == nil {
					passes = []history.Pass{}
				}
				return writeJSON(cmd, passes)
			}
			if len(passes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No passes recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(passes, time.Now()))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of passes to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print passes as JSON")
	return cmd
}

func renderHistory(passes []history.Pass, now time.Time) string {
	columns := []column{
		{title: "Started"},
		{title: "Day"},
		{title: "Status"},
		{title: "Stage"},
		{title: "Tracks", right: true},
		{title: "Skipped", right: true},
		{title: "Duration", right: true},
		{title: "Error"},
	}
	rows := make([][]string, 0, len(passes))
	for _, p := range passes {
		errText := p.ErrorMessage
		if p.ErrorKind != "" {
			errText = p.ErrorKind + ": " + errText
		}
		rows = append(rows, []string{
			p.StartedAt.Local().Format("2006-01-02 15:04"),
			p.Date,
			titleCase(string(p.Status)),
			p.Stage,
			strconv.Itoa(p.TrackCount),
			strconv.Itoa(p.SkippedCount),
			p.Duration(now).Round(time.Second).String(),
			truncate(errText, 60),
		})
	}
	return renderTable(columns, rows)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

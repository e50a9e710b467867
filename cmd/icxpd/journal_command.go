package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"icxpd/internal/journal"
	"icxpd/internal/logging"
)

func newJournalCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		level  string
		target string
		since  time.Duration
		asJSON bool
		plain  bool
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print recent records from the SQLite log journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			q := journal.Query{Limit: limit, Target: target}
			if level != "" {
				parsed, ok := logging.ParseLevel(level)
				if !ok {
					return fmt.Errorf("unknown log level %q", level)
				}
				q.MinLevel = parsed
			} else {
				q.MinLevel = logging.LevelTrace
			}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}

			path := cfg.JournalPath()
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("journal %s not found; add a journal writer to logging.writers", path)
			}
			store, err := journal.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Tail(cmd.Context(), q)
			if err != nil {
				return err
			}

			if asJSON {
				if records == nil {
					records = []logging.Record{}
				}
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No journal records")
				return nil
			}
			if plain {
				for _, rec := range records {
					fmt.Fprintln(out, rec.Format())
				}
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.Time.Local().Format("2006-01-02 15:04:05.000"),
					rec.LevelName(),
					rec.Target,
					rec.Source(),
					rec.Message,
					strconv.Itoa(len(rec.Fields)),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Time", "Level", "Target", "Source", "Message", "Fields"}, rows, 5))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum records to show")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (trace, debug, info, warn, error)")
	cmd.Flags().StringVar(&target, "target", "", "Only show records for this target")
	cmd.Flags().DurationVar(&since, "since", 0, "Only show records newer than this duration")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&plain, "plain", false, "Output one formatted line per record")
	return cmd
}

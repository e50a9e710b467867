package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"icxpd/internal/config"
	"icxpd/internal/logging"
	"icxpd/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the daemon's log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := fileLogPath(cfg)
			if path == "" {
				return fmt.Errorf("no file writer configured; add one to logging.writers or use `icxpd journal`")
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			emit := func(rec logging.Record) error {
				if asJSON {
					return enc.Encode(rec)
				}
				_, err := fmt.Fprintln(out, rec.Format())
				return err
			}

			res, err := logs.Tail(path, lines)
			if err != nil {
				return err
			}
			for _, rec := range res.Records {
				if err := emit(rec); err != nil {
					return err
				}
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, res.Offset, emit)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of records to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing records as they are written")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON lines")
	return cmd
}

func fileLogPath(cfg *config.Config) string {
	for _, w := range cfg.Logging.Writers {
		if w.Kind == config.WriterFile && w.Path != "" {
			return w.Path
		}
	}
	return ""
}

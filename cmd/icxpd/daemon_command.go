package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"icxpd/internal/daemon"
	"icxpd/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var console bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the icxpd daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if held, err := daemon.LockHeld(cfg.LockPath()); err == nil && held {
				return daemon.ErrAlreadyRunning
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				ConfigPath: ctx.configPath,
				LogLevel:   logLevel,
				Console:    console,
				Started: func(st daemon.Status) {
					fmt.Fprintf(cmd.OutOrStdout(), "icxpd listening on %s (pid %d)\n", st.SocketPath, st.PID)
				},
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error); ICXPD_LOG_LEVEL takes precedence")
	cmd.Flags().BoolVar(&console, "console", false, "Also write logs to stderr")
	return cmd
}

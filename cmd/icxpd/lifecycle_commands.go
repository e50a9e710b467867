package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"icxpd/internal/daemonctl"
)

func (c *commandContext) daemonPaths() (daemonctl.Paths, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return daemonctl.Paths{}, err
	}
	p := daemonctl.Paths{
		WorkDir: cfg.Paths.WorkDir,
		Socket:  cfg.SocketPath(),
		Lock:    cfg.LockPath(),
		PID:     cfg.PIDPath(),
	}
	if _, err := os.Stat(c.configPath); err == nil {
		p.Config = c.configPath
	}
	return p, nil
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.daemonPaths()
			if err != nil {
				return err
			}
			return startDaemon(cmd, p, logLevel, wait)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level passed to the daemon")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "How long to wait for the socket")
	return cmd
}

func startDaemon(cmd *cobra.Command, p daemonctl.Paths, logLevel string, wait time.Duration) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if err := os.MkdirAll(p.WorkDir, 0o700); err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	res, err := daemonctl.EnsureStarted(exe, p, daemonctl.LaunchOptions{
		LogLevel: logLevel,
		LogFile:  filepath.Join(p.WorkDir, "daemon.out"),
	}, wait)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch res.State {
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintf(out, "icxpd is already running (pid %d)\n", res.PID)
	default:
		fmt.Fprintf(out, "icxpd started (pid %d)\n", res.PID)
	}
	return nil
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.daemonPaths()
			if err != nil {
				return err
			}
			_, err = stopDaemon(cmd, p, grace)
			return err
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 10*time.Second, "How long to wait before sending SIGKILL")
	return cmd
}

func stopDaemon(cmd *cobra.Command, p daemonctl.Paths, grace time.Duration) (bool, error) {
	out := cmd.OutOrStdout()
	res, err := daemonctl.StopAndTerminate(p, grace)
	if errors.Is(err, daemonctl.ErrNotRunning) {
		fmt.Fprintln(out, "icxpd is not running")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if res.ForcedKill {
		fmt.Fprintf(out, "icxpd killed after %s (pid %d)\n", grace, res.PID)
	} else {
		fmt.Fprintf(out, "icxpd stopped (pid %d)\n", res.PID)
	}
	return true, nil
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var grace, wait time.Duration

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the daemon if running, then start it in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.daemonPaths()
			if err != nil {
				return err
			}
			if _, err := stopDaemon(cmd, p, grace); err != nil {
				return err
			}
			return startDaemon(cmd, p, logLevel, wait)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level passed to the daemon")
	cmd.Flags().DurationVar(&grace, "grace", 10*time.Second, "How long to wait before sending SIGKILL")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "How long to wait for the socket")
	return cmd
}

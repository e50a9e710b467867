package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"icxpd/internal/daemon"
	"icxpd/internal/daemonctl"
)

type daemonStatus struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid,omitempty"`
	StalePID     bool   `json:"stale_pid,omitempty"`
	LockHeld     bool   `json:"lock_held"`
	SocketPath   string `json:"socket_path"`
	SocketExists bool   `json:"socket_exists"`
	SocketReady  bool   `json:"socket_ready"`
	WorkDir      string `json:"work_dir"`
	ConfigPath   string `json:"config_path"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a daemon is running for this work directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.probeStatus()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, st)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			switch {
			case st.Running:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", st.PID), colorize))
			case st.StalePID:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("not running (stale pid %d)", st.PID), colorize))
			default:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, "not running", colorize))
			}

			switch {
			case st.SocketReady:
				fmt.Fprintln(out, renderStatusLine("Socket", statusOK, st.SocketPath, colorize))
			case st.SocketExists:
				fmt.Fprintln(out, renderStatusLine("Socket", statusError, st.SocketPath+" (not accepting)", colorize))
			default:
				fmt.Fprintln(out, renderStatusLine("Socket", statusInfo, st.SocketPath+" (absent)", colorize))
			}

			lockKind := statusInfo
			if st.LockHeld {
				lockKind = statusOK
			}
			fmt.Fprintln(out, renderStatusLine("Lock", lockKind, "held: "+yesNo(st.LockHeld), colorize))
			fmt.Fprintln(out, renderStatusLine("Work dir", statusInfo, st.WorkDir, colorize))
			fmt.Fprintln(out, renderStatusLine("Config", statusInfo, st.ConfigPath, colorize))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func (c *commandContext) probeStatus() (daemonStatus, error) {
	p, err := c.daemonPaths()
	if err != nil {
		return daemonStatus{}, err
	}
	st := daemonStatus{
		SocketPath: p.Socket,
		WorkDir:    p.WorkDir,
		ConfigPath: c.configPath,
	}
	info, err := daemonctl.Probe(p)
	if err != nil {
		return st, err
	}
	st.PID = info.PID
	st.LockHeld = info.Running
	st.SocketReady = info.SocketReady
	if _, err := os.Stat(p.Socket); err == nil {
		st.SocketExists = true
	}
	st.Running = info.Running && daemon.ProcessAlive(info.PID)
	st.StalePID = st.PID > 0 && !st.Running
	return st, nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"icxpd/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand(ctx))
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := ctx.workDir()
			if err != nil {
				return fmt.Errorf("determine work directory: %w", err)
			}
			target := strings.TrimSpace(targetPath)
			if target == "" {
				target = filepath.Join(dir, "config.toml")
			}
			target, err = config.ExpandPath(target, dir)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			if _, err := os.Stat(ctx.configPath); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, cfg)
			}
			l := cfg.Listener
			rows := [][]string{
				{"paths.work_dir", cfg.Paths.WorkDir},
				{"paths.socket", cfg.SocketPath()},
				{"listener.command_queue_size", strconv.Itoa(l.CommandQueueSize)},
				{"listener.max_line_bytes", strconv.Itoa(l.MaxLineBytes)},
				{"listener.shutdown_connect", fmt.Sprintf("%d x %s", l.ShutdownConnectAttempts, l.ShutdownConnectDelay())},
				{"listener.shutdown_poll", fmt.Sprintf("%d x %s", l.ShutdownPollAttempts, l.ShutdownPollInterval())},
				{"listener.drain_timeout", l.DrainTimeout().String()},
				{"logging.level", valueOrDefault(cfg.Logging.Level, "error")},
				{"logging.buffer_size", strconv.Itoa(cfg.Logging.BufferSize)},
				{"logging.retention_days", strconv.Itoa(cfg.Logging.RetentionDays)},
				{"daemon.heartbeat", cfg.Daemon.HeartbeatEvery().String()},
				{"daemon.watch_config", yesNo(cfg.Daemon.WatchConfig)},
			}
			for i, w := range cfg.Logging.Writers {
				desc := w.Kind + " " + w.JoinTimeout().String()
				if w.Path != "" {
					desc += " " + w.Path
				}
				rows = append(rows, []string{fmt.Sprintf("logging.writers[%d] %s", i, w.Name), desc})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			fmt.Fprintln(out, renderTable([]string{"Key", "Value"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

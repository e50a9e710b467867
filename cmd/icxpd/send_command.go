package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"icxpd/internal/command"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var checkJSON bool

	cmd := &cobra.Command{
		Use:   "send [line...]",
		Short: "Send command lines to the running daemon",
		Long: "Send writes each argument as one line to the daemon's command socket.\n" +
			"With no arguments, lines are read from stdin until EOF.",
		RunE: func(cmd *cobra.Command, args []string) error {
			lines := args
			if len(lines) == 0 {
				var err error
				lines, err = readLines(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}
			if len(lines) == 0 {
				return fmt.Errorf("no command lines to send")
			}
			for i, line := range lines {
				if strings.ContainsAny(line, "\r\n") {
					return fmt.Errorf("line %d contains a newline", i+1)
				}
				if checkJSON {
					if _, err := command.FromJSON(line); err != nil {
						return fmt.Errorf("line %d: %w", i+1, err)
					}
				}
			}

			conn, err := ctx.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			w := bufio.NewWriter(conn)
			for _, line := range lines {
				if _, err := w.WriteString(line + "\n"); err != nil {
					return fmt.Errorf("write command: %w", err)
				}
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("write command: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d line(s)\n", len(lines))
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkJSON, "json", false, "Reject lines that are not JSON-encoded commands before sending")
	return cmd
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return lines, nil
}

package listener

import (
	"bufio"
	"errors"
	"net"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"icxpd/internal/logging"
)

func (l *Listener) serveConn(conn net.Conn) {
	id := uuid.NewString()
	logger := l.logger.With(logging.String(logging.FieldConnection, id))
	defer l.untrack(conn)
	defer conn.Close()
	logger.Debug("connection accepted")

	scanner := bufio.NewScanner(conn)
	initial := 4096
	if l.opts.MaxLineBytes < initial {
		initial = l.opts.MaxLineBytes
	}
	scanner.Buffer(make([]byte, 0, initial), l.opts.MaxLineBytes)

	lines := 0
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == Sentinel {
			if l.State() == StateClosing {
				logger.Debug("close sentinel received")
				l.stopAccepting()
				return
			}
			logging.WarnWithContext(logger, "close sentinel ignored outside shutdown", "listener_sentinel_ignored",
				logging.String(logging.FieldImpact, "connection closed"),
			)
			return
		}
		if !utf8.ValidString(line) {
			logging.WarnWithContext(logger, "dropping connection with invalid UTF-8", "listener_invalid_utf8",
				logging.Int("line", lines+1),
				logging.String(logging.FieldErrorHint, "clients must send UTF-8 text lines"),
				logging.String(logging.FieldImpact, "remaining input on this connection is discarded"),
			)
			return
		}
		lines++
		cmd, err := l.opts.Parser.Parse(line)
		if err != nil {
			logging.WarnWithContext(logger, "unparsable command line skipped", "listener_parse_failed",
				logging.Error(err),
				logging.Int("line", lines),
				logging.String(logging.FieldImpact, "command ignored"),
			)
			continue
		}
		cmd.Source = id
		if cmd.Raw == "" {
			cmd.Raw = line
		}
		if err := l.commands.Send(l.ctx, cmd); err != nil {
			logger.Debug("command channel unavailable; dropping connection", logging.Error(err))
			return
		}
		l.forwarded.Add(1)
	}

	err := scanner.Err()
	switch {
	case err == nil:
		logger.Debug("connection closed by client", logging.Int("lines", lines))
	case errors.Is(err, bufio.ErrTooLong):
		logging.WarnWithContext(logger, "dropping connection with over-long line", "listener_line_too_long",
			logging.Int("max_line_bytes", l.opts.MaxLineBytes),
			logging.String(logging.FieldErrorHint, "split input into shorter lines or raise listener.max_line_bytes"),
			logging.String(logging.FieldImpact, "remaining input on this connection is discarded"),
		)
	case l.ctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, net.ErrClosed):
		logger.Debug("connection released by shutdown", logging.Int("lines", lines))
	default:
		logging.WarnWithContext(logger, "connection read failed", "listener_read_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "remaining input on this connection is discarded"),
		)
	}
}

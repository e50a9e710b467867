package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// ConsoleWriter renders records for humans through zerolog's console writer.
type ConsoleWriter struct {
	name    string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewConsoleWriter writes to out, or stderr when out is nil. Colour is only
// used when out is a terminal.
func NewConsoleWriter(name string, out io.Writer, timeout time.Duration) *ConsoleWriter {
	if out == nil {
		out = os.Stderr
	}
	if name == "" {
		name = "Console Writer"
	}
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal(out),
	}
	return &ConsoleWriter{
		name:    name,
		timeout: timeout,
		logger:  zerolog.New(output).Level(zerolog.TraceLevel),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (w *ConsoleWriter) Name() string { return w.name }

func (w *ConsoleWriter) JoinTimeout() time.Duration { return w.timeout }

func (w *ConsoleWriter) Run(sub *Subscription) error {
	return Consume(sub, func(rec Record) error {
		event := w.logger.WithLevel(zerologLevel(rec.Level)).
			Time(zerolog.TimestampFieldName, rec.Time).
			Str("target", rec.Target)
		if rec.File != "" {
			event = event.Str("source", rec.Source())
		}
		for _, f := range rec.Fields {
			event = event.Str(f.Key, f.Value)
		}
		event.Msg(rec.Message)
		return nil
	})
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		// zerolog's global level filters trace by default.
		return zerolog.DebugLevel
	}
}

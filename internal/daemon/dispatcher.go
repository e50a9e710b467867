package daemon

import (
	"context"
	"log/slog"
	"sync/atomic"

	"icxpd/internal/command"
	"icxpd/internal/logging"
)

// Handler executes one command.
type Handler interface {
	Handle(ctx context.Context, cmd command.Command) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd command.Command) error

func (f HandlerFunc) Handle(ctx context.Context, cmd command.Command) error { return f(ctx, cmd) }

// nopHandler accepts every command and does nothing with it.
type nopHandler struct {
	logger *slog.Logger
}

func (h nopHandler) Handle(_ context.Context, cmd command.Command) error {
	h.logger.Debug("command ignored", logging.String("command", cmd.String()))
	return nil
}

// dispatcher is the single consumer of the command channel.
type dispatcher struct {
	commands *command.Channel
	handler  Handler
	logger   *slog.Logger

	processed atomic.Uint64
	failed    atomic.Uint64
}

func newDispatcher(commands *command.Channel, handler Handler, logger *slog.Logger) *dispatcher {
	if handler == nil {
		handler = nopHandler{logger: logger}
	}
	return &dispatcher{commands: commands, handler: handler, logger: logger}
}

// run consumes commands until the channel is closed and drained or ctx ends.
func (d *dispatcher) run(ctx context.Context) {
	for {
		cmd, ok := d.commands.Receive(ctx)
		if !ok {
			return
		}
		d.logger.Debug("command received",
			logging.String("command", cmd.String()),
			logging.String(logging.FieldConnection, cmd.Source),
		)
		if err := d.handler.Handle(ctx, cmd); err != nil {
			d.failed.Add(1)
			logging.WarnWithContext(d.logger, "command failed", "command_failed",
				logging.String("command", cmd.String()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "the command had no effect"),
			)
			continue
		}
		d.processed.Add(1)
	}
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"icxpd/internal/command"
	"icxpd/internal/config"
	"icxpd/internal/listener"
	"icxpd/internal/logging"
)

// Daemon coordinates the command listener and dispatcher and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	base     *slog.Logger
	logger   *slog.Logger
	handler  Handler
	lock     *instanceLock
	commands *command.Channel

	mu         sync.Mutex
	listener   *listener.Listener
	dispatcher *dispatcher
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	started    time.Time

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	Uptime        time.Duration
	SocketPath    string
	LockPath      string
	ListenerState string
	Connections   int
	Accepted      uint64
	Forwarded     uint64
	Processed     uint64
	Failed        uint64
	QueueDepth    int
	QueueCapacity int
}

// New constructs a daemon. A nil handler ignores every command.
func New(cfg *config.Config, logger *slog.Logger, handler Handler) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if cfg.Listener.CommandQueueSize <= 0 {
		return nil, errors.New("daemon requires a positive command queue size")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	componentLogger := logging.NewComponentLogger(logger, "daemon")
	if handler == nil {
		handler = nopHandler{logger: componentLogger}
	}
	return &Daemon{
		cfg:      cfg,
		base:     logger,
		logger:   componentLogger,
		handler:  handler,
		lock:     newInstanceLock(cfg.LockPath()),
	}, nil
}

// ListenerOptions converts listener configuration into listener.Options.
func ListenerOptions(cfg config.Listener, logger *slog.Logger) listener.Options {
	return listener.Options{
		Parser:                  command.NopParser{},
		Logger:                  logger,
		MaxLineBytes:            cfg.MaxLineBytes,
		ShutdownConnectAttempts: cfg.ShutdownConnectAttempts,
		ShutdownConnectDelay:    cfg.ShutdownConnectDelay(),
		ShutdownPollAttempts:    cfg.ShutdownPollAttempts,
		ShutdownPollInterval:    cfg.ShutdownPollInterval(),
		DrainTimeout:            cfg.DrainTimeout(),
		AcceptRetryDelay:        cfg.AcceptRetryDelay(),
	}
}

// Start acquires the lock, writes the pid file, binds the socket and starts
// the dispatcher and heartbeat. Cancelling ctx does not stop the daemon; call
// Stop.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	commands, err := command.NewChannel(d.cfg.Listener.CommandQueueSize)
	if err != nil {
		return fmt.Errorf("command channel: %w", err)
	}
	if err := d.lock.acquire(); err != nil {
		return err
	}
	if err := writePID(d.cfg.PIDPath()); err != nil {
		_ = d.lock.release()
		return err
	}

	l, err := listener.Listen(d.cfg.SocketPath(), commands, ListenerOptions(d.cfg.Listener, d.base))
	if err != nil {
		_ = os.Remove(d.cfg.PIDPath())
		_ = d.lock.release()
		return fmt.Errorf("start listener: %w", err)
	}

	// The dispatcher outlives ctx: commands forwarded between cancellation
	// and Stop are still handled. Only Stop cancels runCtx.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.commands = commands
	d.listener = l
	d.cancel = cancel
	d.dispatcher = newDispatcher(d.commands, d.handler, d.logger)
	d.started = time.Now()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.dispatcher.run(runCtx)
	}()
	if every := d.cfg.Daemon.HeartbeatEvery(); every > 0 {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.heartbeat(runCtx, every)
		}()
	}

	d.running.Store(true)
	d.logger.Info("icxpd daemon started",
		logging.String("socket", l.Path()),
		logging.String("lock", d.cfg.LockPath()),
		logging.Int("pid", os.Getpid()),
	)
	return nil
}

// Stop shuts the listener down, drains queued commands and releases the
// lock. It returns the listener's shutdown error, if any.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return nil
	}

	var shutdownErr error
	if d.listener != nil {
		shutdownErr = d.listener.Shutdown(ctx)
		if shutdownErr != nil {
			logging.WarnWithContext(d.logger, "listener shutdown reported an error", "listener_shutdown_failed",
				logging.Error(shutdownErr),
				logging.String(logging.FieldImpact, "socket was still removed"),
			)
		}
	}

	// Queued commands are drained before the dispatcher exits; ctx bounds
	// the drain.
	d.commands.Close()
	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		d.cancel()
		<-drained
	}
	d.cancel()

	if err := os.Remove(d.cfg.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.release(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the lock is released when the process exits"),
		)
	}
	d.running.Store(false)
	d.logger.Info("icxpd daemon stopped",
		logging.Uint64("processed", d.dispatcher.processed.Load()),
		logging.Uint64("failed", d.dispatcher.failed.Load()),
	)
	return shutdownErr
}

// Close stops the daemon without a deadline.
func (d *Daemon) Close() error {
	return d.Stop(context.Background())
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		SocketPath:    d.cfg.SocketPath(),
		LockPath:      d.cfg.LockPath(),
		QueueCapacity: d.cfg.Listener.CommandQueueSize,
		ListenerState: listener.StateInitialized.String(),
	}
	if d.commands != nil {
		st.QueueDepth = d.commands.Len()
	}
	if d.listener != nil {
		st.ListenerState = d.listener.State().String()
		st.Connections = d.listener.ActiveConnections()
		st.Accepted = d.listener.Accepted()
		st.Forwarded = d.listener.Forwarded()
	}
	if d.dispatcher != nil {
		st.Processed = d.dispatcher.processed.Load()
		st.Failed = d.dispatcher.failed.Load()
	}
	if st.Running {
		st.Uptime = time.Since(d.started)
	}
	return st
}

func (d *Daemon) heartbeat(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.logger.Debug("heartbeat",
				logging.Uint64("processed", d.dispatcher.processed.Load()),
				logging.Int("queue_depth", d.commands.Len()),
				logging.Int("connections", d.listener.ActiveConnections()),
				logging.String(logging.FieldEventType, "daemon_heartbeat"),
			)
		}
	}
}

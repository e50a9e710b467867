package listener

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"icxpd/internal/logging"
)

// Shutdown stops the listener gracefully: it wakes the accept loop through
// the socket itself, waits a bounded time for confirmation and then tears
// down. The socket file is gone when Shutdown returns. Concurrent and
// repeated calls are safe; only the first runs the handshake. A non-nil
// error reports an unexpected I/O failure during the handshake; teardown
// has still completed.
func (l *Listener) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l.mu.Lock()
	switch l.state {
	case StateInitialized:
		l.mu.Unlock()
		return l.Close()
	case StateClosing, StateClosed:
		l.mu.Unlock()
		select {
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	l.state = StateClosing
	l.mu.Unlock()

	l.logger.Debug("shutdown requested")
	err := l.handshake(ctx)
	l.teardown()
	return err
}

func (l *Listener) handshake(ctx context.Context) error {
	conn, err := l.dialSelf(ctx)
	if err != nil || conn == nil {
		return err
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(l.opts.ShutdownConnectDelay * time.Duration(l.opts.ShutdownConnectAttempts)))
	if _, err := conn.Write([]byte(Sentinel + "\n")); err != nil {
		return ioError("shutdown write", l.path, err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return ioError("shutdown close write", l.path, err)
		}
	}

	for attempt := 0; attempt < l.opts.ShutdownPollAttempts; attempt++ {
		select {
		case <-l.control:
			l.logger.Debug("accept loop confirmed shutdown", logging.Int("polls", attempt))
			return nil
		case <-l.done:
			return nil
		case <-ctx.Done():
			l.giveUp(attempt)
			return nil
		case <-time.After(l.opts.ShutdownPollInterval):
		}
	}
	l.giveUp(l.opts.ShutdownPollAttempts)
	return nil
}

func (l *Listener) giveUp(polls int) {
	logging.WarnWithContext(l.logger, "gave up waiting for accept loop", "listener_shutdown_unconfirmed",
		logging.Int("polls", polls),
		logging.String(logging.FieldImpact, "teardown proceeds without confirmation"),
	)
}

// dialSelf connects to the listener's own socket. Errors classified by
// notReady are retried; other errors are returned. Exhausting the budget is
// logged, not returned.
func (l *Listener) dialSelf(ctx context.Context) (net.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= l.opts.ShutdownConnectAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, l.opts.ShutdownConnectDelay*4)
		conn, err := l.dial(dialCtx, "unix", l.path)
		cancel()
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, nil
		}
		if !notReady(err) {
			return nil, ioError("shutdown connect", l.path, err)
		}
		lastErr = err
		select {
		case <-time.After(l.opts.ShutdownConnectDelay):
		case <-l.done:
			return nil, nil
		case <-ctx.Done():
			return nil, nil
		}
	}
	logging.WarnWithContext(l.logger, "could not connect to own socket during shutdown", "listener_shutdown_connect_failed",
		logging.Int("attempts", l.opts.ShutdownConnectAttempts),
		logging.Error(lastErr),
		logging.String(logging.FieldImpact, "teardown proceeds without confirmation"),
	)
	return nil, nil
}

// notReady reports whether a self-connect failure is worth retrying: the
// socket file is missing or refusing, the backlog is full (EAGAIN on Linux
// unix sockets) or the per-attempt dial timeout expired.
func notReady(err error) bool {
	return errors.Is(err, unix.ENOENT) ||
		errors.Is(err, unix.ECONNREFUSED) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, context.DeadlineExceeded)
}

package listener

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"icxpd/internal/command"
	"icxpd/internal/logging"
)

// Sentinel is the reserved line Shutdown writes to its own socket. The NUL
// framing keeps it out of anything a client would type.
const Sentinel = "\x00icxpd:close\x00"

// State is the listener lifecycle position. Transitions only move forward.
type State int32

const (
	StateInitialized State = iota
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options tunes the listener. Zero values take the defaults from DefaultOptions.
type Options struct {
	Parser                  command.Parser
	Logger                  *slog.Logger
	MaxLineBytes            int
	ShutdownConnectAttempts int
	ShutdownConnectDelay    time.Duration
	ShutdownPollAttempts    int
	ShutdownPollInterval    time.Duration
	DrainTimeout            time.Duration
	AcceptRetryDelay        time.Duration
}

// DefaultOptions returns the built-in budgets.
func DefaultOptions() Options {
	return Options{
		Parser:                  command.NopParser{},
		MaxLineBytes:            64 * 1024,
		ShutdownConnectAttempts: 10,
		ShutdownConnectDelay:    50 * time.Millisecond,
		ShutdownPollAttempts:    20,
		ShutdownPollInterval:    25 * time.Millisecond,
		DrainTimeout:            500 * time.Millisecond,
		AcceptRetryDelay:        100 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Parser == nil {
		o.Parser = def.Parser
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = def.MaxLineBytes
	}
	if o.ShutdownConnectAttempts <= 0 {
		o.ShutdownConnectAttempts = def.ShutdownConnectAttempts
	}
	if o.ShutdownConnectDelay <= 0 {
		o.ShutdownConnectDelay = def.ShutdownConnectDelay
	}
	if o.ShutdownPollAttempts <= 0 {
		o.ShutdownPollAttempts = def.ShutdownPollAttempts
	}
	if o.ShutdownPollInterval <= 0 {
		o.ShutdownPollInterval = def.ShutdownPollInterval
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = def.DrainTimeout
	}
	if o.AcceptRetryDelay <= 0 {
		o.AcceptRetryDelay = def.AcceptRetryDelay
	}
	return o
}

// Listener owns one unix socket path and feeds its command channel.
type Listener struct {
	path     string
	commands *command.Channel
	opts     Options
	logger   *slog.Logger

	mu    sync.Mutex
	state State
	ln    net.Listener
	conns map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	acceptDone chan struct{}
	control    chan struct{}
	done       chan struct{}

	// dial connects to the listener's own socket during Shutdown.
	dial func(ctx context.Context, network, address string) (net.Conn, error)

	stopAcceptOnce sync.Once
	teardownOnce   sync.Once

	accepted  atomic.Uint64
	forwarded atomic.Uint64
}

// New validates the arguments and returns a listener in StateInitialized.
func New(path string, commands *command.Channel, opts Options) (*Listener, error) {
	if path == "" {
		return nil, genericError("new", path, ErrEmptyPath)
	}
	// sun_path needs room for the terminating NUL.
	if len(path) >= len(unix.RawSockaddrUnix{}.Path) {
		return nil, genericError("new", path, ErrPathTooLong)
	}
	if commands == nil {
		return nil, genericError("new", path, ErrNilChannel)
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		path:       path,
		commands:   commands,
		opts:       opts,
		logger:     logging.NewComponentLogger(opts.Logger, "listener"),
		conns:      make(map[net.Conn]struct{}),
		ctx:        ctx,
		cancel:     cancel,
		acceptDone: make(chan struct{}),
		control:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		dial:       (&net.Dialer{}).DialContext,
	}, nil
}

// Listen creates a listener and binds it in one step.
func Listen(path string, commands *command.Channel, opts Options) (*Listener, error) {
	l, err := New(path, commands, opts)
	if err != nil {
		return nil, err
	}
	if err := l.Listen(); err != nil {
		return nil, err
	}
	return l, nil
}

// Listen removes any stale socket file, binds and starts the accept loop.
// Bind failures are returned and never retried.
func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateInitialized {
		return genericError("listen", l.path, ErrAlreadyListening)
	}

	if _, err := os.Lstat(l.path); err == nil {
		if err := os.Remove(l.path); err != nil {
			return ioError("remove stale socket", l.path, err)
		}
		logging.WarnWithContext(l.logger, "stale socket removed", "listener_stale_socket",
			logging.String("socket", l.path),
			logging.String(logging.FieldErrorHint, "a previous daemon exited without cleanup"),
			logging.String(logging.FieldImpact, "none; the socket is recreated"),
		)
	}

	ln, err := net.Listen("unix", l.path)
	if err != nil {
		return ioError("bind", l.path, err)
	}
	l.ln = ln
	l.state = StateRunning
	go l.acceptLoop(ln)
	l.logger.Info("listening", logging.String("socket", l.path))
	return nil
}

// Path returns the socket path.
func (l *Listener) Path() string { return l.path }

// State reports the current lifecycle state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Done is closed once the listener reaches StateClosed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Accepted reports how many connections have been accepted.
func (l *Listener) Accepted() uint64 { return l.accepted.Load() }

// Forwarded reports how many commands reached the command channel.
func (l *Listener) Forwarded() uint64 { return l.forwarded.Load() }

// ActiveConnections reports the number of connections currently being served.
func (l *Listener) ActiveConnections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}

func (l *Listener) acceptLoop(ln net.Listener) {
	defer close(l.acceptDone)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || l.ctx.Err() != nil {
				l.logger.Debug("accept loop exiting")
				select {
				case l.control <- struct{}{}:
				default:
				}
				return
			}
			logging.WarnWithContext(l.logger, "accept failed", "listener_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check open file limits"),
				logging.String(logging.FieldImpact, "clients may fail to connect until resources free up"),
			)
			select {
			case <-time.After(l.opts.AcceptRetryDelay):
			case <-l.ctx.Done():
			}
			continue
		}
		if !l.track(conn) {
			_ = conn.Close()
			continue
		}
		l.accepted.Add(1)
		go l.serveConn(conn)
	}
}

// track registers conn unless teardown already released the handlers.
func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return false
	}
	l.conns[conn] = struct{}{}
	l.wg.Add(1)
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
	l.wg.Done()
}

// stopAccepting closes the net.Listener so a blocked Accept returns.
func (l *Listener) stopAccepting() {
	l.stopAcceptOnce.Do(func() {
		l.mu.Lock()
		ln := l.ln
		l.mu.Unlock()
		if ln != nil {
			_ = ln.Close()
		}
	})
}

// Close tears the listener down without the handshake. It is safe to call
// at any time and from deferred cleanup.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.state < StateClosing {
		l.state = StateClosing
	}
	l.mu.Unlock()
	l.teardown()
	return nil
}

func (l *Listener) teardown() {
	l.teardownOnce.Do(func() {
		l.mu.Lock()
		bound := l.ln != nil
		l.mu.Unlock()

		l.cancel()
		l.stopAccepting()

		l.mu.Lock()
		now := time.Now()
		for conn := range l.conns {
			_ = conn.SetReadDeadline(now)
		}
		l.mu.Unlock()

		drained := make(chan struct{})
		go func() {
			if bound {
				<-l.acceptDone
			}
			l.wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(l.opts.DrainTimeout):
			logging.WarnWithContext(l.logger, "connections still open after drain timeout", "listener_drain_timeout",
				logging.Int("connections", l.ActiveConnections()),
				logging.Duration("timeout", l.opts.DrainTimeout),
				logging.String(logging.FieldImpact, "remaining handlers finish in the background"),
			)
		}

		if bound {
			if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				logging.WarnWithContext(l.logger, "failed to remove socket", "listener_socket_cleanup_failed",
					logging.String("socket", l.path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "remove the socket file manually"),
					logging.String(logging.FieldImpact, "the next start removes it as stale"),
				)
			}
		}

		l.mu.Lock()
		l.state = StateClosed
		l.mu.Unlock()
		close(l.done)
		l.logger.Info("listener closed",
			logging.String("socket", l.path),
			logging.Uint64("accepted", l.accepted.Load()),
			logging.Uint64("forwarded", l.forwarded.Load()),
		)
	})
}

package logging

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAlreadyInstalled is returned by Open when a distributor is already the
// process-wide sink.
var ErrAlreadyInstalled = errors.New("logger already installed")

const (
	defaultTarget     = "icxpd"
	defaultBufferSize = 4096
)

// Options configures a Distributor.
type Options struct {
	// LevelOverride is used when ICXPD_LOG_LEVEL is unset or unrecognised.
	LevelOverride string
	// BufferSize is the ring capacity shared by all writers.
	BufferSize int
	// Fallback receives warnings when no writer can take a record and the
	// writer shutdown report. Defaults to os.Stderr.
	Fallback io.Writer
	// Target is the record target used when no component attribute is set.
	Target string
}

type registration struct {
	name    string
	timeout time.Duration
	done    chan writerExit
}

type writerExit struct {
	err      error
	panicked bool
}

// Distributor fans log records out to registered writers.
type Distributor struct {
	stream *Broadcast
	level  *slog.LevelVar
	target string

	fallbackMu sync.Mutex
	fallback   io.Writer

	mu      sync.Mutex
	writers []*registration
	closed  bool

	closeOnce sync.Once
	results   []WriterResult

	published atomic.Uint64
	dropped   atomic.Uint64
}

// New builds a distributor without installing it process-wide.
func New(opts Options) *Distributor {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = os.Stderr
	}
	target := strings.TrimSpace(opts.Target)
	if target == "" {
		target = defaultTarget
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(resolveLevel(opts.LevelOverride))
	return &Distributor{
		stream:   NewBroadcast(size),
		level:    levelVar,
		target:   target,
		fallback: fallback,
	}
}

var (
	installMu      sync.Mutex
	installed      *Distributor
	previousLogger *slog.Logger
	previousOutput io.Writer
	previousFlags  int
)

// Open creates a distributor and installs it as the slog default. Only one
// distributor may be installed at a time; see Reset.
func Open(opts Options) (*Distributor, error) {
	installMu.Lock()
	defer installMu.Unlock()
	if installed != nil {
		return nil, ErrAlreadyInstalled
	}
	d := New(opts)
	previousLogger = slog.Default()
	previousOutput = log.Writer()
	previousFlags = log.Flags()
	slog.SetDefault(d.Logger())
	installed = d
	return d, nil
}

// Installed returns the process-wide distributor, or nil.
func Installed() *Distributor {
	installMu.Lock()
	defer installMu.Unlock()
	return installed
}

// Reset uninstalls the process-wide distributor and restores the previous
// slog and log package defaults. It does not close the distributor.
func Reset() {
	installMu.Lock()
	defer installMu.Unlock()
	if installed == nil {
		return
	}
	// slog.SetDefault leaves the log package redirected when handed the
	// builtin handler, so restore it explicitly.
	slog.SetDefault(previousLogger)
	log.SetOutput(previousOutput)
	log.SetFlags(previousFlags)
	installed = nil
	previousLogger = nil
	previousOutput = nil
}

// Logger returns a slog logger whose records are published to this distributor.
func (d *Distributor) Logger() *slog.Logger {
	return slog.New(&handler{dist: d})
}

// Level reports the current minimum level.
func (d *Distributor) Level() slog.Level {
	return d.level.Level()
}

// SetLevel changes the minimum level at runtime.
func (d *Distributor) SetLevel(level slog.Level) {
	d.level.Set(level)
}

// Publish delivers rec to every writer. It never blocks. When nothing can
// receive the record a single warning line goes to the fallback writer.
func (d *Distributor) Publish(rec Record) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	if rec.Target == "" {
		rec.Target = d.target
	}
	if _, err := d.stream.Send(Message{Kind: MessageRecord, Record: rec}); err != nil {
		d.dropped.Add(1)
		d.warnf("No log writers available (dropped [%s] %s %s - %s)",
			rec.LevelName(), rec.Source(), rec.Target, strings.TrimSpace(rec.Message))
		return
	}
	d.published.Add(1)
}

// Published reports how many records reached at least one writer.
func (d *Distributor) Published() uint64 { return d.published.Load() }

// Dropped reports how many records fell back to the warning line.
func (d *Distributor) Dropped() uint64 { return d.dropped.Load() }

// Writers reports the number of registered writers.
func (d *Distributor) Writers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writers)
}

// AddWriter subscribes w and starts it on its own goroutine. The writer sees
// records published after this call only.
func (d *Distributor) AddWriter(w Writer) error {
	if w == nil {
		return errors.New("log writer is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	reg := &registration{
		name:    w.Name(),
		timeout: w.JoinTimeout(),
		done:    make(chan writerExit, 1),
	}
	sub := d.stream.Subscribe()
	go runWriter(w, sub, reg.done)
	d.writers = append(d.writers, reg)
	return nil
}

func runWriter(w Writer, sub *Subscription, done chan<- writerExit) {
	defer sub.Close()
	defer func() {
		if r := recover(); r != nil {
			done <- writerExit{err: fmt.Errorf("panic: %v", r), panicked: true}
		}
	}()
	err := w.Run(sub)
	done <- writerExit{err: err}
}

// Close signals every writer to stop and waits for each up to its own join
// timeout, measured from the start of Close. Problems are reported as
// warnings on the fallback writer and in the returned results; Close never
// blocks longer than the largest join timeout. Subsequent calls return the
// first call's results.
func (d *Distributor) Close() []WriterResult {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		regs := append([]*registration(nil), d.writers...)
		d.mu.Unlock()

		start := time.Now()
		_, _ = d.stream.Send(Message{Kind: MessageClose})
		d.stream.Close()

		results := make([]WriterResult, 0, len(regs))
		for _, reg := range regs {
			res := d.join(reg, start)
			results = append(results, res)
			switch res.Outcome {
			case OutcomeFailed:
				d.warnf("log writer %q finished with error: %v", res.Name, res.Err)
			case OutcomeAborted:
				d.warnf("log writer %q aborted: %v", res.Name, res.Err)
			case OutcomeTimedOut:
				d.warnf("log writer %q did not finish within %s and was forced to shut down", res.Name, reg.timeout)
			}
		}
		d.results = results
	})
	return d.results
}

func (d *Distributor) join(reg *registration, start time.Time) WriterResult {
	res := WriterResult{Name: reg.name}
	remaining := time.Until(start.Add(reg.timeout))
	if remaining < 0 {
		remaining = 0
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case exit := <-reg.done:
		res.Elapsed = time.Since(start)
		switch {
		case exit.panicked:
			res.Outcome = OutcomeAborted
			res.Err = exit.err
		case exit.err != nil:
			res.Outcome = OutcomeFailed
			res.Err = exit.err
		default:
			res.Outcome = OutcomeClean
		}
	case <-timer.C:
		// A writer that finished just as the timer fired still counts.
		select {
		case exit := <-reg.done:
			res.Elapsed = time.Since(start)
			res.Outcome = OutcomeClean
			if exit.panicked {
				res.Outcome, res.Err = OutcomeAborted, exit.err
			} else if exit.err != nil {
				res.Outcome, res.Err = OutcomeFailed, exit.err
			}
		default:
			res.Elapsed = time.Since(start)
			res.Outcome = OutcomeTimedOut
		}
	}
	return res
}

func (d *Distributor) warnf(format string, args ...any) {
	line := time.Now().Format(lineTimeFormat) + " - [WARN] " + fmt.Sprintf(format, args...) + "\n"
	d.fallbackMu.Lock()
	defer d.fallbackMu.Unlock()
	_, _ = io.WriteString(d.fallback, line)
}

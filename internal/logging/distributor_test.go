package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type collectWriter struct {
	mu      sync.Mutex
	records []Record
	closed  bool
}

func (*collectWriter) Name() string               { return "collect" }
func (*collectWriter) JoinTimeout() time.Duration { return time.Second }

func (w *collectWriter) Run(sub *Subscription) error {
	err := Consume(sub, func(rec Record) error {
		w.mu.Lock()
		w.records = append(w.records, rec)
		w.mu.Unlock()
		return nil
	})
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return err
}

func (w *collectWriter) snapshot() ([]Record, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Record(nil), w.records...), w.closed
}

type stuckWriter struct {
	timeout time.Duration
	release chan struct{}
}

func (*stuckWriter) Name() string                 { return "stuck" }
func (w *stuckWriter) JoinTimeout() time.Duration { return w.timeout }
func (w *stuckWriter) Run(*Subscription) error {
	<-w.release
	return nil
}

type failingWriter struct{}

func (failingWriter) Name() string               { return "failing" }
func (failingWriter) JoinTimeout() time.Duration { return time.Second }
func (failingWriter) Run(sub *Subscription) error {
	_ = Consume(sub, func(Record) error { return nil })
	return errors.New("disk full")
}

type panickingWriter struct{}

func (panickingWriter) Name() string               { return "panicking" }
func (panickingWriter) JoinTimeout() time.Duration { return time.Second }
func (panickingWriter) Run(*Subscription) error    { panic("boom") }

func TestDistributorDeliversAllRecordsInOrderBeforeClose(t *testing.T) {
	fallback := &syncBuffer{}
	d := New(Options{LevelOverride: "trace", Fallback: fallback})
	w := &collectWriter{}
	if err := d.AddWriter(w); err != nil {
		t.Fatalf("add writer: %v", err)
	}

	logger := d.Logger()
	const n = 200
	for i := 0; i < n; i++ {
		logger.Info(fmt.Sprintf("record %d", i))
	}
	results := d.Close()

	if len(results) != 1 || results[0].Outcome != OutcomeClean {
		t.Fatalf("unexpected results: %+v", results)
	}
	records, closed := w.snapshot()
	if !closed {
		t.Fatalf("writer did not observe close")
	}
	if len(records) != n {
		t.Fatalf("got %d records, want %d", len(records), n)
	}
	for i, rec := range records {
		if want := fmt.Sprintf("record %d", i); rec.Message != want {
			t.Fatalf("record %d = %q, want %q", i, rec.Message, want)
		}
	}
	if d.Published() != n {
		t.Fatalf("published = %d", d.Published())
	}
}

func TestDistributorWithoutWritersFallsBack(t *testing.T) {
	fallback := &syncBuffer{}
	d := New(Options{LevelOverride: "info", Fallback: fallback})
	d.Logger().Error("nobody listening")

	if !strings.Contains(fallback.String(), "No log writers available") {
		t.Fatalf("expected fallback warning, got %q", fallback.String())
	}
	if !strings.Contains(fallback.String(), "nobody listening") {
		t.Fatalf("fallback should mention the dropped message: %q", fallback.String())
	}
	if d.Dropped() != 1 {
		t.Fatalf("dropped = %d", d.Dropped())
	}
	if results := d.Close(); len(results) != 0 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestDistributorCloseBoundedByJoinTimeout(t *testing.T) {
	fallback := &syncBuffer{}
	d := New(Options{Fallback: fallback})
	stuck := &stuckWriter{timeout: 50 * time.Millisecond, release: make(chan struct{})}
	defer close(stuck.release)
	if err := d.AddWriter(stuck); err != nil {
		t.Fatalf("add writer: %v", err)
	}

	start := time.Now()
	results := d.Close()
	if elapsed := time.Since(start); elapsed >= 200*time.Millisecond {
		t.Fatalf("close took %s", elapsed)
	}
	if len(results) != 1 || results[0].Outcome != OutcomeTimedOut {
		t.Fatalf("unexpected results: %+v", results)
	}
	if !strings.Contains(fallback.String(), "forced to shut down") {
		t.Fatalf("expected forced shutdown warning, got %q", fallback.String())
	}
}

func TestDistributorReportsFailedAndAbortedWriters(t *testing.T) {
	fallback := &syncBuffer{}
	d := New(Options{Fallback: fallback})
	if err := d.AddWriter(failingWriter{}); err != nil {
		t.Fatalf("add failing: %v", err)
	}
	if err := d.AddWriter(panickingWriter{}); err != nil {
		t.Fatalf("add panicking: %v", err)
	}

	results := d.Close()
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Outcome != OutcomeFailed || results[0].Err == nil {
		t.Fatalf("failing writer: %+v", results[0])
	}
	if results[1].Outcome != OutcomeAborted {
		t.Fatalf("panicking writer: %+v", results[1])
	}
	out := fallback.String()
	if !strings.Contains(out, `"failing"`) || !strings.Contains(out, `"panicking"`) {
		t.Fatalf("warnings should name the writers: %q", out)
	}
}

func TestDistributorCloseIsIdempotent(t *testing.T) {
	d := New(Options{Fallback: &syncBuffer{}})
	_ = d.AddWriter(NullWriter{})
	first := d.Close()
	second := d.Close()
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Fatalf("close results differ: %+v vs %+v", first, second)
	}
	if err := d.AddWriter(NullWriter{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("add after close: %v", err)
	}
}

func TestDistributorLevelFiltering(t *testing.T) {
	t.Setenv(EnvLevel, "")
	d := New(Options{Fallback: &syncBuffer{}})
	if d.Level() != DefaultLevel {
		t.Fatalf("default level = %v", d.Level())
	}
	w := &collectWriter{}
	_ = d.AddWriter(w)
	logger := d.Logger()
	logger.Info("hidden")
	logger.Error("shown")
	d.SetLevel(LevelTrace)
	logger.Log(context.Background(), LevelTrace, "traced")
	d.Close()

	records, _ := w.snapshot()
	if len(records) != 2 || records[0].Message != "shown" || records[1].Message != "traced" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[1].LevelName() != "TRACE" {
		t.Fatalf("level name = %s", records[1].LevelName())
	}
}

func TestDistributorEnvironmentLevelWins(t *testing.T) {
	t.Setenv(EnvLevel, "DEBUG")
	d := New(Options{LevelOverride: "warn"})
	if d.Level() != slog.LevelDebug {
		t.Fatalf("level = %v, want debug", d.Level())
	}

	t.Setenv(EnvLevel, "bogus")
	d = New(Options{LevelOverride: "warn"})
	if d.Level() != slog.LevelWarn {
		t.Fatalf("level = %v, want warn", d.Level())
	}
}

func TestHandlerComponentBecomesTarget(t *testing.T) {
	d := New(Options{LevelOverride: "info", Fallback: &syncBuffer{}})
	w := &collectWriter{}
	_ = d.AddWriter(w)
	logger := NewComponentLogger(d.Logger(), "listener").WithGroup("conn")
	logger.Info("accepted", String("id", "abc"))
	d.Logger().Info("plain")
	d.Close()

	records, _ := w.snapshot()
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	rec := records[0]
	if rec.Target != "listener" {
		t.Fatalf("target = %q", rec.Target)
	}
	if len(rec.Fields) != 1 || rec.Fields[0].Key != "conn.id" || rec.Fields[0].Value != "abc" {
		t.Fatalf("fields = %+v", rec.Fields)
	}
	if rec.File == "" || rec.Line == 0 {
		t.Fatalf("missing source location: %+v", rec)
	}
	if records[1].Target != defaultTarget {
		t.Fatalf("default target = %q", records[1].Target)
	}
}

func TestOpenInstallsOnce(t *testing.T) {
	before := slog.Default()
	beforeOut := log.Writer()
	beforeFlags := log.Flags()

	d, err := Open(Options{Fallback: &syncBuffer{}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer Reset()
	if Installed() != d {
		t.Fatalf("installed distributor mismatch")
	}
	if _, err := Open(Options{}); !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("second open: %v", err)
	}

	d.Close()
	Reset()
	if Installed() != nil {
		t.Fatalf("reset left a distributor installed")
	}
	if slog.Default() != before {
		t.Fatalf("slog default not restored")
	}
	if log.Writer() != beforeOut || log.Flags() != beforeFlags {
		t.Fatalf("log package output not restored")
	}
}

package daemonrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"icxpd/internal/config"
	"icxpd/internal/daemon"
	"icxpd/internal/logging"
	"icxpd/internal/testsupport"
)

func TestRunServesUntilCanceled(t *testing.T) {
	testsupport.RequireUnixSockets(t)
	t.Setenv(logging.EnvLevel, "")
	cfg := testsupport.NewConfig(t,
		testsupport.WithLevel("debug"),
		testsupport.WithWriters(
			config.Writer{Kind: config.WriterFile, Name: "File Writer", Path: "logs/icxpd.log"},
			config.Writer{Kind: config.WriterJournal, Name: "Journal Writer", Path: "journal.db"},
		),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan daemon.Status, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, cfg, Options{Started: func(st daemon.Status) { started <- st }})
	}()

	select {
	case st := <-started:
		if !st.Running {
			t.Fatalf("daemon not running: %+v", st)
		}
	case err := <-errCh:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not start")
	}

	testsupport.SendLines(t, cfg.SocketPath(), "hello daemon")
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	if _, err := os.Stat(cfg.SocketPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("socket left behind: %v", err)
	}
	if logging.Installed() != nil {
		t.Fatal("logger still installed after run")
	}

	data, err := os.ReadFile(filepath.Join(cfg.Paths.WorkDir, "logs", "icxpd.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	for _, want := range []string{"icxpd daemon started", "hello daemon", "icxpd daemon stopped"} {
		if !strings.Contains(text, want) {
			t.Fatalf("log file missing %q:\n%s", want, text)
		}
	}

	store := testsupport.MustOpenJournalAt(t, filepath.Join(cfg.Paths.WorkDir, "journal.db"))
	n, err := store.Count(context.Background())
	if err != nil || n == 0 {
		t.Fatalf("journal count = %d (%v)", n, err)
	}
}

func TestRunRejectsSecondInstance(t *testing.T) {
	testsupport.RequireUnixSockets(t)
	cfg := testsupport.NewConfig(t)

	first, err := daemon.New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer first.Close()

	err = Run(context.Background(), cfg, Options{})
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestBuildWriters(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWriters(
		config.Writer{Kind: config.WriterNull, Name: "Null Writer"},
		config.Writer{Kind: config.WriterFile, Name: "File Writer", Path: "logs/x.log"},
	))
	writers, err := BuildWriters(cfg, true)
	if err != nil {
		t.Fatalf("build writers: %v", err)
	}
	names := make([]string, 0, len(writers))
	for _, w := range writers {
		names = append(names, w.Name())
	}
	if strings.Join(names, ",") != "Null Writer,File Writer,Console Writer" {
		t.Fatalf("writers = %v", names)
	}

	cfg.Logging.Writers = []config.Writer{{Kind: "bogus", Name: "x"}}
	if _, err := BuildWriters(cfg, false); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestApplyLevelRespectsEnvironment(t *testing.T) {
	d := logging.New(logging.Options{LevelOverride: "error"})
	logger := logging.NewNop()

	t.Setenv(logging.EnvLevel, "")
	applyLevel(d, logger, "debug")
	if d.Level().String() != "DEBUG" {
		t.Fatalf("level = %v", d.Level())
	}

	t.Setenv(logging.EnvLevel, "warn")
	applyLevel(d, logger, "info")
	if d.Level().String() != "DEBUG" {
		t.Fatalf("environment should pin the level, got %v", d.Level())
	}
}

func TestPruneLogsRemovesExpiredRotations(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWriters(
		config.Writer{Kind: config.WriterFile, Name: "File Writer", Path: "logs/icxpd.log"},
	))
	cfg.Logging.RetentionDays = 7
	live := cfg.Logging.Writers[0].Path
	if err := os.MkdirAll(filepath.Dir(live), 0o755); err != nil {
		t.Fatal(err)
	}

	var rotated []string
	for _, age := range []int{30, 1} {
		if err := os.WriteFile(live, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		path, err := logging.RotateFile(live, time.Now().AddDate(0, 0, -age))
		if err != nil {
			t.Fatalf("rotate: %v", err)
		}
		rotated = append(rotated, path)
	}

	pruneLogs(context.Background(), logging.NewNop(), cfg)

	if _, err := os.Stat(rotated[0]); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expired rotation kept: %v", err)
	}
	if _, err := os.Stat(rotated[1]); err != nil {
		t.Fatalf("recent rotation removed: %v", err)
	}
}

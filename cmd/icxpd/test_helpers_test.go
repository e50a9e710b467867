package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"icxpd/internal/logging"
	"icxpd/internal/testsupport"
)

const testConfig = `[listener]
shutdown_connect_delay_ms = 10
shutdown_poll_interval_ms = 10
drain_timeout_ms = 200
accept_retry_delay_ms = 10

[logging]
level = "debug"
retention_days = 0

[[logging.writers]]
kind = "journal"
path = "journal.db"

[daemon]
watch_config = false
`

// newWorkDir returns a short work directory holding a test config.
func newWorkDir(t *testing.T) string {
	t.Helper()
	dir := testsupport.ShortTempDir(t)
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(testConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLIContext(context.Background(), t, "", args...)
}

func runCLIContext(ctx context.Context, t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// startTestDaemon runs `icxpd daemon` in the background and waits for its socket.
func startTestDaemon(t *testing.T, dir string) {
	t.Helper()
	testsupport.RequireUnixSockets(t)
	t.Setenv(logging.EnvLevel, "")
	t.Setenv("ICXPD_HOME", "")
	t.Setenv("ICXPD_CONFIG", "")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := runCLIContext(ctx, t, "", "--workdir", dir, "daemon")
		errCh <- err
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("daemon exited with error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	socket := filepath.Join(dir, "icxpd.sock")
	ready := testsupport.WaitFor(t, 5*time.Second, func() bool {
		_, err := os.Stat(socket)
		return err == nil
	})
	if !ready {
		t.Fatal("daemon socket never appeared")
	}
}

func requireContains(t *testing.T, text string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

package daemonctl_test

import (
	"errors"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"icxpd/internal/daemonctl"
	"icxpd/internal/testsupport"
)

const helperEnv = "ICXPD_DAEMONCTL_HELPER"

// TestHelperDaemon impersonates a running daemon when launched by the tests
// below: it holds the lock, writes its pid and listens on the socket.
func TestHelperDaemon(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		t.Skip("helper process only")
	}
	dir := os.Getenv("ICXPD_DAEMONCTL_DIR")
	if mode == "ignore-term" {
		signal.Ignore(syscall.SIGTERM)
	}
	lock := flock.New(filepath.Join(dir, "icxpd.lock"))
	if ok, err := lock.TryLock(); err != nil || !ok {
		os.Exit(3)
	}
	ln, err := net.Listen("unix", filepath.Join(dir, "icxpd.sock"))
	if err != nil {
		os.Exit(4)
	}
	defer ln.Close()
	if err := os.WriteFile(filepath.Join(dir, "icxpd.pid"), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		os.Exit(5)
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			os.Exit(0)
		}
		_ = conn.Close()
	}
}

func testPaths(dir string) daemonctl.Paths {
	return daemonctl.Paths{
		WorkDir: dir,
		Socket:  filepath.Join(dir, "icxpd.sock"),
		Lock:    filepath.Join(dir, "icxpd.lock"),
		PID:     filepath.Join(dir, "icxpd.pid"),
	}
}

func startHelper(t *testing.T, mode string) (daemonctl.Paths, *exec.Cmd) {
	t.Helper()
	testsupport.RequireUnixSockets(t)
	dir := testsupport.ShortTempDir(t)
	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperDaemon$")
	cmd.Env = append(os.Environ(), helperEnv+"="+mode, "ICXPD_DAEMONCTL_DIR="+dir)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-exited
	})

	p := testPaths(dir)
	if err := daemonctl.WaitForSocket(p.Socket, 5*time.Second); err != nil {
		t.Fatalf("helper never listened: %v", err)
	}
	ok := testsupport.WaitFor(t, 5*time.Second, func() bool {
		_, err := os.Stat(p.PID)
		return err == nil
	})
	if !ok {
		t.Fatal("helper never wrote its pid")
	}
	return p, cmd
}

func TestProbeEmptyWorkDir(t *testing.T) {
	p := testPaths(t.TempDir())
	info, err := daemonctl.Probe(p)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.Running || info.PID != 0 || info.SocketReady {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := daemonctl.StopAndTerminate(p, 100*time.Millisecond); !errors.Is(err, daemonctl.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestWaitForSocketTimesOut(t *testing.T) {
	p := testPaths(t.TempDir())
	start := time.Now()
	if err := daemonctl.WaitForSocket(p.Socket, 150*time.Millisecond); err == nil {
		t.Fatal("expected timeout")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("wait overran its timeout")
	}
}

func TestStopSignalsRunningDaemon(t *testing.T) {
	p, cmd := startHelper(t, "normal")

	info, err := daemonctl.Probe(p)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !info.Running || !info.SocketReady || info.PID != cmd.Process.Pid {
		t.Fatalf("unexpected info %+v (helper pid %d)", info, cmd.Process.Pid)
	}

	res, err := daemonctl.StopAndTerminate(p, 5*time.Second)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.ForcedKill || res.PID != cmd.Process.Pid {
		t.Fatalf("unexpected result %+v", res)
	}
	info, err = daemonctl.Probe(p)
	if err != nil {
		t.Fatalf("probe after stop: %v", err)
	}
	if info.Running {
		t.Fatal("daemon still running after stop")
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	p, _ := startHelper(t, "ignore-term")

	res, err := daemonctl.StopAndTerminate(p, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !res.ForcedKill {
		t.Fatalf("expected forced kill, got %+v", res)
	}
	for _, path := range []string{p.PID, p.Socket} {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s left behind: %v", path, err)
		}
	}
}

func TestEnsureStartedReportsRunningDaemon(t *testing.T) {
	p, cmd := startHelper(t, "normal")
	res, err := daemonctl.EnsureStarted("/nonexistent/icxpd", p, daemonctl.LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("ensure started: %v", err)
	}
	if res.State != daemonctl.StartStateAlreadyRunning || res.PID != cmd.Process.Pid {
		t.Fatalf("unexpected result %+v", res)
	}
}

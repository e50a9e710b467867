// Package daemonctl starts and stops a detached icxpd daemon from the CLI.
//
// A daemon is considered running while it holds the work directory lock.
// Stop sends SIGTERM, waits for the lock to be released and escalates to
// SIGKILL after the grace period, cleaning up the pid and socket files the
// killed process could not remove.
package daemonctl

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"icxpd/internal/daemon"
)

// ErrNotRunning indicates no daemon holds the lock.
var ErrNotRunning = errors.New("daemon not running")

// Paths locates a daemon's runtime files.
type Paths struct {
	WorkDir string
	Socket  string
	Lock    string
	PID     string
	// Config is passed to the launched daemon when non-empty.
	Config string
}

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	LogLevel string
	// LogFile receives the daemon's stdout and stderr; empty discards them.
	LogFile string
}

// StartState describes the result of EnsureStarted.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Info reports what the runtime files say about the daemon.
type Info struct {
	Running     bool
	PID         int
	SocketReady bool
}

// Probe inspects the lock, pid file and socket.
func Probe(p Paths) (Info, error) {
	var info Info
	held, err := lockHeld(p.Lock)
	if err != nil {
		return info, err
	}
	info.Running = held
	if pid, err := daemon.ReadPID(p.PID); err == nil {
		info.PID = pid
	} else if !errors.Is(err, os.ErrNotExist) {
		return info, err
	}
	info.SocketReady = socketReady(p.Socket)
	return info, nil
}

// Launch starts a detached `icxpd daemon` process in its own session.
func Launch(executablePath string, p Paths, opts LaunchOptions) (*os.Process, error) {
	if strings.TrimSpace(executablePath) == "" {
		return nil, fmt.Errorf("resolve executable: executable path is empty")
	}
	args := []string{"--workdir", p.WorkDir}
	if cfg := strings.TrimSpace(p.Config); cfg != "" {
		args = append(args, "--config", cfg)
	}
	args = append(args, "daemon")
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if opts.LogFile != "" {
		out, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open daemon output: %w", err)
		}
		defer out.Close()
		proc.Stdout = out
		proc.Stderr = out
	}
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process, nil
}

// WaitForSocket polls until the socket accepts a connection.
func WaitForSocket(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if socketReady(socketPath) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon failed to start: socket %s not ready after %s", socketPath, timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// EnsureStarted launches the daemon unless one already holds the lock.
func EnsureStarted(executablePath string, p Paths, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	info, err := Probe(p)
	if err != nil {
		return StartResult{}, err
	}
	if info.Running {
		return StartResult{State: StartStateAlreadyRunning, PID: info.PID}, nil
	}
	proc, err := Launch(executablePath, p, opts)
	if err != nil {
		return StartResult{}, err
	}
	exited := make(chan error, 1)
	go func() {
		state, err := proc.Wait()
		if err == nil && !state.Success() {
			err = fmt.Errorf("daemon exited: %s", state)
		}
		exited <- err
	}()
	ready := make(chan error, 1)
	go func() { ready <- WaitForSocket(p.Socket, waitTimeout) }()
	select {
	case err := <-ready:
		if err != nil {
			return StartResult{}, err
		}
	case err := <-exited:
		if err == nil {
			err = errors.New("daemon exited during startup")
		}
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: proc.Pid}, nil
}

// StopAndTerminate signals the daemon and force-kills it if it still holds
// the lock after gracePeriod.
func StopAndTerminate(p Paths, gracePeriod time.Duration) (StopResult, error) {
	info, err := Probe(p)
	if err != nil {
		return StopResult{}, err
	}
	if !info.Running {
		return StopResult{PID: info.PID}, ErrNotRunning
	}
	if info.PID <= 0 {
		return StopResult{}, fmt.Errorf("daemon holds %s but pid file %s is missing", p.Lock, p.PID)
	}
	if info.PID == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", info.PID)
	}
	result := StopResult{PID: info.PID}
	if err := unix.Kill(info.PID, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("signal daemon %d: %w", info.PID, err)
	}
	if waitForRelease(p.Lock, gracePeriod) {
		return result, nil
	}

	if err := unix.Kill(info.PID, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon %d: %w", info.PID, err)
	}
	result.ForcedKill = true
	if !waitForRelease(p.Lock, gracePeriod) {
		return result, fmt.Errorf("daemon %d still holds %s after SIGKILL", info.PID, p.Lock)
	}
	for _, path := range []string{p.PID, p.Socket} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return result, fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return result, nil
}

func waitForRelease(lockPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		held, err := lockHeld(lockPath)
		if err == nil && !held {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func lockHeld(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return daemon.LockHeld(path)
}

func socketReady(path string) bool {
	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

package testsupport

import (
	"bufio"
	"net"
	"path/filepath"
	"testing"
	"time"
)

// RequireUnixSockets skips the test when the environment forbids binding
// unix sockets (some sandboxes do).
func RequireUnixSockets(t testing.TB) {
	t.Helper()
	path := filepath.Join(ShortTempDir(t), "probe.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	_ = ln.Close()
}

// SendLines dials the socket, writes each line with a trailing newline and
// closes the connection.
func SendLines(t testing.TB, path string, lines ...string) {
	t.Helper()
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	defer conn.Close()
	w := bufio.NewWriter(conn)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

// WaitFor polls cond until it returns true or the timeout expires.
func WaitFor(t testing.TB, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

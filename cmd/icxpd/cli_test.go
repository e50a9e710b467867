package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"icxpd/internal/logging"
	"icxpd/internal/testsupport"
)

func TestConfigInitWritesSample(t *testing.T) {
	dir := testsupport.ShortTempDir(t)

	out, _, err := runCLI(t, "--workdir", dir, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	target := filepath.Join(dir, "config.toml")
	requireContains(t, out, target)
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	requireContains(t, string(data), "[listener]", "[[logging.writers]]")

	if _, _, err := runCLI(t, "--workdir", dir, "config", "init"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already exists error, got %v", err)
	}
	if _, _, err := runCLI(t, "--workdir", dir, "config", "init", "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateAndShow(t *testing.T) {
	t.Setenv("ICXPD_CONFIG", "")
	dir := newWorkDir(t)

	out, _, err := runCLI(t, "--workdir", dir, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid", filepath.Join(dir, "config.toml"))

	out, _, err = runCLI(t, "--workdir", dir, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "logging.level", "debug", "Journal Writer", filepath.Join(dir, "journal.db"))
}

func TestConfigValidateRejectsUnknownKeys(t *testing.T) {
	t.Setenv("ICXPD_CONFIG", "")
	dir := testsupport.ShortTempDir(t)
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[listener]\nbogus = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, "--workdir", dir, "config", "validate"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSendWithoutDaemonExplainsMissingSocket(t *testing.T) {
	t.Setenv("ICXPD_CONFIG", "")
	dir := newWorkDir(t)
	_, _, err := runCLI(t, "--workdir", dir, "send", "hello")
	if err == nil || !strings.Contains(err.Error(), "icxpd daemon") {
		t.Fatalf("expected missing socket hint, got %v", err)
	}
}

func TestSendRejectsInvalidJSON(t *testing.T) {
	t.Setenv("ICXPD_CONFIG", "")
	dir := newWorkDir(t)
	_, _, err := runCLI(t, "--workdir", dir, "send", "--json", "not json")
	if err == nil || !strings.Contains(err.Error(), "json parser error") {
		t.Fatalf("expected json error, got %v", err)
	}
}

func TestStatusWhenStopped(t *testing.T) {
	t.Setenv("ICXPD_CONFIG", "")
	dir := newWorkDir(t)
	out, _, err := runCLI(t, "--workdir", dir, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st daemonStatus
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if st.Running || st.SocketExists {
		t.Fatalf("unexpected status %+v", st)
	}

	out, _, err = runCLI(t, "--workdir", dir, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "not running")
}

func TestDaemonRoundTrip(t *testing.T) {
	dir := newWorkDir(t)
	startTestDaemon(t, dir)

	out, _, err := runCLI(t, "--workdir", dir, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "running (pid", "[OK]")

	out, _, err = runCLI(t, "--workdir", dir, "send", "hello cli", "second line")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	requireContains(t, out, "sent 2 line(s)")

	_, _, err = runCLIContext(t.Context(), t, "from stdin\n\n", "--workdir", dir, "send")
	if err != nil {
		t.Fatalf("send stdin: %v", err)
	}

	if _, _, err := runCLI(t, "--workdir", dir, "daemon"); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("second daemon should fail, got %v", err)
	}

	var records []logging.Record
	found := testsupport.WaitFor(t, 5*time.Second, func() bool {
		out, _, err := runCLI(t, "--workdir", dir, "journal", "--target", "daemon", "--json")
		if err != nil {
			return false
		}
		records = nil
		if err := json.Unmarshal([]byte(out), &records); err != nil {
			return false
		}
		return strings.Contains(out, "hello cli") && strings.Contains(out, "from stdin")
	})
	if !found {
		t.Fatalf("journal never recorded the commands: %+v", records)
	}
	for _, rec := range records {
		if rec.Target != "daemon" {
			t.Fatalf("target filter leaked %+v", rec)
		}
	}

	out, _, err = runCLI(t, "--workdir", dir, "journal", "--level", "debug", "--limit", "5")
	if err != nil {
		t.Fatalf("journal table: %v", err)
	}
	requireContains(t, out, "Level", "Target", "DEBUG")
}

func TestLogsPrintsFileWriterRecords(t *testing.T) {
	t.Setenv("ICXPD_CONFIG", "")
	dir := testsupport.ShortTempDir(t)
	cfgText := "[[logging.writers]]\nkind = \"file\"\npath = \"logs/icxpd.log\"\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfgText), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := runCLI(t, "--workdir", dir, "logs"); err != nil {
		t.Fatalf("logs on missing file: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		t.Fatal(err)
	}
	var lines []string
	for _, msg := range []string{"first", "second", "third"} {
		data, err := json.Marshal(logging.Record{Time: time.Now(), Level: logging.LevelTrace, Target: "icxpd", Message: msg})
		if err != nil {
			t.Fatal(err)
		}
		lines = append(lines, string(data))
	}
	if err := os.WriteFile(filepath.Join(dir, "logs", "icxpd.log"), []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, "--workdir", dir, "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "[TRACE]", "second", "third")
	if strings.Contains(out, "first") {
		t.Fatalf("tail limit ignored:\n%s", out)
	}
}

func TestLogsRequiresFileWriter(t *testing.T) {
	t.Setenv("ICXPD_CONFIG", "")
	dir := newWorkDir(t)
	if _, _, err := runCLI(t, "--workdir", dir, "logs"); err == nil {
		t.Fatal("expected error without a file writer")
	}
}

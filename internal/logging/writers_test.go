package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileWriterWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "icxpd.log")
	fw, err := NewFileWriter("", path, time.Second)
	if err != nil {
		t.Fatalf("new file writer: %v", err)
	}
	if fw.Name() != "File Writer" {
		t.Fatalf("default name = %q", fw.Name())
	}

	d := New(Options{LevelOverride: "info", Fallback: &syncBuffer{}})
	if err := d.AddWriter(fw); err != nil {
		t.Fatalf("add writer: %v", err)
	}
	d.Logger().Info("first", String("k", "v"))
	d.Logger().Warn("second")
	results := d.Close()
	if results[0].Outcome != OutcomeClean {
		t.Fatalf("file writer outcome: %+v", results[0])
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	records, err := ReadRecords(f)
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].Message != "first" || records[0].LevelName() != "INFO" {
		t.Fatalf("first record: %+v", records[0])
	}
	if records[1].LevelName() != "WARN" {
		t.Fatalf("second level = %s", records[1].LevelName())
	}
	if len(records[0].Fields) != 1 || records[0].Fields[0].Value != "v" {
		t.Fatalf("fields = %+v", records[0].Fields)
	}
}

func TestFileWriterRejectsEmptyPath(t *testing.T) {
	if _, err := NewFileWriter("x", "  ", time.Second); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestConsoleWriterRendersPlainText(t *testing.T) {
	var out bytes.Buffer
	cw := NewConsoleWriter("", &out, time.Second)
	d := New(Options{LevelOverride: "debug", Fallback: &syncBuffer{}})
	_ = d.AddWriter(cw)
	NewComponentLogger(d.Logger(), "daemon").Debug("hello console", Int("n", 3))
	d.Close()

	text := out.String()
	for _, want := range []string{"hello console", "daemon", "n=3"} {
		if !strings.Contains(text, want) {
			t.Fatalf("console output %q missing %q", text, want)
		}
	}
	if strings.Contains(text, "\x1b[") {
		t.Fatalf("non-terminal output should not be coloured: %q", text)
	}
}

func TestRecordFormat(t *testing.T) {
	rec := Record{
		Time:    time.Date(2024, 3, 1, 10, 20, 30, 123456000, time.Local),
		Level:   LevelTrace,
		Target:  "icxpd",
		Message: "hello",
		Fields:  []Field{{Key: "path", Value: "a b"}},
	}
	got := rec.Format()
	want := `2024-03-01_10:20:30.123456 - [TRACE] ?file?:0 icxpd - hello path="a b"`
	if got != want {
		t.Fatalf("format = %q\nwant %q", got, want)
	}
}

func TestPruneRotated(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "icxpd.log")
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	rotate := func(at time.Time) string {
		t.Helper()
		if err := os.WriteFile(live, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := RotateFile(live, at)
		if err != nil {
			t.Fatalf("rotate: %v", err)
		}
		return got
	}
	oldest := rotate(now.AddDate(0, 0, -30))
	older := rotate(now.AddDate(0, 0, -10))
	recent := rotate(now.AddDate(0, 0, -1))
	if err := os.WriteFile(live, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Unrelated files are left alone even when they look old.
	others := []string{
		filepath.Join(dir, "icxpd.log.bak"),
		filepath.Join(dir, "other.log.20200101T000000.000Z"),
	}
	for _, p := range others {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := PruneRotated(nil, live, now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(removed) != 2 || removed[0] != oldest || removed[1] != older {
		t.Fatalf("removed = %v", removed)
	}
	for _, keep := range append([]string{live, recent}, others...) {
		if _, err := os.Stat(keep); err != nil {
			t.Fatalf("%s removed: %v", keep, err)
		}
	}

	if removed, err := PruneRotated(nil, filepath.Join(dir, "missing", "x.log"), now); err != nil || removed != nil {
		t.Fatalf("missing dir: (%v, %v)", removed, err)
	}
}

func TestRotatedAt(t *testing.T) {
	at, ok := RotatedAt("icxpd.log", "icxpd.log.20240506T070809.250Z")
	if !ok || !at.Equal(time.Date(2024, 5, 6, 7, 8, 9, 250_000_000, time.UTC)) {
		t.Fatalf("RotatedAt = (%v, %v)", at, ok)
	}
	for _, name := range []string{"icxpd.log", "icxpd.log.bak", "other.log.20240506T070809.250Z"} {
		if _, ok := RotatedAt("icxpd.log", name); ok {
			t.Fatalf("%q parsed as a rotation", name)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]bool{"TRACE": true, " Info ": true, "warn": true, "fatal": false, "": false}
	for in, ok := range cases {
		if _, got := ParseLevel(in); got != ok {
			t.Errorf("ParseLevel(%q) ok = %v, want %v", in, got, ok)
		}
	}
}

func TestRotateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "icxpd.log")

	if got, err := RotateFile(path, time.Now()); err != nil || got != "" {
		t.Fatalf("missing file: (%q, %v)", got, err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got, err := RotateFile(path, time.Now()); err != nil || got != "" {
		t.Fatalf("empty file: (%q, %v)", got, err)
	}
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	got, err := RotateFile(path, now)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if want := path + ".20240506T070809.000Z"; got != want {
		t.Fatalf("rotated to %q, want %q", got, want)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("original still present: %v", err)
	}
}

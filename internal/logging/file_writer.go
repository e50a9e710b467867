package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileWriter appends every record as one JSON object per line.
type FileWriter struct {
	name    string
	path    string
	timeout time.Duration
	file    *os.File
	buf     *bufio.Writer
	enc     *json.Encoder
}

// NewFileWriter starts a fresh log file at path. A non-empty file left by a
// previous run is rotated aside first (see RotateFile).
func NewFileWriter(name, path string, timeout time.Duration) (*FileWriter, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("file writer path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log dir: %w", err)
	}
	if _, err := RotateFile(trimmed, time.Now()); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", trimmed, err)
	}
	if strings.TrimSpace(name) == "" {
		name = "File Writer"
	}
	buf := bufio.NewWriter(file)
	return &FileWriter{
		name:    name,
		path:    trimmed,
		timeout: timeout,
		file:    file,
		buf:     buf,
		enc:     json.NewEncoder(buf),
	}, nil
}

func (w *FileWriter) Name() string { return w.name }

func (w *FileWriter) JoinTimeout() time.Duration { return w.timeout }

// Path returns the file being written.
func (w *FileWriter) Path() string { return w.path }

// Run encodes records until the stream closes, flushing whenever the
// subscription has nothing more buffered.
func (w *FileWriter) Run(sub *Subscription) error {
	err := Consume(sub, func(rec Record) error {
		if err := w.enc.Encode(rec); err != nil {
			return fmt.Errorf("encode log record: %w", err)
		}
		return w.buf.Flush()
	})
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	return errors.Join(err, flushErr, closeErr)
}

// RotateFile renames a non-empty file at path to path.<timestamp> and returns
// the new name. Missing or empty files are left alone and "" is returned.
func RotateFile(path string, now time.Time) (string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() == 0 {
		return "", nil
	}
	target := rotationName(path, now)
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("rotate log file: %w", err)
	}
	return target, nil
}

// ReadRecords decodes a file produced by FileWriter. Lines that fail to
// decode are skipped.
func ReadRecords(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var out []Record
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}

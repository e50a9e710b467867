package logs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"icxpd/internal/logging"
)

// maxLineBytes bounds a single record line.
const maxLineBytes = 1024 * 1024

// pollInterval re-reads the file when no filesystem event arrives, covering
// filesystems where inotify is unreliable.
const pollInterval = time.Second

// Result is a batch of decoded records plus the offset to resume from.
type Result struct {
	Records []logging.Record
	Offset  int64
	// Skipped counts lines that were not valid records.
	Skipped int
}

// Tail returns up to limit of the newest records in path. A missing file
// yields an empty result at offset zero.
func Tail(path string, limit int) (Result, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return Result{}, err
	}
	defer file.Close()

	res, err := scan(file, 0)
	if err != nil {
		return Result{}, err
	}
	if limit > 0 && len(res.Records) > limit {
		res.Records = res.Records[len(res.Records)-limit:]
	}
	if limit <= 0 {
		res.Records = nil
	}
	return res, nil
}

// ReadFrom returns every complete record after offset.
func ReadFrom(path string, offset int64) (Result, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return Result{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Result{}, fmt.Errorf("seek log file: %w", err)
	}
	return scan(file, offset)
}

// Follow calls fn for each record appended after offset until ctx ends or
// fn returns an error. Cancellation is not reported as an error.
func Follow(ctx context.Context, path string, offset int64, fn func(logging.Record) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create log watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch log directory: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	drain := func() error {
		res, err := ReadFrom(path, offset)
		if err != nil {
			return err
		}
		offset = res.Offset
		for _, rec := range res.Records {
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	}

	if err := drain(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				offset = 0
			}
			if err := drain(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("log watcher: %w", err)
		case <-ticker.C:
			if err := drain(); err != nil {
				return err
			}
		}
	}
}

func openLog(path string) (*os.File, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return file, nil
}

// scan decodes complete lines from r. A trailing line without a newline is
// left for the next read.
func scan(r io.Reader, offset int64) (Result, error) {
	res := Result{Offset: offset}
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			full := append([]byte(nil), line...)
			for errors.Is(err, bufio.ErrBufferFull) && len(full) <= maxLineBytes {
				line, err = reader.ReadSlice('\n')
				full = append(full, line...)
			}
			line = full
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			if errors.Is(err, bufio.ErrBufferFull) {
				return res, fmt.Errorf("log line at offset %d exceeds %d bytes", res.Offset, maxLineBytes)
			}
			return res, fmt.Errorf("read log file: %w", err)
		}
		res.Offset += int64(len(line))
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		var rec logging.Record
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
}

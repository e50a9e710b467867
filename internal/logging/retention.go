package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// rotationLayout is the suffix RotateFile appends to a rotated log file.
const rotationLayout = "20060102T150405.000Z"

// rotationName returns the rotated file name for path at now.
func rotationName(path string, now time.Time) string {
	return path + "." + now.UTC().Format(rotationLayout)
}

// RotatedAt parses the rotation time from a file name produced by RotateFile
// for the live file named base. ok is false for any other name.
func RotatedAt(base, name string) (time.Time, bool) {
	suffix, found := strings.CutPrefix(name, base+".")
	if !found {
		return time.Time{}, false
	}
	ts, err := time.Parse(rotationLayout, suffix)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// PruneRotated removes rotations of the log file at path that were rotated
// before cutoff, oldest first, and returns the removed paths. The live file
// and unrelated files in the directory are never touched. A missing
// directory is not an error.
func PruneRotated(logger *slog.Logger, path string, cutoff time.Time) ([]string, error) {
	dir, base := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list log directory: %w", err)
	}

	type rotation struct {
		path string
		at   time.Time
	}
	var expired []rotation
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		at, ok := RotatedAt(base, entry.Name())
		if !ok || !at.Before(cutoff) {
			continue
		}
		expired = append(expired, rotation{path: filepath.Join(dir, entry.Name()), at: at})
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].at.Before(expired[j].at) })

	var removed []string
	for _, r := range expired {
		if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			WarnWithContext(logger, "rotated log not pruned", "log_retention_failed",
				String("path", r.path),
				Error(err),
				String(FieldErrorHint, "check permissions on the log directory"),
				String(FieldImpact, "the rotated file stays on disk until the next start"),
			)
			continue
		}
		removed = append(removed, r.path)
	}
	if len(removed) > 0 && logger != nil {
		logger.Info("rotated logs pruned",
			String("log", path),
			Int("removed", len(removed)),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed, nil
}

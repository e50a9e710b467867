// Package workdir resolves and prepares the daemon's working directory.
//
// The working directory holds the command socket, the single-instance lock,
// the pid file, the optional config file and any file-backed log sinks. It
// defaults to a dotfile directory under the user's home directory.
package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultName is the directory created under $HOME when no override is given.
	DefaultName = ".icxp"
	// EnvHome overrides the full working directory path.
	EnvHome = "ICXPD_HOME"
)

// ErrNoHome indicates the user's home directory could not be determined.
var ErrNoHome = errors.New("unable to find home directory")

// Resolve returns the working directory for the given name. An empty name
// selects DefaultName. Absolute names and ICXPD_HOME are used as-is.
func Resolve(name string) (string, error) {
	if override := strings.TrimSpace(os.Getenv(EnvHome)); override != "" {
		return filepath.Abs(override)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name), nil
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "", ErrNoHome
	}
	return filepath.Join(home, name), nil
}

// Ensure creates the directory (and parents) when absent.
func Ensure(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("work directory path is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create work directory %q: %w", dir, err)
	}
	return nil
}

// ResolveAndEnsure resolves the directory for name and creates it.
func ResolveAndEnsure(name string) (string, error) {
	dir, err := Resolve(name)
	if err != nil {
		return "", err
	}
	if err := Ensure(dir); err != nil {
		return "", err
	}
	return dir, nil
}

package listener

import (
	"errors"
	"fmt"
)

// Kind classifies listener failures.
type Kind int

const (
	// KindGeneric covers configuration and state problems.
	KindGeneric Kind = iota
	// KindIO wraps a transport failure from the operating system.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	default:
		return "generic"
	}
}

var (
	ErrEmptyPath        = errors.New("socket path is empty")
	ErrPathTooLong      = errors.New("socket path exceeds the unix address limit")
	ErrNilChannel       = errors.New("command channel is nil")
	ErrAlreadyListening = errors.New("listener already started")
)

// Error is returned by every exported listener operation that fails.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("listener %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("listener %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsIO reports whether err is a listener I/O failure.
func IsIO(err error) bool {
	var lerr *Error
	return errors.As(err, &lerr) && lerr.Kind == KindIO
}

func genericError(op, path string, err error) error {
	return &Error{Kind: KindGeneric, Op: op, Path: path, Err: err}
}

func ioError(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

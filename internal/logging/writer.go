package logging

import (
	"context"
	"errors"
	"time"
)

// Writer is a pluggable log sink. Run consumes the subscription until it
// observes the close message (or ErrClosed) and returns; a non-nil error is
// reported as a failed shutdown for this writer.
type Writer interface {
	Name() string
	JoinTimeout() time.Duration
	Run(sub *Subscription) error
}

// Consume drives a subscription, calling handle for every record in order.
// It returns nil on the close message or a closed stream, and handle's
// error otherwise. Lag is tolerated: missed records are counted on the
// subscription and consumption continues.
func Consume(sub *Subscription, handle func(Record) error) error {
	for {
		msg, err := sub.Recv(context.Background())
		if err != nil {
			if errors.Is(err, ErrLagged) {
				continue
			}
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		if msg.Kind == MessageClose {
			return nil
		}
		if err := handle(msg.Record); err != nil {
			return err
		}
	}
}

// Outcome classifies how a writer finished during Close.
type Outcome int

const (
	// OutcomeClean means Run returned nil within the join timeout.
	OutcomeClean Outcome = iota
	// OutcomeFailed means Run returned an error.
	OutcomeFailed
	// OutcomeAborted means Run panicked.
	OutcomeAborted
	// OutcomeTimedOut means Run did not return within the join timeout.
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeFailed:
		return "failed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// WriterResult reports one writer's shutdown.
type WriterResult struct {
	Name    string
	Outcome Outcome
	Err     error
	Elapsed time.Duration
}

// NullWriter discards every record and returns once the stream closes.
type NullWriter struct {
	Timeout time.Duration
}

func (NullWriter) Name() string { return "Null Writer" }

func (w NullWriter) JoinTimeout() time.Duration {
	if w.Timeout <= 0 {
		return time.Second
	}
	return w.Timeout
}

func (NullWriter) Run(sub *Subscription) error {
	return Consume(sub, func(Record) error { return nil })
}

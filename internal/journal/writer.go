package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"icxpd/internal/logging"
)

const defaultBatchSize = 64

// Writer stores records in a journal Store. It owns the store and closes it
// when the log stream ends.
type Writer struct {
	name      string
	timeout   time.Duration
	store     *Store
	batchSize int
}

// NewWriter opens the journal at path and wraps it as a log writer.
func NewWriter(name, path string, timeout time.Duration) (*Writer, error) {
	store, err := Open(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "Journal Writer"
	}
	return &Writer{name: name, timeout: timeout, store: store, batchSize: defaultBatchSize}, nil
}

func (w *Writer) Name() string { return w.name }

func (w *Writer) JoinTimeout() time.Duration { return w.timeout }

// Run batches records while more are immediately available and commits a
// batch whenever the stream goes idle or the batch fills.
func (w *Writer) Run(sub *logging.Subscription) error {
	ctx := context.Background()
	batch := make([]logging.Record, 0, w.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := w.store.Append(ctx, batch...)
		batch = batch[:0]
		return err
	}

	var runErr error
	for {
		msg, err := w.next(sub, len(batch) > 0)
		if errors.Is(err, errIdle) {
			if runErr = flush(); runErr != nil {
				break
			}
			continue
		}
		if err != nil {
			if errors.Is(err, logging.ErrLagged) {
				continue
			}
			if !errors.Is(err, logging.ErrClosed) {
				runErr = err
			}
			break
		}
		if msg.Kind == logging.MessageClose {
			break
		}
		batch = append(batch, msg.Record)
		if len(batch) >= w.batchSize {
			if runErr = flush(); runErr != nil {
				break
			}
		}
	}
	if err := flush(); err != nil && runErr == nil {
		runErr = err
	}
	if err := w.store.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close journal: %w", err)
	}
	return runErr
}

var errIdle = errors.New("journal writer idle")

// next waits briefly when a batch is pending so that a quiet stream still
// gets committed; otherwise it blocks until the next message.
func (w *Writer) next(sub *logging.Subscription, pending bool) (logging.Message, error) {
	if !pending {
		return sub.Recv(context.Background())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	msg, err := sub.Recv(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return logging.Message{}, errIdle
	}
	return msg, err
}

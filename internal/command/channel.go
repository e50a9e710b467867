package command

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelClosed is returned by Send after Close.
var ErrChannelClosed = errors.New("command channel closed")

// Channel is a bounded multi-producer, single-consumer FIFO of commands.
// Producers block while the buffer is full; nothing is dropped.
type Channel struct {
	items chan Command

	closeOnce sync.Once
	closed    chan struct{}
}

// NewChannel creates a channel with the given capacity, which must be positive.
func NewChannel(capacity int) (*Channel, error) {
	if capacity <= 0 {
		return nil, errors.New("command channel capacity must be positive")
	}
	return &Channel{
		items:  make(chan Command, capacity),
		closed: make(chan struct{}),
	}, nil
}

// Send enqueues cmd, waiting for space. It returns ctx.Err() if the context
// ends first and ErrChannelClosed once the channel has been closed.
func (c *Channel) Send(ctx context.Context, cmd Command) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}
	select {
	case c.items <- cmd:
		return nil
	case <-c.closed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next command. ok is false when the channel is closed
// and fully drained, or when ctx ends.
func (c *Channel) Receive(ctx context.Context) (Command, bool) {
	select {
	case cmd := <-c.items:
		return cmd, true
	default:
	}
	select {
	case cmd := <-c.items:
		return cmd, true
	case <-c.closed:
		// Drain whatever was queued before close.
		select {
		case cmd := <-c.items:
			return cmd, true
		default:
			return Command{}, false
		}
	case <-ctx.Done():
		return Command{}, false
	}
}

// Close stops accepting new commands. Queued commands remain receivable.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Len reports the number of queued commands.
func (c *Channel) Len() int { return len(c.items) }

// Cap reports the channel capacity.
func (c *Channel) Cap() int { return cap(c.items) }

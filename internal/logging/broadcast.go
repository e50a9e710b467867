package logging

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned once the stream is closed and a subscriber has
	// consumed everything that was published before the close.
	ErrClosed = errors.New("log stream closed")
	// ErrNoReceivers is returned by Send when nobody is subscribed; the
	// message is not retained.
	ErrNoReceivers = errors.New("no log writers available")
	// ErrLagged is matched (errors.Is) by LagError.
	ErrLagged = errors.New("log subscriber lagged")
)

// LagError reports how many messages a slow subscriber missed. The
// subscription resumes at the oldest message still retained.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("log subscriber lagged behind by %d messages", e.Missed)
}

func (e *LagError) Is(target error) bool { return target == ErrLagged }

// MessageKind separates log records from stream control messages.
type MessageKind int

const (
	// MessageRecord carries a log record.
	MessageRecord MessageKind = iota
	// MessageClose tells writers to finish and return.
	MessageClose
)

// Message is one entry in the broadcast stream.
type Message struct {
	Kind   MessageKind
	Record Record
}

// Broadcast is a fixed-capacity ring with one cursor per subscriber.
// Send never blocks; slow subscribers lose the oldest messages instead.
type Broadcast struct {
	mu       sync.Mutex
	cond     *sync.Cond
	ring     []Message
	capacity uint64
	head     uint64 // sequence of the next message to be written
	subs     int
	closed   bool
}

// NewBroadcast constructs a stream retaining at most capacity messages.
func NewBroadcast(capacity int) *Broadcast {
	if capacity <= 0 {
		capacity = 1024
	}
	b := &Broadcast{
		ring:     make([]Message, capacity),
		capacity: uint64(capacity),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends msg for every current subscriber and reports how many there
// are. It fails with ErrNoReceivers when there are none and ErrClosed after
// Close.
func (b *Broadcast) Send(msg Message) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	if b.subs == 0 {
		return 0, ErrNoReceivers
	}
	b.ring[b.head%b.capacity] = msg
	b.head++
	b.cond.Broadcast()
	return b.subs, nil
}

// Subscribe returns a cursor positioned at the current head: only messages
// sent after this call are observed.
func (b *Broadcast) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs++
	return &Subscription{stream: b, next: b.head}
}

// Receivers reports the number of live subscriptions.
func (b *Broadcast) Receivers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs
}

// Close rejects further sends and wakes every waiting subscriber. Messages
// already in the ring remain readable.
func (b *Broadcast) Close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Subscription is a single reader's cursor. It must not be shared between
// goroutines.
type Subscription struct {
	stream *Broadcast
	next   uint64
	missed uint64
	done   bool
}

// Recv returns the next message, blocking until one is available, the
// stream is closed (ErrClosed) or ctx ends. A *LagError is returned when
// messages were overwritten before this subscriber read them; the next call
// continues from the oldest retained message.
func (s *Subscription) Recv(ctx context.Context) (Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	b := s.stream

	var stopWatch chan struct{}
	defer func() {
		if stopWatch != nil {
			close(stopWatch)
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if s.done {
			return Message{}, ErrClosed
		}
		if s.next < b.head {
			if oldest := b.oldestLocked(); s.next < oldest {
				missed := oldest - s.next
				s.next = oldest
				s.missed += missed
				return Message{}, &LagError{Missed: missed}
			}
			msg := b.ring[s.next%b.capacity]
			s.next++
			msg.Record = msg.Record.Clone()
			return msg, nil
		}
		if b.closed {
			return Message{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		if stopWatch == nil && ctx.Done() != nil {
			stopWatch = make(chan struct{})
			go func(done <-chan struct{}, stop <-chan struct{}) {
				select {
				case <-done:
					b.mu.Lock()
					b.cond.Broadcast()
					b.mu.Unlock()
				case <-stop:
				}
			}(ctx.Done(), stopWatch)
		}
		b.cond.Wait()
	}
}

// Missed reports the total number of messages this subscriber lost to lag.
func (s *Subscription) Missed() uint64 {
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()
	return s.missed
}

// Close releases the subscription. Further Recv calls return ErrClosed.
func (s *Subscription) Close() {
	b := s.stream
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	b.subs--
}

func (b *Broadcast) oldestLocked() uint64 {
	if b.head <= b.capacity {
		return 0
	}
	return b.head - b.capacity
}

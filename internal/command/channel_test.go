package command_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"icxpd/internal/command"
)

func TestNewChannelRejectsZeroCapacity(t *testing.T) {
	if _, err := command.NewChannel(0); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}

func TestChannelPreservesOrder(t *testing.T) {
	ch, err := command.NewChannel(4)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := ch.Send(ctx, command.Command{Kind: command.KindNop, Raw: fmt.Sprint(i)}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if ch.Len() != 4 || ch.Cap() != 4 {
		t.Fatalf("unexpected len/cap %d/%d", ch.Len(), ch.Cap())
	}
	for i := 0; i < 4; i++ {
		cmd, ok := ch.Receive(ctx)
		if !ok {
			t.Fatalf("Receive %d: channel reported closed", i)
		}
		if cmd.Raw != fmt.Sprint(i) {
			t.Fatalf("expected %d, got %s", i, cmd.Raw)
		}
	}
}

func TestChannelSendBlocksWhenFull(t *testing.T) {
	ch, _ := command.NewChannel(1)
	ctx := context.Background()
	if err := ch.Send(ctx, command.Command{Raw: "first"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	sent := make(chan error, 1)
	go func() { sent <- ch.Send(ctx, command.Command{Raw: "second"}) }()

	select {
	case err := <-sent:
		t.Fatalf("expected Send to block on a full channel, returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if cmd, _ := ch.Receive(ctx); cmd.Raw != "first" {
		t.Fatalf("expected first, got %s", cmd.Raw)
	}
	select {
	case err := <-sent:
		if err != nil {
			t.Fatalf("blocked Send failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Send never completed")
	}
	if cmd, _ := ch.Receive(ctx); cmd.Raw != "second" {
		t.Fatalf("expected second, got %s", cmd.Raw)
	}
}

func TestChannelSendHonoursContext(t *testing.T) {
	ch, _ := command.NewChannel(1)
	_ = ch.Send(context.Background(), command.Command{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := ch.Send(ctx, command.Command{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestChannelCloseDrainsThenStops(t *testing.T) {
	ch, _ := command.NewChannel(2)
	ctx := context.Background()
	_ = ch.Send(ctx, command.Command{Raw: "queued"})
	ch.Close()
	ch.Close()

	if err := ch.Send(ctx, command.Command{}); !errors.Is(err, command.ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
	cmd, ok := ch.Receive(ctx)
	if !ok || cmd.Raw != "queued" {
		t.Fatalf("expected queued command after close, got %q ok=%v", cmd.Raw, ok)
	}
	if _, ok := ch.Receive(ctx); ok {
		t.Fatal("expected closed channel to report ok=false once drained")
	}
}

func TestChannelManyProducers(t *testing.T) {
	const producers, perProducer = 8, 50
	ch, _ := command.NewChannel(4)
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := ch.Send(ctx, command.Command{Source: fmt.Sprint(p), Raw: fmt.Sprint(i)}); err != nil {
					t.Errorf("Send: %v", err)
					return
				}
			}
		}(p)
	}
	go func() {
		wg.Wait()
		ch.Close()
	}()

	last := make(map[string]int)
	total := 0
	for {
		cmd, ok := ch.Receive(ctx)
		if !ok {
			break
		}
		var n int
		fmt.Sscan(cmd.Raw, &n)
		if prev, seen := last[cmd.Source]; seen && n != prev+1 {
			t.Fatalf("producer %s out of order: %d after %d", cmd.Source, n, prev)
		}
		last[cmd.Source] = n
		total++
	}
	if total != producers*perProducer {
		t.Fatalf("expected %d commands, got %d", producers*perProducer, total)
	}
}

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxlink/livebridge/pkg/gateway/live/protocol"
)

func TestFIFOOrder(t *testing.T) {
	q := New()
	q.Enqueue(protocol.Text{Text: "a"})
	q.Enqueue(protocol.Text{Text: "b"})
	q.Enqueue(protocol.Text{Text: "c"})

	for _, want := range []string{"a", "b", "c"} {
		ev, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if got := ev.(protocol.Text).Text; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New()
	got := make(chan protocol.Event, 1)
	go func() {
		ev, err := q.Dequeue(context.Background())
		if err != nil {
			return
		}
		got <- ev
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue(protocol.Pong{})

	select {
	case ev := <-got:
		if _, ok := ev.(protocol.Pong); !ok {
			t.Fatalf("expected Pong, got %T", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake")
	}
}

func TestDequeueHonorsContext(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not observe cancellation")
	}
}

func TestFlushThenSignal(t *testing.T) {
	q := New()
	q.Enqueue(protocol.Text{Text: "A"})
	q.Enqueue(protocol.Text{Text: "B"})
	q.Enqueue(protocol.Text{Text: "C"})

	if n := q.Flush(); n != 3 {
		t.Fatalf("flushed %d, want 3", n)
	}
	q.Enqueue(protocol.Interrupted{})
	q.Enqueue(protocol.Text{Text: "D"})

	ev, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if _, ok := ev.(protocol.Interrupted); !ok {
		t.Fatalf("expected Interrupted first, got %#v", ev)
	}
	ev, err = q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got := ev.(protocol.Text).Text; got != "D" {
		t.Fatalf("expected D to survive the flush, got %q", got)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty: %d", q.Len())
	}
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	q := New()
	q.Enqueue(protocol.Text{Text: "last"})
	q.Close()

	ev, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue after close: %v", err)
	}
	if got := ev.(protocol.Text).Text; got != "last" {
		t.Fatalf("got %q, want %q", got, "last")
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Enqueue after close is a no-op, not a panic.
	q.Enqueue(protocol.Text{Text: "dropped"})
	if q.Len() != 0 {
		t.Fatalf("enqueue after close should drop")
	}
}

func TestCloseWakesBlockedConsumer(t *testing.T) {
	q := New()
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("close did not wake consumer")
	}
}

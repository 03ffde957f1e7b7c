package notify

import (
	"context"
	"testing"
	"time"

	"github.com/agentmesh/corectl/internal/observability/events"
)

func TestFeedIgnoresUnrelatedEvents(t *testing.T) {
	n := New("", "")
	f := NewFeed(n)

	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.Run(ctx, bus)
		close(done)
	}()

	bus.Publish(events.Event{Component: "dispatcher", Op: "task_completed"})
	bus.Publish(events.Event{Component: "lock", Op: "file_force_locked", Agent: "agent-1", File: "main.go"})

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("feed did not shut down after context cancellation")
	}
}

func TestNotifierUnsupportedOffWindows(t *testing.T) {
	n := New("", "")
	if n.IsSupported() {
		t.Skip("running on an actual Windows host")
	}
	if err := n.Show("title", "message"); err == nil {
		t.Fatalf("expected an error pushing a toast on a non-Windows platform")
	}
}

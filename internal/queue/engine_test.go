package queue

import (
	"context"
	"testing"
	"time"

	"github.com/agentmesh/corectl/internal/coordtypes"
)

func newTask(id, file, prompt string, p coordtypes.Priority) coordtypes.Task {
	return coordtypes.Task{ID: id, File: file, Prompt: prompt, Type: "refactor", Priority: p, EnqueuedAt: time.Now()}
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := New(newTestStore(t), Config{})

	task := newTask("T1", "a.js", "do it", coordtypes.PriorityNormal)
	res, err := e.Enqueue(ctx, "claude", task)
	if err != nil {
		t.Fatal(err)
	}
	if res.Deduplicated {
		t.Fatal("first enqueue should not be deduplicated")
	}

	got, err := e.Dequeue(ctx, []string{"claude"}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got.Task.ID != "T1" {
		t.Fatalf("dequeued %q, want T1", got.Task.ID)
	}
}

// TestDedupIdempotence is spec §8 universal property 1.
func TestDedupIdempotence(t *testing.T) {
	ctx := context.Background()
	e := New(newTestStore(t), Config{})

	t1 := newTask("T1", "a.js", "refactor", coordtypes.PriorityNormal)
	t2 := newTask("T2", "a.js", "refactor", coordtypes.PriorityNormal) // same fingerprint

	r1, err := e.Enqueue(ctx, "claude", t1)
	if err != nil {
		t.Fatal(err)
	}
	if r1.Deduplicated {
		t.Fatal("first enqueue must be accepted")
	}

	r2, err := e.Enqueue(ctx, "claude", t2)
	if err != nil {
		t.Fatal(err)
	}
	if !r2.Deduplicated || r2.TaskID != "T1" {
		t.Fatalf("second enqueue should dedup to T1, got %+v", r2)
	}

	n, _ := e.s.ListLength(ctx, e.keys.Tier("claude", "normal"))
	if n != 1 {
		t.Fatalf("tier length = %d, want 1 (spec S3)", n)
	}
}

// TestPriorityPreemption is spec §8 scenario S1.
func TestPriorityPreemption(t *testing.T) {
	ctx := context.Background()
	e := New(newTestStore(t), Config{})

	for i, f := range []string{"a.js", "b.js", "c.js"} {
		task := newTask("normal-"+string(rune('1'+i)), f, "p", coordtypes.PriorityNormal)
		if _, err := e.Enqueue(ctx, "q", task); err != nil {
			t.Fatal(err)
		}
	}
	critical := newTask("critical-1", "d.js", "p", coordtypes.PriorityCritical)
	if _, err := e.Enqueue(ctx, "q", critical); err != nil {
		t.Fatal(err)
	}

	var order []string
	for i := 0; i < 4; i++ {
		r, err := e.Dequeue(ctx, []string{"q"}, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		order = append(order, string(r.Priority))
	}

	if order[0] != "critical" {
		t.Fatalf("first dequeue = %s, want critical", order[0])
	}
	for _, p := range order[1:] {
		if p != "normal" {
			t.Fatalf("expected remaining dequeues to be normal, got %v", order)
		}
	}
}

// TestStarvationEscape is spec §8 scenario S2 (scaled down for test speed).
func TestStarvationEscape(t *testing.T) {
	ctx := context.Background()
	e := New(newTestStore(t), Config{StarvationThreshold: 50 * time.Millisecond})

	low := newTask("low-1", "low.js", "p", coordtypes.PriorityLow)
	if _, err := e.Enqueue(ctx, "q", low); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	found := false
	for time.Now().Before(deadline) {
		// A distinct prompt per task keeps dedup from dropping the flood.
		id := "high-" + time.Now().String()
		high := newTask(id, "h.js", id, coordtypes.PriorityHigh)
		if _, err := e.Enqueue(ctx, "q", high); err != nil {
			t.Fatal(err)
		}
		r, err := e.Dequeue(ctx, []string{"q"}, time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		if r.Task.ID == "low-1" {
			found = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !found {
		t.Fatal("low priority task never escaped starvation")
	}
}

func TestRequeueIncrementsAttemptsAndExhausts(t *testing.T) {
	ctx := context.Background()
	e := New(newTestStore(t), Config{MaxAttempts: 2})

	task := newTask("T1", "a.js", "p", coordtypes.PriorityNormal)

	exhausted, err := e.Requeue(ctx, "q", task)
	if err != nil {
		t.Fatal(err)
	}
	if exhausted {
		t.Fatal("should not be exhausted after 1 attempt with MaxAttempts=2")
	}

	task.Attempts = 1
	exhausted, err = e.Requeue(ctx, "q", task)
	if err != nil {
		t.Fatal(err)
	}
	if !exhausted {
		t.Fatal("should be exhausted after 2 attempts with MaxAttempts=2")
	}

	n, _ := e.s.ListLength(ctx, e.keys.Failed("q"))
	if n != 1 {
		t.Fatalf("failed list length = %d, want 1", n)
	}
}

func TestCompleteProcessingUpdatesAverage(t *testing.T) {
	ctx := context.Background()
	e := New(newTestStore(t), Config{})

	task := newTask("T1", "a.js", "p", coordtypes.PriorityNormal)
	if err := e.s.ListPushFront(ctx, e.keys.Processing("q"), mustJSON(t, task)); err != nil {
		t.Fatal(err)
	}

	if err := e.CompleteProcessing(ctx, "q", task, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	stats, err := e.Stats(ctx, "q")
	if err != nil {
		t.Fatal(err)
	}
	for _, tier := range stats.Tiers {
		if tier.Priority == coordtypes.PriorityNormal && tier.AvgProcessingMS <= 0 {
			t.Fatal("expected positive avg processing time after completion")
		}
	}
}

func mustJSON(t *testing.T, task coordtypes.Task) string {
	t.Helper()
	data, err := task.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

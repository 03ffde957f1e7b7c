package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/agentmesh/corectl/internal/coordtypes"
	"github.com/agentmesh/corectl/internal/lock"
	"github.com/agentmesh/corectl/internal/queue"
	"github.com/agentmesh/corectl/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return store.New(store.NewFromRedis(rdb))
}

func TestRegisterAndHeartbeat(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	reg := New(s, time.Minute, nil)

	if err := reg.Register(ctx, "agent-1", "claude", []string{"testing", "architecture"}); err != nil {
		t.Fatal(err)
	}

	rec, err := reg.Get(ctx, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != coordtypes.AgentIdle {
		t.Fatalf("status = %s, want idle", rec.Status)
	}
	if len(rec.Capabilities) != 2 {
		t.Fatalf("capabilities = %v", rec.Capabilities)
	}

	task := coordtypes.Task{ID: "T1", Queue: "claude", File: "a.js", Prompt: "p", Priority: coordtypes.PriorityNormal, EnqueuedAt: time.Now()}
	if err := reg.Heartbeat(ctx, "agent-1", coordtypes.AgentWorking, &task); err != nil {
		t.Fatal(err)
	}

	rec, err = reg.Get(ctx, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != coordtypes.AgentWorking {
		t.Fatalf("status = %s, want working", rec.Status)
	}
	if rec.CurrentTaskID != "T1" {
		t.Fatalf("current task id = %q, want T1", rec.CurrentTaskID)
	}
}

func TestHeartbeatAllowsRepeatedSameStatus(t *testing.T) {
	ctx := context.Background()
	reg := New(newTestStore(t), time.Minute, nil)

	if err := reg.Register(ctx, "agent-1", "claude", nil); err != nil {
		t.Fatal(err)
	}
	// Repeated heartbeats at the same status are a refresh, not a
	// transition, and must not be rejected by the state machine.
	if err := reg.Heartbeat(ctx, "agent-1", coordtypes.AgentIdle, nil); err != nil {
		t.Fatalf("idle -> idle refresh should be allowed: %v", err)
	}
}

func TestHeartbeatRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	reg := New(newTestStore(t), time.Minute, nil)

	if err := reg.Register(ctx, "agent-1", "claude", nil); err != nil {
		t.Fatal(err)
	}
	// idle -> unreachable is a listed transition.
	if err := reg.Heartbeat(ctx, "agent-1", coordtypes.AgentUnreachable, nil); err != nil {
		t.Fatal(err)
	}
	// unreachable -> working is not: an unreachable agent must pass back
	// through idle before it can report working again.
	if err := reg.Heartbeat(ctx, "agent-1", coordtypes.AgentWorking, nil); err == nil {
		t.Fatal("expected invalid-transition error for unreachable -> working")
	}
}

func TestListActiveExcludesStopped(t *testing.T) {
	ctx := context.Background()
	reg := New(newTestStore(t), time.Minute, nil)

	if err := reg.Register(ctx, "a1", "claude", nil); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, "a2", "gpt", nil); err != nil {
		t.Fatal(err)
	}
	if err := reg.Heartbeat(ctx, "a2", coordtypes.AgentStopped, nil); err != nil {
		t.Fatal(err)
	}

	active, err := reg.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != "a1" {
		t.Fatalf("active = %+v, want only a1", active)
	}
}

// TestJanitorRecoversDeadWorker is spec §8 scenario S5.
func TestJanitorRecoversDeadWorker(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	reg := New(s, time.Minute, nil)
	qe := queue.New(s, queue.Config{})
	lm := lock.New(s, nil)
	j := NewJanitor(reg, qe, lm, 10*time.Millisecond)

	if err := reg.Register(ctx, "agent-1", "claude", nil); err != nil {
		t.Fatal(err)
	}

	task := coordtypes.Task{ID: "T1", File: "f.js", Prompt: "p", Type: "refactor", Priority: coordtypes.PriorityNormal, EnqueuedAt: time.Now()}
	if _, err := qe.Enqueue(ctx, "claude", task); err != nil {
		t.Fatal(err)
	}
	got, err := qe.Dequeue(ctx, []string{"claude"}, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	lr, err := lm.Acquire(ctx, "f.js", "agent-1", time.Minute)
	if err != nil || !lr.Granted {
		t.Fatalf("acquire: %v %+v", err, lr)
	}

	if err := reg.Heartbeat(ctx, "agent-1", coordtypes.AgentWorking, &got.Task); err != nil {
		t.Fatal(err)
	}

	// Simulate death: the agent stops heartbeating. Directly invoke
	// MarkUnreachable rather than waiting out the janitor's scan interval.
	if err := j.MarkUnreachable(ctx, "agent-1"); err != nil {
		t.Fatal(err)
	}

	rec, err := reg.Get(ctx, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != coordtypes.AgentUnreachable {
		t.Fatalf("status = %s, want unreachable", rec.Status)
	}

	locks, err := lm.ListLocks(ctx, []string{"f.js"})
	if err != nil {
		t.Fatal(err)
	}
	if _, held := locks["f.js"]; held {
		t.Fatal("lock:f.js should be released")
	}

	requeued, err := qe.Dequeue(ctx, []string{"claude"}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if requeued.Task.ID != "T1" || requeued.Task.Attempts != 1 {
		t.Fatalf("requeued task = %+v, want T1 with attempts=1", requeued.Task)
	}
}

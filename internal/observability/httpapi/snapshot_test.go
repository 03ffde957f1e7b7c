package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/agentmesh/corectl/internal/consensus"
	"github.com/agentmesh/corectl/internal/coordtypes"
	"github.com/agentmesh/corectl/internal/lock"
	"github.com/agentmesh/corectl/internal/observability/metrics"
	"github.com/agentmesh/corectl/internal/queue"
	"github.com/agentmesh/corectl/internal/registry"
	"github.com/agentmesh/corectl/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return store.New(store.NewFromRedis(rdb))
}

func TestBuildSnapshotComposesEverySource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reg := registry.New(s, time.Minute, nil)
	if err := reg.Register(ctx, "agent-1", "claude", []string{"go"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	q := queue.New(s, queue.Config{})
	if _, err := q.Enqueue(ctx, "claude", coordtypes.Task{
		ID: "task-1", Queue: "claude", Priority: coordtypes.PriorityNormal, Type: "code",
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	lm := lock.New(s, nil)
	if _, err := lm.Acquire(ctx, "main.go", "agent-1", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	cons := consensus.New(s, nil)
	if _, err := cons.Request(ctx, "delete_file", []string{"main.go"}, "cleanup", 2, time.Minute, "agent-1"); err != nil {
		t.Fatalf("request: %v", err)
	}

	collector := metrics.NewCollector()
	collector.RecordTaskCompleted("agent-1")

	src := &sources{registry: reg, queues: q, locks: lm, consensus: cons, collector: collector}
	snap := src.Build(ctx)

	if len(snap.Agents) != 1 || snap.Agents[0].ID != "agent-1" {
		t.Fatalf("expected 1 agent in snapshot, got %+v", snap.Agents)
	}
	if len(snap.Queues) != 1 || snap.Queues[0].Queue != "claude" {
		t.Fatalf("expected 1 queue in snapshot, got %+v", snap.Queues)
	}
	if len(snap.Locks) != 1 || snap.Locks[0].Path != "main.go" {
		t.Fatalf("expected 1 lock in snapshot, got %+v", snap.Locks)
	}
	if len(snap.Consensus) != 1 || snap.Consensus[0].Operation != "delete_file" {
		t.Fatalf("expected 1 consensus request in snapshot, got %+v", snap.Consensus)
	}
	if snap.GeneratedAt.IsZero() {
		t.Fatalf("expected GeneratedAt to be set")
	}
}

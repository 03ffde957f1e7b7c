package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/agentmesh/corectl/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return store.New(store.NewFromRedis(rdb))
}

type recordingBus struct {
	events []string
}

func (b *recordingBus) PublishLockEvent(eventType, agent, file string) {
	b.events = append(b.events, eventType+":"+agent+":"+file)
}

// TestAcquireAtMostOneWriter is spec §8's universal property 2: at most one
// agent can hold a given file's lock at a time.
func TestAcquireAtMostOneWriter(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	m := New(newTestStore(t), bus)

	r1, err := m.Acquire(ctx, "a.js", "agent-a", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !r1.Granted {
		t.Fatal("first acquire should be granted")
	}

	r2, err := m.Acquire(ctx, "a.js", "agent-b", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if r2.Granted {
		t.Fatal("second acquire while held must be refused")
	}
	if r2.HeldBy != "agent-a" {
		t.Fatalf("held_by = %q, want agent-a", r2.HeldBy)
	}
	if r2.RemainingTTL <= 0 {
		t.Fatal("remaining ttl should be positive while lock is live")
	}

	if len(bus.events) != 1 || bus.events[0] != "file_claimed:agent-a:a.js" {
		t.Fatalf("unexpected events: %v", bus.events)
	}
}

// TestLockContention is spec §8 scenario S4: A acquires, B is blocked, A
// releases, B then acquires successfully.
func TestLockContention(t *testing.T) {
	ctx := context.Background()
	m := New(newTestStore(t), nil)

	r1, err := m.Acquire(ctx, "shared.go", "agent-a", time.Minute)
	if err != nil || !r1.Granted {
		t.Fatalf("agent-a acquire failed: %v %+v", err, r1)
	}

	r2, err := m.Acquire(ctx, "shared.go", "agent-b", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if r2.Granted {
		t.Fatal("agent-b should be blocked while agent-a holds the lock")
	}

	if err := m.Release(ctx, "shared.go", "agent-a", r1.LeaseID); err != nil {
		t.Fatal(err)
	}

	r3, err := m.Acquire(ctx, "shared.go", "agent-b", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !r3.Granted {
		t.Fatal("agent-b should acquire after agent-a releases")
	}
}

func TestReleaseRejectsWrongLease(t *testing.T) {
	ctx := context.Background()
	m := New(newTestStore(t), nil)

	r, err := m.Acquire(ctx, "a.js", "agent-a", time.Minute)
	if err != nil || !r.Granted {
		t.Fatalf("acquire failed: %v %+v", err, r)
	}

	if err := m.Release(ctx, "a.js", "agent-a", "wrong-lease"); err != ErrStale {
		t.Fatalf("release with wrong lease = %v, want ErrStale", err)
	}
	if err := m.Release(ctx, "a.js", "agent-b", r.LeaseID); err != ErrStale {
		t.Fatalf("release by wrong agent = %v, want ErrStale", err)
	}
}

func TestRenewExtendsTTLAndRejectsStale(t *testing.T) {
	ctx := context.Background()
	m := New(newTestStore(t), nil)

	r, err := m.Acquire(ctx, "a.js", "agent-a", time.Minute)
	if err != nil || !r.Granted {
		t.Fatalf("acquire failed: %v %+v", err, r)
	}

	if err := m.Renew(ctx, "a.js", "agent-a", r.LeaseID, 2*time.Minute); err != nil {
		t.Fatalf("renew: %v", err)
	}

	if err := m.Renew(ctx, "a.js", "agent-a", "wrong-lease", time.Minute); err != ErrStale {
		t.Fatalf("renew with wrong lease = %v, want ErrStale", err)
	}
}

func TestForceAcquireEvictsOwnerAndPublishes(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	m := New(newTestStore(t), bus)

	r, err := m.Acquire(ctx, "a.js", "agent-a", time.Minute)
	if err != nil || !r.Granted {
		t.Fatalf("acquire failed: %v %+v", err, r)
	}

	evicted, leaseID, err := m.ForceAcquire(ctx, "a.js", "agent-b", "agent-a unresponsive")
	if err != nil {
		t.Fatal(err)
	}
	if evicted != "agent-a" {
		t.Fatalf("evicted owner = %q, want agent-a", evicted)
	}
	if leaseID == "" {
		t.Fatal("expected a new lease id")
	}

	locks, err := m.ListLocks(ctx, []string{"a.js"})
	if err != nil {
		t.Fatal(err)
	}
	l, ok := locks["a.js"]
	if !ok {
		t.Fatal("expected a.js lock to exist")
	}
	if l.Owner != "agent-b" || !l.Forced || l.Reason != "agent-a unresponsive" {
		t.Fatalf("unexpected lock record: %+v", l)
	}

	found := false
	for _, e := range bus.events {
		if e == "file_force_locked:agent-b:a.js" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected file_force_locked event, got %v", bus.events)
	}
}

func TestListLocksSkipsAbsentPaths(t *testing.T) {
	ctx := context.Background()
	m := New(newTestStore(t), nil)

	if _, err := m.Acquire(ctx, "a.js", "agent-a", time.Minute); err != nil {
		t.Fatal(err)
	}

	locks, err := m.ListLocks(ctx, []string{"a.js", "missing.js"})
	if err != nil {
		t.Fatal(err)
	}
	if len(locks) != 1 {
		t.Fatalf("expected 1 lock, got %d", len(locks))
	}
	if _, ok := locks["missing.js"]; ok {
		t.Fatal("missing.js should not appear in result")
	}
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestStore spins up an in-process miniredis server and returns a Store
// bound to it, the same role miniredis plays in jordigilh-kubernaut's own
// Redis-backed package tests.
func newTestStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(NewFromRedis(rdb))
}

func TestListPushPop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ListPushFront(ctx, "k", "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.ListPushFront(ctx, "k", "b"); err != nil {
		t.Fatal(err)
	}
	// LPUSH a then b: list is [b, a]; tail (back) is "a".
	v, err := s.ListPopBack(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if v != "a" {
		t.Fatalf("ListPopBack = %q, want %q", v, "a")
	}
}

func TestListPopBackNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ListPopBack(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected ErrNotFound")
	}
}

func TestBlockingPopBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.ListPushFront(ctx, "k1", "v1"); err != nil {
		t.Fatal(err)
	}
	key, val, err := s.BlockingPopBack(ctx, []string{"k0", "k1"}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if key != "k1" || val != "v1" {
		t.Fatalf("got (%q, %q), want (k1, v1)", key, val)
	}
}

func TestListAtomicMoveTailToHead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.ListPushFront(ctx, "src", "x")

	v, err := s.ListAtomicMoveTailToHead(ctx, "src", "dst")
	if err != nil {
		t.Fatal(err)
	}
	if v != "x" {
		t.Fatalf("moved value = %q, want x", v)
	}
	n, _ := s.ListLength(ctx, "dst")
	if n != 1 {
		t.Fatalf("dst length = %d, want 1", n)
	}
}

func TestSortedSetRangeByScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.SortedSetAdd(ctx, "z", 10, "critical")
	s.SortedSetAdd(ctx, "z", 1, "normal")
	s.SortedSetAdd(ctx, "z", 0.1, "deferred")

	members, err := s.SortedSetRangeByScore(ctx, "z", 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2: %v", len(members), members)
	}
}

func TestHashOps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.HashSet(ctx, "h", "owner", "agent-1")
	v, err := s.HashGet(ctx, "h", "owner")
	if err != nil {
		t.Fatal(err)
	}
	if v != "agent-1" {
		t.Fatalf("got %q, want agent-1", v)
	}

	total, err := s.HashIncrBy(ctx, "h", "count", 1)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("count = %v, want 1", total)
	}

	all, err := s.HashGetAll(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if all["owner"] != "agent-1" {
		t.Fatalf("HashGetAll missing owner field: %v", all)
	}
}

func TestStringTTL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.StringSetWithTTL(ctx, "dedup:q:fp", "TASK-1", 300*time.Second); err != nil {
		t.Fatal(err)
	}
	v, err := s.StringGet(ctx, "dedup:q:fp")
	if err != nil {
		t.Fatal(err)
	}
	if v != "TASK-1" {
		t.Fatalf("got %q, want TASK-1", v)
	}
}

func TestMultiAtomicBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Multi(ctx, func(p Pipeline) error {
		p.ListPushFront("queue:q:p:normal", "TASK-1")
		p.SetAdd("queue:q:priorities", "normal")
		p.SortedSetAdd("queue:q:priority_weights", 1, "normal")
		p.HashIncrBy("queue:q:stats:enqueued:normal", "count", 1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	n, _ := s.ListLength(ctx, "queue:q:p:normal")
	if n != 1 {
		t.Fatalf("tier length = %d, want 1", n)
	}
	members, _ := s.SetMembers(ctx, "queue:q:priorities")
	if len(members) != 1 || members[0] != "normal" {
		t.Fatalf("priorities set = %v, want [normal]", members)
	}
}

func TestPublishSubscribe(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := s.Subscribe(ctx, "file-locks")
	defer sub.Close()

	// Give the subscription a moment to register with miniredis.
	time.Sleep(50 * time.Millisecond)

	if err := s.Publish(ctx, "file-locks", `{"type":"file_claimed"}`); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Channel != "file-locks" {
			t.Fatalf("channel = %q, want file-locks", msg.Channel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestEvalScript(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.Eval(ctx, `return redis.call('SET', KEYS[1], ARGV[1])`, []string{"evalkey"}, "evalval")
	if err != nil {
		t.Fatal(err)
	}
	if res != "OK" {
		t.Fatalf("eval result = %v, want OK", res)
	}

	v, err := s.StringGet(ctx, "evalkey")
	if err != nil {
		t.Fatal(err)
	}
	if v != "evalval" {
		t.Fatalf("got %q, want evalval", v)
	}
}

// Package queue implements the Priority Queue Engine (spec §4.B): per-model
// work queues split into weighted priority tiers, with deduplication,
// weighted-fair scheduling, starvation prevention and per-tier statistics.
package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/agentmesh/corectl/internal/coordtypes"
	"github.com/agentmesh/corectl/internal/store"
)

const logPrefix = "[QUEUE]"

// defaultDedupTTL is spec §4.B's default ("Dedup TTL default 300 s").
const defaultDedupTTL = 300 * time.Second

// statsTTL is spec §3's "Ephemeral, TTL ~24h" for queue statistics.
const statsTTL = 24 * time.Hour

// Config tunes an Engine away from spec defaults; zero values fall back to
// the defaults named throughout spec §4.B/§5/§6.
type Config struct {
	DedupTTL            time.Duration
	StarvationThreshold time.Duration
	MaxAttempts         int
	PollInterval        time.Duration // interval used while Dequeue blocks waiting for work
}

// EnqueueResult is the outcome of Enqueue: either a fresh task was accepted,
// or an identical in-flight fingerprint already owns the slot.
type EnqueueResult struct {
	Deduplicated bool
	TaskID       string
}

// DequeueResult is a task pulled off a queue along with where it came from.
type DequeueResult struct {
	Queue    string
	Priority coordtypes.Priority
	Task     coordtypes.Task
}

// TierStats is the per-(queue,priority) snapshot spec §3 "Queue Statistics"
// describes.
type TierStats struct {
	Priority        coordtypes.Priority
	Pending         int64
	Enqueued        float64
	Dequeued        float64
	AvgProcessingMS float64
	Weight          float64
}

// Stats is a full per-queue statistics snapshot (spec §4.B "stats(Q)").
type Stats struct {
	Queue string
	Tiers []TierStats
}

// Engine is the Priority Queue Engine.
type Engine struct {
	s      store.Store
	keys   store.Keys
	sched  *scheduler
	cfg    Config
}

// New constructs an Engine over s with the given configuration.
func New(s store.Store, cfg Config) *Engine {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = defaultDedupTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	return &Engine{
		s:     s,
		keys:  store.Keys{},
		sched: newScheduler(s, cfg.StarvationThreshold),
		cfg:   cfg,
	}
}

// Enqueue implements spec §4.B's enqueue contract: compute the fingerprint,
// check the dedup record, and either return the existing task id or append
// the task under one atomic batch.
func (e *Engine) Enqueue(ctx context.Context, queue string, task coordtypes.Task) (*EnqueueResult, error) {
	if !task.Priority.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPriority, task.Priority)
	}
	if task.Fingerprint == "" {
		task.Fingerprint = Fingerprint(task.File, task.Prompt, task.Type)
	}
	task.Queue = queue
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	dedupKey := e.keys.Dedup(queue, task.Fingerprint)
	if existing, err := e.s.StringGet(ctx, dedupKey); err == nil && existing != "" {
		return &EnqueueResult{Deduplicated: true, TaskID: existing}, nil
	}

	payload, err := task.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("queue: marshal task: %w", err)
	}

	tierKey := e.keys.Tier(queue, string(task.Priority))
	err = e.s.Multi(ctx, func(p store.Pipeline) error {
		p.ListPushFront(tierKey, string(payload))
		p.ListPushFront(e.keys.LegacyQueue(queue), string(payload)) // read-compat only; never consulted by Dequeue
		p.SetAdd(e.keys.Priorities(queue), string(task.Priority))
		p.SortedSetAdd(e.keys.PriorityWeights(queue), coordtypes.DefaultWeights[task.Priority], string(task.Priority))
		p.StringIncrByWithTTL(e.keys.StatCounter(queue, "enqueued", string(task.Priority)), 1, statsTTL)
		p.StringSetWithTTL(dedupKey, task.ID, e.cfg.DedupTTL)
		p.SetAdd(e.keys.Queues(), queue)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("queue: enqueue %s: %w", queue, err)
	}

	log.Printf("%s enqueued task=%s queue=%s priority=%s", logPrefix, task.ID, queue, task.Priority)
	return &EnqueueResult{TaskID: task.ID}, nil
}

// Dequeue implements spec §4.B's dequeue contract across multiple queues:
// for each queue in order, the scheduler picks the next priority to serve
// and pops its tail. If nothing is available, it polls up to timeout.
func (e *Engine) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*DequeueResult, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, q := range queues {
			result, err := e.tryDequeueOne(ctx, q)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return nil, ErrEmpty
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

func (e *Engine) tryDequeueOne(ctx context.Context, q string) (*DequeueResult, error) {
	nonEmpty, err := e.nonEmptyTiers(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(nonEmpty) == 0 {
		return nil, nil
	}

	priority, err := e.sched.selectPriority(ctx, q, nonEmpty, time.Now())
	if err != nil {
		return nil, err
	}

	tierKey := e.keys.Tier(q, string(priority))
	raw, err := e.s.ListPopBack(ctx, tierKey)
	if err != nil {
		// Another dequeuer won the race for this tier's last element;
		// treat as "nothing here" for this pass.
		return nil, nil
	}

	var task coordtypes.Task
	if err := task.UnmarshalJSON([]byte(raw)); err != nil {
		return nil, fmt.Errorf("queue: corrupt task in %s: %w", tierKey, err)
	}
	task.Queue = q
	task.Priority = priority

	if err := e.s.ListPushFront(ctx, e.keys.Processing(q), raw); err != nil {
		return nil, fmt.Errorf("queue: record processing: %w", err)
	}
	if _, err := e.s.StringIncrByWithTTL(ctx, e.keys.StatCounter(q, "dequeued", string(priority)), 1, statsTTL); err != nil {
		return nil, fmt.Errorf("queue: bump dequeued stat: %w", err)
	}

	log.Printf("%s dequeued task=%s queue=%s priority=%s", logPrefix, task.ID, q, priority)
	return &DequeueResult{Queue: q, Priority: priority, Task: task}, nil
}

// nonEmptyTiers opportunistically cleans the active-priorities set of any
// priority whose tier is actually empty (spec §4.B "Failure semantics": "A
// dequeue that finds a non-empty Q:priorities but empty tier cleans the
// tier from the active-priorities set opportunistically").
func (e *Engine) nonEmptyTiers(ctx context.Context, q string) (map[coordtypes.Priority]bool, error) {
	members, err := e.s.SetMembers(ctx, e.keys.Priorities(q))
	if err != nil {
		return nil, err
	}
	out := make(map[coordtypes.Priority]bool)
	for _, m := range members {
		p := coordtypes.Priority(m)
		n, err := e.s.ListLength(ctx, e.keys.Tier(q, m))
		if err != nil {
			return nil, err
		}
		if n > 0 {
			out[p] = true
		} else {
			_ = e.s.SetRemove(ctx, e.keys.Priorities(q), m) // best-effort cleanup, not safety-critical
		}
	}
	return out, nil
}

// CompleteProcessing implements spec §4.B: remove task from the processing
// list and fold its processing time into the tier's running average using
// newAvg = oldAvg + (t - oldAvg)/(n+1).
func (e *Engine) CompleteProcessing(ctx context.Context, queue string, task coordtypes.Task, processingTime time.Duration) error {
	raw, err := task.MarshalJSON()
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}
	if _, err := e.s.ListRemove(ctx, e.keys.Processing(queue), 1, string(raw)); err != nil {
		return fmt.Errorf("queue: remove from processing: %w", err)
	}

	countKey := e.keys.StatCounter(queue, "count", string(task.Priority))
	avgKey := e.keys.StatCounter(queue, "avg_time", string(task.Priority))

	n, err := e.s.StringIncrByWithTTL(ctx, countKey, 1, statsTTL)
	if err != nil {
		return fmt.Errorf("queue: bump count stat: %w", err)
	}
	oldAvgStr, err := e.s.StringGet(ctx, avgKey)
	var oldAvg float64
	if err == nil {
		fmt.Sscanf(oldAvgStr, "%g", &oldAvg)
	}
	newAvg := oldAvg + (processingTime.Seconds()*1000-oldAvg)/n
	if err := e.s.StringSetWithTTL(ctx, avgKey, fmt.Sprintf("%g", newAvg), statsTTL); err != nil {
		return fmt.Errorf("queue: update avg_time stat: %w", err)
	}
	return nil
}

// Requeue implements spec §4.B: re-insert task at the head of its original
// priority tier and increment Attempts. Once Attempts reaches MaxAttempts,
// Requeue pushes the task onto queue:<Q>:failed instead of the tier and
// returns exhausted=true. Publishing a failure event is left to the caller
// (the dispatcher owns the observability bus).
func (e *Engine) Requeue(ctx context.Context, queue string, task coordtypes.Task) (exhausted bool, err error) {
	task.Attempts++
	payload, err := task.MarshalJSON()
	if err != nil {
		return false, fmt.Errorf("queue: marshal task: %w", err)
	}

	if task.Attempts >= e.cfg.MaxAttempts {
		if err := e.s.ListPushFront(ctx, e.keys.Failed(queue), string(payload)); err != nil {
			return false, fmt.Errorf("queue: push to failed: %w", err)
		}
		log.Printf("%s task=%s exhausted attempts=%d, moved to failed", logPrefix, task.ID, task.Attempts)
		return true, nil
	}

	tierKey := e.keys.Tier(queue, string(task.Priority))
	// "re-insert into the task's original priority tier at head": LPUSH
	// places it at the head, the same end every other tier insert uses.
	// Since the tier list is popped from the tail, the requeued copy is
	// served after every task already waiting in that tier.
	if err := e.s.ListPushFront(ctx, tierKey, string(payload)); err != nil {
		return false, fmt.Errorf("queue: requeue: %w", err)
	}
	if err := e.s.SetAdd(ctx, e.keys.Priorities(queue), string(task.Priority)); err != nil {
		return false, fmt.Errorf("queue: re-add priority: %w", err)
	}
	return false, nil
}

// Stats implements spec §4.B's stats(Q) snapshot.
func (e *Engine) Stats(ctx context.Context, queue string) (*Stats, error) {
	out := &Stats{Queue: queue}
	for _, p := range coordtypes.AllPriorities() {
		pending, err := e.s.ListLength(ctx, e.keys.Tier(queue, string(p)))
		if err != nil {
			return nil, err
		}
		enqueued, _ := e.s.StringGet(ctx, e.keys.StatCounter(queue, "enqueued", string(p)))
		dequeued, _ := e.s.StringGet(ctx, e.keys.StatCounter(queue, "dequeued", string(p)))
		avg, _ := e.s.StringGet(ctx, e.keys.StatCounter(queue, "avg_time", string(p)))

		var enqueuedF, dequeuedF, avgF float64
		fmt.Sscanf(enqueued, "%g", &enqueuedF)
		fmt.Sscanf(dequeued, "%g", &dequeuedF)
		fmt.Sscanf(avg, "%g", &avgF)

		out.Tiers = append(out.Tiers, TierStats{
			Priority:        p,
			Pending:         pending,
			Enqueued:        enqueuedF,
			Dequeued:        dequeuedF,
			AvgProcessingMS: avgF,
			Weight:          coordtypes.DefaultWeights[p],
		})
	}
	return out, nil
}

// KnownQueues lists every logical queue name that has ever had a task
// enqueued into it, backing the observability snapshot's "every queue" view
// without a key-scan primitive.
func (e *Engine) KnownQueues(ctx context.Context) ([]string, error) {
	names, err := e.s.SetMembers(ctx, e.keys.Queues())
	if err != nil {
		return nil, fmt.Errorf("queue: list known queues: %w", err)
	}
	return names, nil
}

package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentmesh/corectl/internal/coordtypes"
	"github.com/agentmesh/corectl/internal/queue"
	"github.com/agentmesh/corectl/internal/store"
)

// Stage is one source of work a Dispatcher tries in sequence, per spec
// §9's "Mixin" re-architecture guidance: compose the agent loop as
// Dispatcher -> primaryStage -> scavengerStage rather than folding the idle
// scavenger into the dispatcher struct itself. A nil result with a nil
// error means "nothing available right now", not a failure.
type Stage interface {
	Dequeue(ctx context.Context) (*queue.DequeueResult, error)
}

// primaryStage is the normal per-agent-type queue dequeue (spec §4.E step
// 2, first half): "dequeue(queues_for_my_type, short_timeout)".
type primaryStage struct {
	engine  *queue.Engine
	queues  []string
	timeout time.Duration
}

func (p *primaryStage) Dequeue(ctx context.Context) (*queue.DequeueResult, error) {
	res, err := p.engine.Dequeue(ctx, p.queues, p.timeout)
	if err == queue.ErrEmpty {
		return nil, nil
	}
	return res, err
}

// scavengerStage implements the idle-time "todo" pool consumer (spec
// §4.E step 2, second half): "run the idle scavenger against the global
// 'todo' queue Q:todos (atomic tail-to-head move into Q:todos:processing
// with assignment metadata)". It runs only when primaryStage found
// nothing, never blocks, and records which agent claimed the item.
type scavengerStage struct {
	s       store.Store
	keys    store.Keys
	agentID string
}

func newScavengerStage(s store.Store, agentID string) *scavengerStage {
	return &scavengerStage{s: s, keys: store.Keys{}, agentID: agentID}
}

func (sc *scavengerStage) Dequeue(ctx context.Context) (*queue.DequeueResult, error) {
	raw, err := sc.s.ListAtomicMoveTailToHead(ctx, sc.keys.Todos(), sc.keys.TodosProcessing())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("dispatcher: scavenge todos: %w", err)
	}

	var task coordtypes.Task
	if err := task.UnmarshalJSON([]byte(raw)); err != nil {
		return nil, fmt.Errorf("dispatcher: corrupt todo payload: %w", err)
	}
	task.Queue = "todos"
	if task.Priority == "" {
		task.Priority = coordtypes.PriorityNormal
	}

	assignment, _ := json.Marshal(struct {
		Agent      string `json:"agent"`
		AssignedAt int64  `json:"assignedAt"`
	}{Agent: sc.agentID, AssignedAt: time.Now().UnixMilli()})
	_ = sc.s.HashSet(ctx, sc.keys.TodosProcessing()+":"+task.ID, "assignment", string(assignment))
	_ = sc.s.HashSet(ctx, sc.keys.TodosProcessing()+":"+task.ID, "agent", sc.agentID)

	return &queue.DequeueResult{Queue: "todos", Priority: task.Priority, Task: task}, nil
}

package registry

import (
	"context"
	"log"
	"time"

	"github.com/agentmesh/corectl/internal/coordtypes"
	"github.com/agentmesh/corectl/internal/lock"
	"github.com/agentmesh/corectl/internal/queue"
)

// unreachableMultiplier is spec §9's resolved heartbeat-TTL open question:
// "fixes it at 3 x heartbeat_interval".
const unreachableMultiplier = 3

// Janitor periodically scans for agents past their unreachable threshold
// and marks them unreachable, mirroring teacher's internal/captain/supervisor.go
// pattern of one component owning a background ticker that calls into
// sibling components' public methods.
type Janitor struct {
	reg               *Registry
	queues            *queue.Engine
	locks             *lock.Manager
	heartbeatInterval time.Duration
	scanInterval      time.Duration
}

// NewJanitor constructs a Janitor. heartbeatInterval is the agent's
// configured heartbeat period; unreachable_threshold is derived from it per
// spec §9 (3x).
func NewJanitor(reg *Registry, queues *queue.Engine, locks *lock.Manager, heartbeatInterval time.Duration) *Janitor {
	return &Janitor{
		reg:               reg,
		queues:            queues,
		locks:             locks,
		heartbeatInterval: heartbeatInterval,
		scanInterval:      heartbeatInterval,
	}
}

// unreachableThreshold is spec §5's "unreachable after 3 missed (~90s)".
func (j *Janitor) unreachableThreshold() time.Duration {
	return unreachableMultiplier * j.heartbeatInterval
}

// Run scans on scanInterval until ctx is canceled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.sweep(ctx); err != nil {
				log.Printf("%s janitor sweep error: %v", logPrefix, err)
			}
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) error {
	agents, err := j.reg.ListActive(ctx)
	if err != nil {
		return err
	}
	threshold := j.unreachableThreshold()
	now := time.Now()
	for _, a := range agents {
		if a.Status == coordtypes.AgentUnreachable {
			continue
		}
		if now.Sub(a.LastHeartbeat) > threshold {
			if err := j.MarkUnreachable(ctx, a.ID); err != nil {
				log.Printf("%s mark unreachable agent=%s: %v", logPrefix, a.ID, err)
			}
		}
	}
	return nil
}

// MarkUnreachable implements spec §4.D's markUnreachable: requeue the
// agent's current task if any, release its locks, publish
// agent_unreachable.
func (j *Janitor) MarkUnreachable(ctx context.Context, id string) error {
	existing, err := j.reg.get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status == coordtypes.AgentStopped || existing.Status == coordtypes.AgentUnreachable {
		return nil
	}

	if err := j.reg.s.HashSet(ctx, j.reg.keys.Agent(id), "status", string(coordtypes.AgentUnreachable)); err != nil {
		return err
	}
	if err := j.reg.s.StringSetWithTTL(ctx, j.reg.keys.AgentStatus(id), string(coordtypes.AgentUnreachable), j.reg.hotFieldTTL); err != nil {
		return err
	}

	if task, err := j.reg.currentTaskSnapshot(ctx, id); err != nil {
		log.Printf("%s could not recover current task for agent=%s: %v", logPrefix, id, err)
	} else if task != nil {
		if _, err := j.queues.Requeue(ctx, task.Queue, *task); err != nil {
			log.Printf("%s requeue after death agent=%s task=%s: %v", logPrefix, id, task.ID, err)
		} else {
			log.Printf("%s requeued task=%s from dead agent=%s", logPrefix, task.ID, id)
		}
	}

	if released, err := j.locks.ReleaseAllForAgent(ctx, id); err != nil {
		log.Printf("%s release locks for agent=%s: %v", logPrefix, id, err)
	} else if len(released) > 0 {
		log.Printf("%s released %d locks for dead agent=%s", logPrefix, len(released), id)
	}

	j.reg.publish("agent_unreachable", Record{ID: id, Type: existing.Type, Status: coordtypes.AgentUnreachable})
	return nil
}

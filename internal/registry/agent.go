// Package registry implements the Agent Registry (spec §4.D): liveness
// tracking, capability advertisement, and detection of unresponsive agents
// for task reassignment.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/agentmesh/corectl/internal/coordtypes"
	"github.com/agentmesh/corectl/internal/store"
)

const logPrefix = "[REGISTRY]"

// Record is the agent record spec §3 describes.
type Record struct {
	ID               string
	Type             string
	Capabilities     []string
	Status           coordtypes.AgentStatus
	CurrentTaskID    string
	CurrentTaskQueue string
	RegisteredAt     time.Time
	LastHeartbeat    time.Time
}

// EventPublisher is the seam Registry uses to announce lifecycle events on
// the "agent-registry" channel, kept separate from internal/observability
// for the same layering reason as internal/lock's EventPublisher.
type EventPublisher interface {
	PublishAgentEvent(eventType string, r Record)
}

// Registry is the Agent Registry.
type Registry struct {
	s    store.Store
	keys store.Keys
	bus  EventPublisher
	// hotFieldTTL is applied to the agent:<id>:status and :current_task hot
	// fields (spec §6); it tracks the unreachable threshold so the fields
	// expire around the same time the janitor would mark the agent
	// unreachable anyway.
	hotFieldTTL time.Duration
}

// New constructs a Registry. bus may be nil to suppress event publishing
// (tests that do not care).
func New(s store.Store, hotFieldTTL time.Duration, bus EventPublisher) *Registry {
	if hotFieldTTL <= 0 {
		hotFieldTTL = 3 * time.Minute
	}
	return &Registry{s: s, keys: store.Keys{}, bus: bus, hotFieldTTL: hotFieldTTL}
}

// Register implements spec §4.D's register contract.
func (r *Registry) Register(ctx context.Context, id, agentType string, capabilities []string) error {
	now := time.Now()
	key := r.keys.Agent(id)

	if err := r.s.Multi(ctx, func(p store.Pipeline) error {
		p.HashSet(key, "type", agentType)
		p.HashSet(key, "capabilities", strings.Join(capabilities, ","))
		p.HashSet(key, "status", string(coordtypes.AgentIdle))
		p.HashSet(key, "registered_at", strconv.FormatInt(now.UnixMilli(), 10))
		p.HashSet(key, "last_heartbeat", strconv.FormatInt(now.UnixMilli(), 10))
		p.SetAdd(r.keys.Agents(), id)
		p.StringSetWithTTL(r.keys.AgentStatus(id), string(coordtypes.AgentIdle), r.hotFieldTTL)
		return nil
	}); err != nil {
		return fmt.Errorf("registry: register %s: %w", id, err)
	}

	log.Printf("%s registered agent=%s type=%s capabilities=%v", logPrefix, id, agentType, capabilities)
	r.publish("agent_registered", Record{
		ID: id, Type: agentType, Capabilities: capabilities,
		Status: coordtypes.AgentIdle, RegisteredAt: now, LastHeartbeat: now,
	})
	return nil
}

// Heartbeat implements spec §4.D's heartbeat contract: update
// last_heartbeat, status, and optionally the in-flight task, then publish
// agent_status_updated. currentTask is nil when the agent is idle.
func (r *Registry) Heartbeat(ctx context.Context, id string, status coordtypes.AgentStatus, currentTask *coordtypes.Task) error {
	existing, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	// A heartbeat reporting the same status as last time is a refresh, not
	// a transition (the dispatcher's heartbeat ticker pings at a fixed
	// status for as long as it stays idle or working on one task), so only
	// genuine status changes go through the transition table.
	if existing.Status != status && !coordtypes.CanTransition(existing.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, existing.Status, status)
	}

	now := time.Now()
	key := r.keys.Agent(id)
	taskID, taskQueue, taskPayload := "", "", ""
	if currentTask != nil {
		taskID = currentTask.ID
		taskQueue = currentTask.Queue
		raw, err := currentTask.MarshalJSON()
		if err != nil {
			return fmt.Errorf("registry: marshal current task: %w", err)
		}
		taskPayload = string(raw)
	}

	if err := r.s.Multi(ctx, func(p store.Pipeline) error {
		p.HashSet(key, "status", string(status))
		p.HashSet(key, "last_heartbeat", strconv.FormatInt(now.UnixMilli(), 10))
		p.HashSet(key, "current_task_id", taskID)
		p.HashSet(key, "current_task_queue", taskQueue)
		p.HashSet(key, "current_task_payload", taskPayload)
		p.StringSetWithTTL(r.keys.AgentStatus(id), string(status), r.hotFieldTTL)
		p.StringSetWithTTL(r.keys.AgentCurrentTask(id), taskID, r.hotFieldTTL)
		return nil
	}); err != nil {
		return fmt.Errorf("registry: heartbeat %s: %w", id, err)
	}

	r.publish("agent_status_updated", Record{
		ID: id, Type: existing.Type, Capabilities: existing.Capabilities,
		Status: status, CurrentTaskID: taskID, CurrentTaskQueue: taskQueue,
		RegisteredAt: existing.RegisteredAt, LastHeartbeat: now,
	})
	return nil
}

// ListActive implements spec §4.D's listActive(): every known agent whose
// status has not reached the terminal "stopped" state.
func (r *Registry) ListActive(ctx context.Context) ([]Record, error) {
	ids, err := r.s.SetMembers(ctx, r.keys.Agents())
	if err != nil {
		return nil, fmt.Errorf("registry: list agents: %w", err)
	}

	var out []Record
	for _, id := range ids {
		rec, err := r.get(ctx, id)
		if err != nil {
			continue // record expired/gone between the set listing and the read
		}
		if rec.Status == coordtypes.AgentStopped {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns a single agent's record.
func (r *Registry) Get(ctx context.Context, id string) (Record, error) {
	return r.get(ctx, id)
}

func (r *Registry) get(ctx context.Context, id string) (Record, error) {
	fields, err := r.s.HashGetAll(ctx, r.keys.Agent(id))
	if err != nil {
		return Record{}, fmt.Errorf("registry: get %s: %w", id, err)
	}
	if len(fields) == 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}

	rec := Record{
		ID:               id,
		Type:             fields["type"],
		Status:           coordtypes.AgentStatus(fields["status"]),
		CurrentTaskID:    fields["current_task_id"],
		CurrentTaskQueue: fields["current_task_queue"],
	}
	if fields["capabilities"] != "" {
		rec.Capabilities = strings.Split(fields["capabilities"], ",")
	}
	if ms, err := strconv.ParseInt(fields["registered_at"], 10, 64); err == nil {
		rec.RegisteredAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(fields["last_heartbeat"], 10, 64); err == nil {
		rec.LastHeartbeat = time.UnixMilli(ms)
	}
	return rec, nil
}

// currentTaskSnapshot reconstructs the in-flight task the agent last
// reported, if any, for the janitor to requeue on death.
func (r *Registry) currentTaskSnapshot(ctx context.Context, id string) (*coordtypes.Task, error) {
	fields, err := r.s.HashGetAll(ctx, r.keys.Agent(id))
	if err != nil {
		return nil, err
	}
	payload := fields["current_task_payload"]
	if payload == "" {
		return nil, nil
	}
	var task coordtypes.Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return nil, fmt.Errorf("registry: corrupt current task snapshot for %s: %w", id, err)
	}
	task.Queue = fields["current_task_queue"]
	return &task, nil
}

func (r *Registry) publish(eventType string, rec Record) {
	if r.bus != nil {
		r.bus.PublishAgentEvent(eventType, rec)
	}
}

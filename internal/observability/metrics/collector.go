package metrics

import (
	"sync"
	"time"
)

// Collector aggregates per-agent counters, adapted from teacher's
// Collector interface (internal/metrics/collector.go) one-for-one in
// shape, retargeted at task/lock outcomes instead of token usage.
type Collector interface {
	RecordTaskCompleted(agentID string)
	RecordTaskFailed(agentID string)
	RecordLockAcquired(agentID string)
	RecordLockLost(agentID string)
	SetAgentIdle(agentID string)
	SetAgentActive(agentID string)
	GetAgentCounters(agentID string) (AgentCounters, bool)
	GetAllCounters() map[string]AgentCounters
	TakeSnapshot() Snapshot
	GetHistory() []Snapshot
	RemoveAgent(agentID string)
}

// InMemoryCollector implements Collector, adapted from teacher's
// MetricsCollector (same mutex-guarded map + bounded history-ring shape).
type InMemoryCollector struct {
	mu         sync.RWMutex
	agents     map[string]*AgentCounters
	history    []Snapshot
	maxHistory int
}

// NewCollector constructs an empty InMemoryCollector with teacher's default
// history bound of 1000 snapshots.
func NewCollector() *InMemoryCollector {
	return &InMemoryCollector{
		agents:     make(map[string]*AgentCounters),
		maxHistory: 1000,
	}
}

func (c *InMemoryCollector) ensure(agentID string) *AgentCounters {
	m, ok := c.agents[agentID]
	if !ok {
		m = &AgentCounters{AgentID: agentID, LastUpdated: time.Now()}
		c.agents[agentID] = m
	}
	return m
}

// RecordTaskCompleted bumps the completed counter and resets the
// consecutive-failure streak (spec §4.G "each mutating op emits a
// structured event").
func (c *InMemoryCollector) RecordTaskCompleted(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.ensure(agentID)
	m.TasksCompleted++
	m.ConsecutiveFailures = 0
	m.LastUpdated = time.Now()
}

// RecordTaskFailed bumps the failed counter and extends the
// consecutive-failure streak the AlertEngine watches.
func (c *InMemoryCollector) RecordTaskFailed(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.ensure(agentID)
	m.TasksFailed++
	m.ConsecutiveFailures++
	m.LastUpdated = time.Now()
}

func (c *InMemoryCollector) RecordLockAcquired(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.ensure(agentID)
	m.LocksAcquired++
	m.LastUpdated = time.Now()
}

func (c *InMemoryCollector) RecordLockLost(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.ensure(agentID)
	m.LocksLost++
	m.LastUpdated = time.Now()
}

// SetAgentIdle records the moment an agent went idle, same semantics as
// teacher's SetAgentIdle.
func (c *InMemoryCollector) SetAgentIdle(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.ensure(agentID)
	if m.IdleSince.IsZero() {
		m.IdleSince = time.Now()
	}
}

func (c *InMemoryCollector) SetAgentActive(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.agents[agentID]; ok {
		m.IdleSince = time.Time{}
		m.LastUpdated = time.Now()
	}
}

func (c *InMemoryCollector) GetAgentCounters(agentID string) (AgentCounters, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.agents[agentID]
	if !ok {
		return AgentCounters{}, false
	}
	return *m, true
}

func (c *InMemoryCollector) GetAllCounters() map[string]AgentCounters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]AgentCounters, len(c.agents))
	for id, m := range c.agents {
		out[id] = *m
	}
	return out
}

// TakeSnapshot captures the current counters and appends to history,
// pruning to maxHistory exactly as teacher's TakeSnapshot does.
func (c *InMemoryCollector) TakeSnapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Timestamp: time.Now(), Agents: make(map[string]AgentCounters, len(c.agents))}
	for id, m := range c.agents {
		snap.Agents[id] = *m
	}

	c.history = append(c.history, snap)
	if len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
	return snap
}

func (c *InMemoryCollector) GetHistory() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Snapshot, len(c.history))
	copy(out, c.history)
	return out
}

func (c *InMemoryCollector) RemoveAgent(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.agents, agentID)
}

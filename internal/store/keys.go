package store

import "fmt"

// Keys builds the wire-compatible keyspace from spec §6. Every key pattern
// in that table must be preserved bit-exactly by any reimplementation, so
// every other package builds keys through these helpers instead of
// formatting strings itself.
type Keys struct{}

func (Keys) LegacyQueue(queue string) string { return fmt.Sprintf("queue:%s", queue) }

func (Keys) Tier(queue string, priority string) string {
	return fmt.Sprintf("queue:%s:p:%s", queue, priority)
}

func (Keys) Priorities(queue string) string { return fmt.Sprintf("queue:%s:priorities", queue) }

func (Keys) PriorityWeights(queue string) string {
	return fmt.Sprintf("queue:%s:priority_weights", queue)
}

func (Keys) StatCounter(queue, counter, priority string) string {
	return fmt.Sprintf("queue:%s:stats:%s:%s", queue, counter, priority)
}

func (Keys) Processing(queue string) string { return fmt.Sprintf("processing:%s", queue) }

func (Keys) Failed(queue string) string { return fmt.Sprintf("queue:%s:failed", queue) }

func (Keys) Todos() string           { return "queue:todos" }
func (Keys) TodosProcessing() string { return "queue:todos:processing" }
func (Keys) TodosCompleted() string  { return "queue:todos:completed" }

func (Keys) Dedup(queue, fingerprint string) string {
	return fmt.Sprintf("dedup:%s:%s", queue, fingerprint)
}

func (Keys) Lock(path string) string { return fmt.Sprintf("lock:%s", path) }

// LocksByOwner is not part of spec §6's wire keyspace table; it is a
// supplemental index so the File Lock Manager can release every lock an
// agent holds without a generic key-scan primitive (Store has none). See
// DESIGN.md for the rationale.
func (Keys) LocksByOwner(agent string) string { return fmt.Sprintf("locks:by-owner:%s", agent) }

// Agents is likewise supplemental: a set of every registered agent id, so
// the registry can enumerate agents without a key-scan primitive.
func (Keys) Agents() string { return "agents:all" }

// Queues is supplemental: a set of every logical queue name that has ever
// been enqueued into, so the observability snapshot can enumerate queues
// without a key-scan primitive.
func (Keys) Queues() string { return "queues:known" }

func (Keys) Agent(id string) string { return fmt.Sprintf("agent:%s", id) }

func (Keys) AgentStatus(id string) string { return fmt.Sprintf("agent:%s:status", id) }

func (Keys) AgentCurrentTask(id string) string { return fmt.Sprintf("agent:%s:current_task", id) }

func (Keys) ConsensusRequests() string { return "consensus:requests" }

func (Keys) ConsensusPending() string { return "consensus:pending" }

// Scheduler state is not part of spec §6's external keyspace table but must
// still live in the store (not an in-process struct) per spec §3's
// Ownership rule, so the scheduler survives a worker restart.
func (Keys) Scheduler(queue string) string { return fmt.Sprintf("queue:%s:sched", queue) }

// Channels are the fixed pub/sub topic names from spec §6.
const (
	ChannelFileLocks           = "file-locks"
	ChannelAgentRegistry       = "agent-registry"
	ChannelAgentChat           = "agent-chat"
	ChannelCoordinationRequired = "coordination-required"
	ChannelTaskUpdates         = "task-updates"
	ChannelConsensusNewRequest = "consensus:new_request"
	ChannelConsensusVote       = "consensus:vote"
	ChannelConsensusDecision   = "consensus:decision"
	ChannelQueueAlerts         = "queue:alerts"
)

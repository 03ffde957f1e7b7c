package coordtypes

// AgentStatus is the lifecycle state of a registered agent (spec §4.D).
type AgentStatus string

const (
	AgentIdle        AgentStatus = "idle"
	AgentWorking     AgentStatus = "working"
	AgentStopped     AgentStatus = "stopped"
	AgentUnreachable AgentStatus = "unreachable"
)

// agentTransitions encodes the state machine from spec §4.D:
// registered -> idle <-> working -> (idle | unreachable) -> stopped.
// unreachable transitions back to idle on the next successful heartbeat.
var agentTransitions = map[AgentStatus][]AgentStatus{
	AgentIdle:        {AgentWorking, AgentStopped, AgentUnreachable},
	AgentWorking:     {AgentIdle, AgentStopped, AgentUnreachable},
	AgentUnreachable: {AgentIdle, AgentStopped},
	AgentStopped:     {},
}

// CanTransition reports whether from -> to is an allowed agent transition.
func CanTransition(from, to AgentStatus) bool {
	for _, s := range agentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ConsensusStatus is the lifecycle state of a consensus request (spec §4.F).
type ConsensusStatus string

const (
	ConsensusPending  ConsensusStatus = "pending"
	ConsensusApproved ConsensusStatus = "approved"
	ConsensusRejected ConsensusStatus = "rejected"
	ConsensusTimeout  ConsensusStatus = "timeout"
	ConsensusCanceled ConsensusStatus = "canceled"
)

// Terminal reports whether a consensus status is final (spec §4.F invariant:
// "terminal status is final").
func (s ConsensusStatus) Terminal() bool {
	return s == ConsensusApproved || s == ConsensusRejected || s == ConsensusTimeout || s == ConsensusCanceled
}

// TaskStatus tracks a task's place in the processing pipeline. Unlike the
// teacher's multi-stage review workflow, the coordination core only needs
// the states spec §3/§4.B/§4.E actually reference.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

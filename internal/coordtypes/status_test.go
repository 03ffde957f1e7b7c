package coordtypes

import "testing"

func TestAgentStateMachine(t *testing.T) {
	if !CanTransition(AgentIdle, AgentWorking) {
		t.Error("idle -> working should be allowed")
	}
	if !CanTransition(AgentWorking, AgentUnreachable) {
		t.Error("working -> unreachable should be allowed")
	}
	if !CanTransition(AgentUnreachable, AgentIdle) {
		t.Error("unreachable -> idle should be allowed on next heartbeat")
	}
	if CanTransition(AgentStopped, AgentIdle) {
		t.Error("stopped is terminal, should not transition anywhere")
	}
}

func TestConsensusStatusTerminal(t *testing.T) {
	terminal := []ConsensusStatus{ConsensusApproved, ConsensusRejected, ConsensusTimeout, ConsensusCanceled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if ConsensusPending.Terminal() {
		t.Error("pending should not be terminal")
	}
}

package metrics

import "testing"

func TestCollectorRecordTaskOutcomes(t *testing.T) {
	c := NewCollector()
	c.RecordTaskCompleted("agent-1")
	c.RecordTaskFailed("agent-1")
	c.RecordTaskFailed("agent-1")

	got, ok := c.GetAgentCounters("agent-1")
	if !ok {
		t.Fatalf("expected counters for agent-1")
	}
	if got.TasksCompleted != 1 || got.TasksFailed != 2 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if got.ConsecutiveFailures != 2 {
		t.Fatalf("expected consecutive failures to accumulate, got %d", got.ConsecutiveFailures)
	}

	c.RecordTaskCompleted("agent-1")
	got, _ = c.GetAgentCounters("agent-1")
	if got.ConsecutiveFailures != 0 {
		t.Fatalf("expected a completed task to reset the failure streak, got %d", got.ConsecutiveFailures)
	}
}

func TestCollectorIdleActive(t *testing.T) {
	c := NewCollector()
	c.SetAgentIdle("agent-1")
	got, _ := c.GetAgentCounters("agent-1")
	if got.IdleSince.IsZero() {
		t.Fatalf("expected IdleSince to be set")
	}

	c.SetAgentActive("agent-1")
	got, _ = c.GetAgentCounters("agent-1")
	if !got.IdleSince.IsZero() {
		t.Fatalf("expected IdleSince to be cleared")
	}
}

func TestCollectorSnapshotHistory(t *testing.T) {
	c := NewCollector()
	c.RecordTaskCompleted("agent-1")
	snap := c.TakeSnapshot()
	if len(snap.Agents) != 1 {
		t.Fatalf("expected 1 agent in snapshot, got %d", len(snap.Agents))
	}
	if len(c.GetHistory()) != 1 {
		t.Fatalf("expected 1 history entry")
	}
}

func TestAlertCheckerDedupesWithinWindow(t *testing.T) {
	a := NewAlertEngine(AlertThresholds{ConsecutiveFailuresMax: 2})
	counters := map[string]AgentCounters{
		"agent-1": {AgentID: "agent-1", ConsecutiveFailures: 3},
	}

	alerts := a.CheckAgents(counters)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}

	// Same breach again immediately should be suppressed.
	alerts = a.CheckAgents(counters)
	if len(alerts) != 0 {
		t.Fatalf("expected duplicate alert to be suppressed, got %d", len(alerts))
	}
}

func TestAlertCheckerQueueDepth(t *testing.T) {
	a := NewAlertEngine(AlertThresholds{QueueDepthMax: 10})
	if alert := a.CheckQueueDepth("claude", 5); alert != nil {
		t.Fatalf("expected no alert below threshold, got %+v", alert)
	}
	alert := a.CheckQueueDepth("claude", 12)
	if alert == nil {
		t.Fatalf("expected an alert above threshold")
	}
	if alert.Type != "queue_depth" || alert.Queue != "claude" {
		t.Fatalf("unexpected alert shape: %+v", alert)
	}
}

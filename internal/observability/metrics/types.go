// Package metrics implements the counter/alert half of the Observability
// Hooks (spec §4.G): per-agent counters fed by the
// event stream, and threshold-based alerts published to queue:alerts.
// Adapted from teacher's internal/metrics/collector.go and
// internal/metrics/alerts.go.
package metrics

import "time"

// AgentCounters is the per-agent running tally this package keeps,
// mirroring the shape of teacher's types.AgentMetrics but tracking the
// coordination-core-specific events instead of token/cost figures.
type AgentCounters struct {
	AgentID             string
	TasksCompleted      int64
	TasksFailed         int64
	LocksAcquired       int64
	LocksLost           int64
	ConsecutiveFailures int64
	IdleSince           time.Time
	LastUpdated         time.Time
}

// Snapshot is a point-in-time capture of every agent's counters, kept in a
// bounded ring the way teacher's Collector.history does.
type Snapshot struct {
	Timestamp time.Time
	Agents    map[string]AgentCounters
}

// AlertThresholds configures AlertEngine, adapted from teacher's
// types.AlertThresholds but retargeted at the coordination core's own
// failure modes.
type AlertThresholds struct {
	ConsecutiveFailuresMax int
	QueueDepthMax          int64
	OldestPendingMaxAge    time.Duration
	ConsensusBacklogMax    int
}

// Alert is a single threshold breach, adapted from teacher's types.Alert.
type Alert struct {
	ID        string
	Type      string
	Queue     string
	Agent     string
	Message   string
	Severity  string // "warning" | "critical"
	CreatedAt time.Time
}

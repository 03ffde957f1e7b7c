// Package httpapi is the read-only observability surface spec §4.G
// describes: a composed snapshot endpoint and a live event-feed WebSocket,
// the single seam the (out-of-scope) dashboard renders against. Adapted
// from teacher's internal/server: gorilla/mux routing and the same broadcast
// Hub shape, trimmed to the
// read-only subset this spec needs (no agent spawning, no MCP).
package httpapi

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/agentmesh/corectl/internal/consensus"
	"github.com/agentmesh/corectl/internal/lock"
	"github.com/agentmesh/corectl/internal/observability/metrics"
	"github.com/agentmesh/corectl/internal/queue"
	"github.com/agentmesh/corectl/internal/registry"
)

// AgentView is the wire shape of one registry.Record in a Snapshot. Every
// raw timestamp is paired with a go-humanize rendering (e.g. "3m ago") so
// the dashboard this snapshot feeds doesn't need its own relative-time
// formatting.
type AgentView struct {
	ID                 string    `json:"id"`
	Type               string    `json:"type"`
	Status             string    `json:"status"`
	CurrentTaskID      string    `json:"currentTaskId,omitempty"`
	LastHeartbeat      time.Time `json:"lastHeartbeat"`
	LastHeartbeatHuman string    `json:"lastHeartbeatHuman"`
}

// QueueView is the wire shape of one queue.Stats in a Snapshot.
type QueueView struct {
	Queue string            `json:"queue"`
	Tiers []queue.TierStats `json:"tiers"`
}

// LockView is the wire shape of one lock.Lock in a Snapshot.
type LockView struct {
	Path            string    `json:"path"`
	Owner           string    `json:"owner"`
	AcquiredAt      time.Time `json:"acquiredAt"`
	AcquiredAtHuman string    `json:"acquiredAtHuman"`
	Forced          bool      `json:"forced"`
}

// ConsensusView is the wire shape of one consensus.Request in a Snapshot.
type ConsensusView struct {
	ID                string    `json:"id"`
	Operation         string    `json:"operation"`
	Files             []string  `json:"files"`
	Status            string    `json:"status"`
	RequiredApprovals int       `json:"requiredApprovals"`
	ExpiresAt         time.Time `json:"expiresAt"`
	ExpiresAtHuman    string    `json:"expiresAtHuman"`
}

// Snapshot is the full composed read GET /snapshot returns: every agent,
// every known queue's tiers, every held lock, every pending consensus
// request, and the metrics collector's agent counters.
type Snapshot struct {
	GeneratedAt      time.Time        `json:"generatedAt"`
	GeneratedAtHuman string           `json:"generatedAtHuman"`
	Agents           []AgentView      `json:"agents"`
	Queues           []QueueView      `json:"queues"`
	Locks            []LockView       `json:"locks"`
	Consensus        []ConsensusView  `json:"consensus"`
	Metrics          metrics.Snapshot `json:"metrics"`
}

// humanizeTime renders t the way every *Human sibling field does, via
// go-humanize's relative-time formatting ("3 minutes ago", "in 5 minutes").
func humanizeTime(t time.Time) string {
	return humanize.Time(t)
}

// sources bundles the read seams Snapshot composition needs. Kept as an
// unexported struct (not an interface per-source) since every field is the
// concrete type already built elsewhere in this module.
type sources struct {
	registry  *registry.Registry
	queues    *queue.Engine
	locks     *lock.Manager
	consensus *consensus.Coordinator
	collector metrics.Collector
}

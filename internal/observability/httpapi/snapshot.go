package httpapi

import (
	"context"
	"log"
	"time"
)

// Build composes a Snapshot from every read seam, the same "compose from
// whatever's available, log and move on for what isn't" shape as teacher's
// handleHealthCheck (internal/server/handlers.go).
func (s *sources) Build(ctx context.Context) Snapshot {
	now := time.Now()
	snap := Snapshot{GeneratedAt: now, GeneratedAtHuman: humanizeTime(now)}

	agents, err := s.registry.ListActive(ctx)
	if err != nil {
		log.Printf("%s snapshot: list agents: %v", logPrefix, err)
	}
	agentIDs := make([]string, 0, len(agents))
	for _, a := range agents {
		agentIDs = append(agentIDs, a.ID)
		snap.Agents = append(snap.Agents, AgentView{
			ID:                 a.ID,
			Type:               a.Type,
			Status:             string(a.Status),
			CurrentTaskID:      a.CurrentTaskID,
			LastHeartbeat:      a.LastHeartbeat,
			LastHeartbeatHuman: humanizeTime(a.LastHeartbeat),
		})
	}

	queues, err := s.queues.KnownQueues(ctx)
	if err != nil {
		log.Printf("%s snapshot: list queues: %v", logPrefix, err)
	}
	for _, q := range queues {
		stats, err := s.queues.Stats(ctx, q)
		if err != nil {
			log.Printf("%s snapshot: stats for queue %s: %v", logPrefix, q, err)
			continue
		}
		snap.Queues = append(snap.Queues, QueueView{Queue: stats.Queue, Tiers: stats.Tiers})
	}

	locks, err := s.locks.ListLocksForAgents(ctx, agentIDs)
	if err != nil {
		log.Printf("%s snapshot: list locks: %v", logPrefix, err)
	}
	for _, l := range locks {
		snap.Locks = append(snap.Locks, LockView{
			Path: l.Path, Owner: l.Owner, AcquiredAt: l.AcquiredAt,
			AcquiredAtHuman: humanizeTime(l.AcquiredAt), Forced: l.Forced,
		})
	}

	pending, err := s.consensus.PendingRequests(ctx)
	if err != nil {
		log.Printf("%s snapshot: list consensus requests: %v", logPrefix, err)
	}
	for _, r := range pending {
		snap.Consensus = append(snap.Consensus, ConsensusView{
			ID: r.ID, Operation: r.Operation, Files: r.Files,
			Status: string(r.Status), RequiredApprovals: r.RequiredApprovals,
			ExpiresAt: r.ExpiresAt, ExpiresAtHuman: humanizeTime(r.ExpiresAt),
		})
	}

	if s.collector != nil {
		snap.Metrics = s.collector.TakeSnapshot()
	}

	return snap
}

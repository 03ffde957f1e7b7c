package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// AlertEngine checks aggregated state against thresholds and returns
// Alerts, adapted one-for-one from teacher's AlertEngine interface
// (internal/metrics/alerts.go) but checking queue depth / pending age /
// consecutive failures instead of token usage / idle time.
type AlertEngine interface {
	SetThresholds(t AlertThresholds)
	GetThresholds() AlertThresholds
	CheckAgents(counters map[string]AgentCounters) []Alert
	CheckQueueDepth(queue string, pending int64) *Alert
	CheckOldestPending(queue string, age time.Duration) *Alert
	CheckConsensusBacklog(pending int) *Alert
}

// AlertChecker implements AlertEngine, adapted from teacher's AlertChecker:
// same dedup-by-recent-alert-key shape (a 5 minute window per key) so a
// sustained breach doesn't spam queue:alerts every poll.
type AlertChecker struct {
	mu           sync.RWMutex
	thresholds   AlertThresholds
	recentAlerts map[string]time.Time
}

// NewAlertEngine constructs an AlertChecker with thresholds.
func NewAlertEngine(thresholds AlertThresholds) *AlertChecker {
	return &AlertChecker{thresholds: thresholds, recentAlerts: make(map[string]time.Time)}
}

func (a *AlertChecker) SetThresholds(t AlertThresholds) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thresholds = t
}

func (a *AlertChecker) GetThresholds() AlertThresholds {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.thresholds
}

// shouldAlert is teacher's exact duplicate-suppression idiom: prune entries
// older than 5 minutes, then fire at most once per key within that window.
func (a *AlertChecker) shouldAlert(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for k, t := range a.recentAlerts {
		if now.Sub(t) > 5*time.Minute {
			delete(a.recentAlerts, k)
		}
	}
	if _, exists := a.recentAlerts[key]; exists {
		return false
	}
	a.recentAlerts[key] = now
	return true
}

// CheckAgents examines every agent's counters for a consecutive-failure
// streak past the configured threshold.
func (a *AlertChecker) CheckAgents(counters map[string]AgentCounters) []Alert {
	a.mu.RLock()
	thresholds := a.thresholds
	a.mu.RUnlock()

	var alerts []Alert
	if thresholds.ConsecutiveFailuresMax <= 0 {
		return nil
	}
	for agentID, m := range counters {
		if m.ConsecutiveFailures < int64(thresholds.ConsecutiveFailuresMax) {
			continue
		}
		key := fmt.Sprintf("consecutive_failures_%s", agentID)
		if !a.shouldAlert(key) {
			continue
		}
		alerts = append(alerts, Alert{
			ID:        uuid.New().String(),
			Type:      "consecutive_failures",
			Agent:     agentID,
			Message:   fmt.Sprintf("agent %s has %d consecutive task failures (threshold: %d)", agentID, m.ConsecutiveFailures, thresholds.ConsecutiveFailuresMax),
			Severity:  "critical",
			CreatedAt: time.Now(),
		})
	}
	return alerts
}

// CheckQueueDepth flags a tier whose pending count has crossed the
// configured ceiling.
func (a *AlertChecker) CheckQueueDepth(queue string, pending int64) *Alert {
	a.mu.RLock()
	thresholds := a.thresholds
	a.mu.RUnlock()

	if thresholds.QueueDepthMax <= 0 || pending < thresholds.QueueDepthMax {
		return nil
	}
	key := fmt.Sprintf("queue_depth_%s", queue)
	if !a.shouldAlert(key) {
		return nil
	}
	return &Alert{
		ID:        uuid.New().String(),
		Type:      "queue_depth",
		Queue:     queue,
		Message:   fmt.Sprintf("queue %s has %d pending tasks (threshold: %d)", queue, pending, thresholds.QueueDepthMax),
		Severity:  "warning",
		CreatedAt: time.Now(),
	}
}

// CheckOldestPending flags when the head-of-tier wait time exceeds the
// configured ceiling — an operator-facing cousin of the scheduler's own
// starvation-threshold override (spec §4.B), surfaced here as an alert
// rather than acted on.
func (a *AlertChecker) CheckOldestPending(queue string, age time.Duration) *Alert {
	a.mu.RLock()
	thresholds := a.thresholds
	a.mu.RUnlock()

	if thresholds.OldestPendingMaxAge <= 0 || age < thresholds.OldestPendingMaxAge {
		return nil
	}
	key := fmt.Sprintf("oldest_pending_%s", queue)
	if !a.shouldAlert(key) {
		return nil
	}
	return &Alert{
		ID:    uuid.New().String(),
		Type:  "oldest_pending",
		Queue: queue,
		Message: fmt.Sprintf("queue %s has a task waiting since %s (threshold: %s)",
			queue, humanize.Time(time.Now().Add(-age)), humanize.Time(time.Now().Add(-thresholds.OldestPendingMaxAge))),
		Severity:  "warning",
		CreatedAt: time.Now(),
	}
}

// CheckConsensusBacklog flags when too many consensus requests are pending
// at once.
func (a *AlertChecker) CheckConsensusBacklog(pending int) *Alert {
	a.mu.RLock()
	thresholds := a.thresholds
	a.mu.RUnlock()

	if thresholds.ConsensusBacklogMax <= 0 || pending < thresholds.ConsensusBacklogMax {
		return nil
	}
	key := "consensus_backlog"
	if !a.shouldAlert(key) {
		return nil
	}
	return &Alert{
		ID:        uuid.New().String(),
		Type:      "consensus_backlog",
		Message:   fmt.Sprintf("%d consensus requests pending (threshold: %d)", pending, thresholds.ConsensusBacklogMax),
		Severity:  "critical",
		CreatedAt: time.Now(),
	}
}

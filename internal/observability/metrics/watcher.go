package metrics

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/agentmesh/corectl/internal/consensus"
	"github.com/agentmesh/corectl/internal/queue"
	"github.com/agentmesh/corectl/internal/store"
)

const logPrefix = "[METRICS]"

// Watcher periodically runs AlertEngine's checks against live queue and
// consensus state and publishes any breach to queue:alerts, adapted from
// teacher's Server.backgroundTasks/checkAlerts ticker (internal/server/server.go)
// which does the same check-then-broadcast pass every 30s. Spec.md names
// the queue:alerts channel but never its publisher (SPEC_FULL.md §5); this
// is that publisher.
type Watcher struct {
	s         store.Store
	collector Collector
	alerts    AlertEngine
	queues    *queue.Engine
	consensus *consensus.Coordinator
	interval  time.Duration
}

// NewWatcher constructs a Watcher. interval defaults to 30s, matching
// teacher's backgroundTasks cadence.
func NewWatcher(s store.Store, collector Collector, alerts AlertEngine, queues *queue.Engine, cons *consensus.Coordinator, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{s: s, collector: collector, alerts: alerts, queues: queues, consensus: cons, interval: interval}
}

// Run ticks until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	w.collector.TakeSnapshot()

	var fired []Alert
	fired = append(fired, w.alerts.CheckAgents(w.collector.GetAllCounters())...)

	names, err := w.queues.KnownQueues(ctx)
	if err != nil {
		log.Printf("%s list known queues: %v", logPrefix, err)
		names = nil
	}
	for _, q := range names {
		stats, err := w.queues.Stats(ctx, q)
		if err != nil {
			log.Printf("%s stats %s: %v", logPrefix, q, err)
			continue
		}
		var total int64
		for _, tier := range stats.Tiers {
			total += tier.Pending
		}
		if alert := w.alerts.CheckQueueDepth(q, total); alert != nil {
			fired = append(fired, *alert)
		}
	}

	if w.consensus != nil {
		pending, err := w.consensus.PendingRequests(ctx)
		if err != nil {
			log.Printf("%s list pending consensus requests: %v", logPrefix, err)
		} else if alert := w.alerts.CheckConsensusBacklog(len(pending)); alert != nil {
			fired = append(fired, *alert)
		}
	}

	for _, alert := range fired {
		w.publish(ctx, alert)
	}
}

func (w *Watcher) publish(ctx context.Context, alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("%s marshal alert: %v", logPrefix, err)
		return
	}
	if err := w.s.Publish(ctx, store.ChannelQueueAlerts, string(payload)); err != nil {
		log.Printf("%s publish alert: %v", logPrefix, err)
		return
	}
	log.Printf("%s fired alert type=%s severity=%s", logPrefix, alert.Type, alert.Severity)
}

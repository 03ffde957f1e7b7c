package metrics

import (
	"context"

	"github.com/agentmesh/corectl/internal/observability/events"
)

// Feed drives a Collector from the observability event bus, replacing the
// direct handler-to-collector calls teacher's server.go makes (it calls
// metrics.UpdateAgentMetrics straight from HTTP handlers) with the
// subscribe-and-route shape spec §9 mandates for cross-cutting observers.
type Feed struct {
	bus       *events.Bus
	collector Collector
}

// NewFeed wires collector to receive every dispatcher/lock/registry event
// the bus carries.
func NewFeed(bus *events.Bus, collector Collector) *Feed {
	return &Feed{bus: bus, collector: collector}
}

// Run consumes events until ctx is canceled.
func (f *Feed) Run(ctx context.Context) {
	ch := f.bus.Subscribe("dispatcher", "lock", "registry")
	defer f.bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			f.apply(e)
		}
	}
}

func (f *Feed) apply(e events.Event) {
	switch e.Component {
	case "dispatcher":
		switch e.Op {
		case "task_completed":
			f.collector.RecordTaskCompleted(e.Agent)
		case "task_failed":
			f.collector.RecordTaskFailed(e.Agent)
		}
	case "lock":
		switch e.Op {
		case "file_claimed":
			f.collector.RecordLockAcquired(e.Agent)
		case "file_force_locked":
			f.collector.RecordLockLost(e.Agent)
		}
	case "registry":
		switch e.Op {
		case "agent_status_updated":
			if e.Result == "idle" {
				f.collector.SetAgentIdle(e.Agent)
			} else if e.Result == "working" {
				f.collector.SetAgentActive(e.Agent)
			}
		}
	}
}

package audit

import (
	"context"
	"log"

	"github.com/agentmesh/corectl/internal/observability/events"
)

const logPrefix = "[AUDIT]"

// Feed drives the audit trail from the observability event bus, the same
// subscribe-and-route shape as metrics.Feed, so both consumers sit beside
// the bus rather than being called directly out of the dispatcher/lock/
// consensus packages (spec §9's flattened-dependency guidance).
type Feed struct {
	bus *events.Bus
	db  *DB
}

// NewFeed wires db to receive every dispatcher/lock/consensus event bus carries.
func NewFeed(bus *events.Bus, db *DB) *Feed {
	return &Feed{bus: bus, db: db}
}

// Run consumes dispatcher/lock/consensus events until ctx is canceled.
func (f *Feed) Run(ctx context.Context) {
	ch := f.bus.Subscribe("dispatcher", "lock", "consensus")
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
	var err error
	switch e.Component {
	case "dispatcher":
		switch e.Op {
		case "task_completed":
			err = f.db.RecordTaskCompletion(e.TaskID, e.Queue, e.Priority, e.Agent, "completed", "")
		case "task_failed":
			err = f.db.RecordTaskCompletion(e.TaskID, e.Queue, e.Priority, e.Agent, "failed", "")
		}
	case "lock":
		if e.Op == "file_force_locked" {
			err = f.db.RecordForcedLock(e.File, e.Agent, "", "")
		}
	case "consensus":
		if e.Op == "consensus:decision" {
			err = f.db.RecordConsensusDecision(e.TaskID, "", e.Result, 0, 0)
		}
	}
	if err != nil {
		log.Printf("%s record event component=%s op=%s: %v", logPrefix, e.Component, e.Op, err)
	}
}

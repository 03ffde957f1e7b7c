package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/agentmesh/corectl/internal/observability/events"
)

const logPrefix = "[NOTIFY]"

// Feed subscribes to the observability event bus and turns
// "file_force_locked" and terminal "consensus:decision" events into toast
// notifications, the same subscribe-and-route shape as metrics.Feed and
// audit.Feed.
type Feed struct {
	notifier *Notifier
}

// NewFeed wires notifier to receive forced-lock and consensus-decision
// events.
func NewFeed(notifier *Notifier) *Feed {
	return &Feed{notifier: notifier}
}

// Run consumes lock/consensus events until ctx is canceled. A no-op on
// non-Windows platforms is expected and logged at most once per event, not
// treated as fatal.
func (f *Feed) Run(ctx context.Context, bus *events.Bus) {
	if !f.notifier.IsSupported() {
		log.Printf("%s toast notifications unsupported on this platform, feed idling", logPrefix)
	}

	ch := bus.Subscribe("lock", "consensus")
	defer bus.Unsubscribe(ch)
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
	switch {
	case e.Component == "lock" && e.Op == "file_force_locked":
		err = f.notifier.ShowUrgent("File force-locked", fmt.Sprintf("%s force-acquired %s", e.Agent, e.File))
	case e.Component == "consensus" && e.Op == "consensus:decision":
		err = f.notifier.Show("Consensus decided", fmt.Sprintf("request %s: %s", e.TaskID, e.Result))
	default:
		return
	}
	if err != nil {
		log.Printf("%s toast push failed component=%s op=%s: %v", logPrefix, e.Component, e.Op, err)
	}
}

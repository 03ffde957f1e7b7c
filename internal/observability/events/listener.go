package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/agentmesh/corectl/internal/store"
)

// defaultChannels is every spec §6 pub/sub topic the coordination core
// defines. A Listener subscribes to all of them in one call, per spec §9's
// re-architecture guidance ("one long-lived subscription per worker with
// routing based on message type" instead of a fresh subscription per
// request).
var defaultChannels = []string{
	store.ChannelFileLocks,
	store.ChannelAgentRegistry,
	store.ChannelAgentChat,
	store.ChannelCoordinationRequired,
	store.ChannelTaskUpdates,
	store.ChannelConsensusNewRequest,
	store.ChannelConsensusVote,
	store.ChannelConsensusDecision,
	store.ChannelQueueAlerts,
}

// Listener owns the single cross-process subscription a worker keeps open,
// routing every incoming message into the local Bus by unmarshalling it
// back into an Event.
type Listener struct {
	s    store.Store
	bus  *Bus
	subs store.Subscription
}

// NewListener subscribes to channels (defaultChannels if empty) and starts
// routing. Call Run to pump messages; call Close to stop.
func NewListener(s store.Store, bus *Bus, channels ...string) *Listener {
	if len(channels) == 0 {
		channels = defaultChannels
	}
	return &Listener{s: s, bus: bus, subs: s.Subscribe(context.Background(), channels...)}
}

// Run pumps messages from the store subscription into the Bus until ctx is
// canceled or the subscription is closed.
func (l *Listener) Run(ctx context.Context) {
	ch := l.subs.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				log.Printf("[EVENTS] corrupt message on %s: %v", msg.Channel, err)
				continue
			}
			l.bus.Publish(e)
		}
	}
}

// Close stops the underlying subscription.
func (l *Listener) Close() error {
	return l.subs.Close()
}

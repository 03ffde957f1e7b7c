package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/agentmesh/corectl/internal/consensus"
	"github.com/agentmesh/corectl/internal/coordtypes"
	"github.com/agentmesh/corectl/internal/registry"
	"github.com/agentmesh/corectl/internal/store"
)

// Publisher implements every component-specific EventPublisher seam
// (lock.EventPublisher, registry.EventPublisher, dispatcher.EventPublisher,
// consensus.EventPublisher) by translating each call into the spec §4.G
// Event shape, fanning it out locally via Bus and announcing it
// cross-process on the matching store channel so every other worker's
// Listener picks it up too.
type Publisher struct {
	s   store.Store
	bus *Bus
}

// NewPublisher constructs a Publisher over an existing store and Bus.
func NewPublisher(s store.Store, bus *Bus) *Publisher {
	return &Publisher{s: s, bus: bus}
}

func (p *Publisher) emit(channel string, e Event) {
	e.Timestamp = time.Now()
	p.bus.Publish(e)

	payload, err := json.Marshal(e)
	if err != nil {
		log.Printf("[EVENTS] marshal event for %s: %v", channel, err)
		return
	}
	if err := p.s.Publish(context.Background(), channel, string(payload)); err != nil {
		log.Printf("[EVENTS] publish to %s: %v", channel, err)
	}
}

// PublishLockEvent implements lock.EventPublisher.
func (p *Publisher) PublishLockEvent(eventType, agent, file string) {
	p.emit(store.ChannelFileLocks, Event{Component: "lock", Op: eventType, Agent: agent, File: file})
}

// PublishAgentEvent implements registry.EventPublisher.
func (p *Publisher) PublishAgentEvent(eventType string, r registry.Record) {
	p.emit(store.ChannelAgentRegistry, Event{
		Component: "registry", Op: eventType, Agent: r.ID, TaskID: r.CurrentTaskID,
		Queue: r.CurrentTaskQueue, Result: string(r.Status),
	})
}

// PublishTaskEvent implements dispatcher.EventPublisher.
func (p *Publisher) PublishTaskEvent(eventType string, task coordtypes.Task, agent string) {
	channel := store.ChannelTaskUpdates
	if eventType == "coordination-required" {
		channel = store.ChannelCoordinationRequired
	}
	p.emit(channel, Event{
		Component: "dispatcher", Op: eventType, Queue: task.Queue, Priority: string(task.Priority),
		Agent: agent, File: task.File, TaskID: task.ID,
	})
}

// PublishConsensusEvent implements consensus.EventPublisher.
func (p *Publisher) PublishConsensusEvent(eventType string, req consensus.Request, vote *consensus.Vote) {
	channel := store.ChannelConsensusNewRequest
	switch eventType {
	case "consensus:vote":
		channel = store.ChannelConsensusVote
	case "consensus:decision":
		channel = store.ChannelConsensusDecision
	}
	e := Event{Component: "consensus", Op: eventType, TaskID: req.ID, Result: string(req.Status)}
	if vote != nil {
		e.Agent = vote.Agent
	} else {
		e.Agent = req.Initiator
	}
	p.emit(channel, e)
}

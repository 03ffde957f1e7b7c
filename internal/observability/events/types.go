// Package events implements the structured event stream spec §4.G
// mandates ("each mutating op emits a structured event") as an in-process
// Bus fed by a single cross-process store subscription, adapted from
// teacher's internal/events/bus.go and internal/events/types.go.
package events

import "time"

// Event is the structured shape spec §4.G names exactly:
// {ts, component, op, queue?, priority?, agent?, file?, task_id?, result}.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Component string    `json:"component"`
	Op        string    `json:"op"`
	Queue     string    `json:"queue,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	File      string    `json:"file,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Result    string    `json:"result,omitempty"`
}

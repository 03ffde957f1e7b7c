package coordtypes

import (
	"encoding/json"
	"time"
)

// Task is a work unit flowing through a priority queue (spec §3 "Task").
// It is immutable after enqueue except for Attempts, which the queue engine
// increments on requeue.
type Task struct {
	ID          string            `json:"id"`
	Queue       string            `json:"-"`
	Priority    Priority          `json:"priority"`
	Fingerprint string            `json:"-"`
	File        string            `json:"file"`
	Prompt      string            `json:"prompt"`
	Type        string            `json:"type,omitempty"`
	Source      string            `json:"source,omitempty"`
	EnqueuedAt  time.Time         `json:"-"`
	Attempts    int               `json:"attempts"`
	Metadata    map[string]string `json:"-"`
}

// wireTask is the exact JSON payload shape mandated by spec §6: camelCase
// fields and a millisecond-epoch timestamp. Task itself keeps an idiomatic
// time.Time and Queue/Fingerprint fields kept off the wire for the engine's own use;
// MarshalJSON/UnmarshalJSON translate between the two so every byte written
// to the store matches the wire contract other components rely on.
type wireTask struct {
	ID         string   `json:"id"`
	File       string   `json:"file"`
	Prompt     string   `json:"prompt"`
	Type       string   `json:"type,omitempty"`
	Priority   Priority `json:"priority"`
	EnqueuedAt int64    `json:"enqueuedAt"`
	Source     string   `json:"source,omitempty"`
	Attempts   int      `json:"attempts"`
}

// MarshalJSON renders t in the spec §6 task payload format.
func (t Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTask{
		ID:         t.ID,
		File:       t.File,
		Prompt:     t.Prompt,
		Type:       t.Type,
		Priority:   t.Priority,
		EnqueuedAt: t.EnqueuedAt.UnixMilli(),
		Source:     t.Source,
		Attempts:   t.Attempts,
	})
}

// UnmarshalJSON parses the spec §6 task payload format into t. Queue,
// Fingerprint and Metadata are not part of the wire format and are left
// untouched; callers that need them repopulate after unmarshalling.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.ID = w.ID
	t.File = w.File
	t.Prompt = w.Prompt
	t.Type = w.Type
	t.Priority = w.Priority
	t.EnqueuedAt = time.UnixMilli(w.EnqueuedAt)
	t.Source = w.Source
	t.Attempts = w.Attempts
	return nil
}

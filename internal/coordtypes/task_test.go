package coordtypes

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTaskJSONRoundTrip(t *testing.T) {
	now := time.UnixMilli(time.Now().UnixMilli()) // truncate to ms precision
	orig := Task{
		ID:         "TASK-1",
		File:       "src/x.js",
		Prompt:     "refactor it",
		Type:       "refactor",
		Priority:   PriorityHigh,
		EnqueuedAt: now,
		Source:     "dashboard",
		Attempts:   2,
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Task
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.ID != orig.ID || got.File != orig.File || got.Prompt != orig.Prompt ||
		got.Type != orig.Type || got.Priority != orig.Priority ||
		got.Source != orig.Source || got.Attempts != orig.Attempts {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, orig)
	}
	if !got.EnqueuedAt.Equal(orig.EnqueuedAt) {
		t.Fatalf("EnqueuedAt mismatch: got %v, want %v", got.EnqueuedAt, orig.EnqueuedAt)
	}
}

func TestTaskWireFormatFields(t *testing.T) {
	task := Task{ID: "t1", File: "a.go", Prompt: "p", Priority: PriorityNormal, EnqueuedAt: time.Now(), Attempts: 0}
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	for _, field := range []string{"id", "file", "prompt", "priority", "enqueuedAt", "attempts"} {
		if _, ok := m[field]; !ok {
			t.Errorf("wire format missing required field %q", field)
		}
	}
}

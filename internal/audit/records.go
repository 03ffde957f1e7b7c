package audit

import (
	"database/sql"
	"fmt"
	"time"
)

// TaskCompletion is one row of the task_completions history.
type TaskCompletion struct {
	TaskID     string
	Queue      string
	Priority   string
	AgentID    string
	Outcome    string // "completed" | "failed"
	Detail     string
	RecordedAt time.Time
}

// RecordTaskCompletion logs a completed or failed task, adapted from
// teacher's StoreDecision insert-and-ignore-generated-id shape
// (internal/memory/decisions.go).
func (d *DB) RecordTaskCompletion(taskID, queue, priority, agentID, outcome, detail string) error {
	_, err := d.db.Exec(`
		INSERT INTO task_completions (task_id, queue, priority, agent_id, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		taskID, queue, priority, agentID, outcome, nullString(detail),
	)
	if err != nil {
		return fmt.Errorf("audit: record task completion: %w", err)
	}
	return nil
}

// RecentTaskCompletions returns the most recent completions, newest first.
func (d *DB) RecentTaskCompletions(limit int) ([]TaskCompletion, error) {
	rows, err := d.db.Query(`
		SELECT task_id, queue, priority, agent_id, outcome, detail, recorded_at
		FROM task_completions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query task completions: %w", err)
	}
	defer rows.Close()

	var out []TaskCompletion
	for rows.Next() {
		var tc TaskCompletion
		var detail sql.NullString
		var recordedAt string
		if err := rows.Scan(&tc.TaskID, &tc.Queue, &tc.Priority, &tc.AgentID, &tc.Outcome, &detail, &recordedAt); err != nil {
			return nil, fmt.Errorf("audit: scan task completion: %w", err)
		}
		tc.Detail = detail.String
		tc.RecordedAt, _ = time.Parse("2006-01-02T15:04:05.999Z", recordedAt)
		out = append(out, tc)
	}
	return out, rows.Err()
}

// ConsensusDecision is one row of the consensus_decisions history.
type ConsensusDecision struct {
	RequestID  string
	Operation  string
	Status     string
	Approvers  int
	Rejectors  int
	RecordedAt time.Time
}

// RecordConsensusDecision logs a terminal consensus outcome.
func (d *DB) RecordConsensusDecision(requestID, operation, status string, approvers, rejectors int) error {
	_, err := d.db.Exec(`
		INSERT INTO consensus_decisions (request_id, operation, status, approvers, rejectors)
		VALUES (?, ?, ?, ?, ?)`,
		requestID, operation, status, approvers, rejectors,
	)
	if err != nil {
		return fmt.Errorf("audit: record consensus decision: %w", err)
	}
	return nil
}

// ForcedLock is one row of the forced_locks history.
type ForcedLock struct {
	Path         string
	AgentID      string
	EvictedOwner string
	Reason       string
	RecordedAt   time.Time
}

// RecordForcedLock logs an emergency ForceAcquire override.
func (d *DB) RecordForcedLock(path, agentID, evictedOwner, reason string) error {
	_, err := d.db.Exec(`
		INSERT INTO forced_locks (path, agent_id, evicted_owner, reason)
		VALUES (?, ?, ?, ?)`,
		path, agentID, nullString(evictedOwner), nullString(reason),
	)
	if err != nil {
		return fmt.Errorf("audit: record forced lock: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

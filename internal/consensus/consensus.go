// Package consensus implements the Consensus Coordinator (spec §4.F): a
// pure arbiter for multi-agent approval votes. It records votes and
// publishes events; implementing the approved operation (delete, refactor,
// policy edit) is left entirely to callers, per spec §4.F's explicit
// framing.
package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/corectl/internal/coordtypes"
	"github.com/agentmesh/corectl/internal/store"
)

const logPrefix = "[CONSENSUS]"

// defaultTimeout is spec §5's default: "Consensus request: default 300s,
// overridable per request."
const defaultTimeout = 300 * time.Second

// pollInterval is WaitFor's polling granularity when the store has no
// request-scoped subscription to block on.
const pollInterval = 100 * time.Millisecond

// Request is the consensus record spec §3/§4.F describes.
type Request struct {
	ID                string
	Operation         string
	Files             []string
	Reason            string
	Initiator         string
	RequiredApprovals int
	Status            coordtypes.ConsensusStatus
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// Vote is a single agent's recorded vote.
type Vote struct {
	Agent   string
	Approve bool
	Comment string
}

// EventPublisher is the seam Coordinator uses for consensus:new_request,
// consensus:vote and consensus:decision, kept separate from
// internal/observability for the same layering reason as lock's and
// registry's EventPublisher seams.
type EventPublisher interface {
	PublishConsensusEvent(eventType string, req Request, vote *Vote)
}

// Coordinator is the Consensus Coordinator.
type Coordinator struct {
	s    store.Store
	keys store.Keys
	bus  EventPublisher
}

// New constructs a Coordinator. bus may be nil to suppress publishing.
func New(s store.Store, bus EventPublisher) *Coordinator {
	return &Coordinator{s: s, keys: store.Keys{}, bus: bus}
}

func (c *Coordinator) reqKey(id string) string   { return fmt.Sprintf("consensus:req:%s", id) }
func (c *Coordinator) votesKey(id string) string { return fmt.Sprintf("consensus:req:%s:votes", id) }

// Request implements spec §4.F's request contract.
func (c *Coordinator) Request(ctx context.Context, operation string, files []string, reason string, requiredApprovals int, timeout time.Duration, initiator string) (string, error) {
	if requiredApprovals <= 0 {
		requiredApprovals = 1
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	id := uuid.New().String()
	now := time.Now()
	expiresAt := now.Add(timeout)

	filesJSON, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("consensus: marshal files: %w", err)
	}

	key := c.reqKey(id)
	if err := c.s.Multi(ctx, func(p store.Pipeline) error {
		p.HashSet(key, "operation", operation)
		p.HashSet(key, "files", string(filesJSON))
		p.HashSet(key, "reason", reason)
		p.HashSet(key, "initiator", initiator)
		p.HashSet(key, "required_approvals", strconv.Itoa(requiredApprovals))
		p.HashSet(key, "status", string(coordtypes.ConsensusPending))
		p.HashSet(key, "created_at", strconv.FormatInt(now.UnixMilli(), 10))
		p.HashSet(key, "expires_at", strconv.FormatInt(expiresAt.UnixMilli(), 10))
		p.SetAdd(c.keys.ConsensusRequests(), id)
		p.SortedSetAdd(c.keys.ConsensusPending(), float64(expiresAt.UnixMilli()), id)
		return nil
	}); err != nil {
		return "", fmt.Errorf("consensus: create request: %w", err)
	}

	req := Request{
		ID: id, Operation: operation, Files: files, Reason: reason, Initiator: initiator,
		RequiredApprovals: requiredApprovals, Status: coordtypes.ConsensusPending,
		CreatedAt: now, ExpiresAt: expiresAt,
	}
	log.Printf("%s request=%s operation=%s initiator=%s required=%d", logPrefix, id, operation, initiator, requiredApprovals)
	c.publish("consensus:new_request", req, nil)
	return id, nil
}

// Vote implements spec §4.F's vote contract via an atomic tally script.
func (c *Coordinator) Vote(ctx context.Context, requestID, agentID string, approve bool, comment string) (Request, error) {
	approveFlag := "0"
	if approve {
		approveFlag = "1"
	}

	res, err := c.s.Eval(ctx, voteScript,
		[]string{c.reqKey(requestID), c.votesKey(requestID), c.keys.ConsensusPending()},
		agentID, approveFlag, comment, requestID)
	if err != nil {
		return Request{}, fmt.Errorf("consensus: vote on %s: %w", requestID, err)
	}

	fields, ok := res.([]interface{})
	if !ok || len(fields) < 2 {
		return Request{}, fmt.Errorf("consensus: unexpected vote script result: %v", res)
	}

	if toInt64(fields[0]) == 0 {
		switch fmt.Sprint(fields[1]) {
		case "already_voted":
			return Request{}, ErrAlreadyVoted
		default:
			return Request{}, ErrNotPending
		}
	}

	req, err := c.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}

	v := Vote{Agent: agentID, Approve: approve, Comment: comment}
	log.Printf("%s vote request=%s agent=%s approve=%v status=%s", logPrefix, requestID, agentID, approve, req.Status)
	c.publish("consensus:vote", req, &v)
	if req.Status.Terminal() {
		c.publish("consensus:decision", req, nil)
	}
	return req, nil
}

// WaitFor implements spec §4.F's waitFor: poll until the request reaches a
// terminal status or timeout elapses.
func (c *Coordinator) WaitFor(ctx context.Context, requestID string, timeout time.Duration) (Request, error) {
	deadline := time.Now().Add(timeout)
	for {
		req, err := c.Get(ctx, requestID)
		if err != nil {
			return Request{}, err
		}
		if req.Status.Terminal() {
			return req, nil
		}
		if time.Now().After(deadline) {
			return req, context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return req, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Cancel implements spec §4.F's cancel: allowed only while pending.
func (c *Coordinator) Cancel(ctx context.Context, requestID, by string) error {
	res, err := c.s.Eval(ctx, finalizeIfPendingScript,
		[]string{c.reqKey(requestID), c.keys.ConsensusPending()},
		requestID, string(coordtypes.ConsensusCanceled))
	if err != nil {
		return fmt.Errorf("consensus: cancel %s: %w", requestID, err)
	}
	if toInt64(res) != 1 {
		return ErrNotPending
	}
	req, err := c.Get(ctx, requestID)
	if err != nil {
		return err
	}
	log.Printf("%s canceled request=%s by=%s", logPrefix, requestID, by)
	c.publish("consensus:decision", req, nil)
	return nil
}

// ExpireSweep implements spec §4.F's expireSweep: terminate every pending
// request past its expires_at with a timeout status. Returns the ids
// terminated this pass.
func (c *Coordinator) ExpireSweep(ctx context.Context) ([]string, error) {
	now := float64(time.Now().UnixMilli())
	ids, err := c.s.SortedSetRangeByScore(ctx, c.keys.ConsensusPending(), 0, now)
	if err != nil {
		return nil, fmt.Errorf("consensus: list expired: %w", err)
	}

	var expired []string
	for _, id := range ids {
		res, err := c.s.Eval(ctx, finalizeIfPendingScript,
			[]string{c.reqKey(id), c.keys.ConsensusPending()},
			id, string(coordtypes.ConsensusTimeout))
		if err != nil {
			return expired, fmt.Errorf("consensus: expire %s: %w", id, err)
		}
		if toInt64(res) != 1 {
			continue // already terminal by a concurrent vote/cancel
		}
		expired = append(expired, id)
		if req, err := c.Get(ctx, id); err == nil {
			c.publish("consensus:decision", req, nil)
		}
	}
	if len(expired) > 0 {
		log.Printf("%s expired %d pending requests", logPrefix, len(expired))
	}
	return expired, nil
}

// PendingRequests resolves every request still sitting in the pending
// sorted set, for the observability snapshot's consensus view.
func (c *Coordinator) PendingRequests(ctx context.Context) ([]Request, error) {
	ids, err := c.s.SortedSetRangeByScore(ctx, c.keys.ConsensusPending(), 0, math.MaxFloat64)
	if err != nil {
		return nil, fmt.Errorf("consensus: list pending: %w", err)
	}
	out := make([]Request, 0, len(ids))
	for _, id := range ids {
		req, err := c.Get(ctx, id)
		if err != nil {
			continue // resolved between the sorted-set read and the hash read
		}
		out = append(out, req)
	}
	return out, nil
}

// Get returns a single request's current record.
func (c *Coordinator) Get(ctx context.Context, requestID string) (Request, error) {
	fields, err := c.s.HashGetAll(ctx, c.reqKey(requestID))
	if err != nil {
		return Request{}, fmt.Errorf("consensus: get %s: %w", requestID, err)
	}
	if len(fields) == 0 {
		return Request{}, ErrNotFound
	}

	req := Request{
		ID:        requestID,
		Operation: fields["operation"],
		Reason:    fields["reason"],
		Initiator: fields["initiator"],
		Status:    coordtypes.ConsensusStatus(fields["status"]),
	}
	if fields["files"] != "" {
		_ = json.Unmarshal([]byte(fields["files"]), &req.Files)
	}
	if n, err := strconv.Atoi(fields["required_approvals"]); err == nil {
		req.RequiredApprovals = n
	}
	if ms, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		req.CreatedAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(fields["expires_at"], 10, 64); err == nil {
		req.ExpiresAt = time.UnixMilli(ms)
	}
	return req, nil
}

// Votes returns every vote recorded so far for requestID.
func (c *Coordinator) Votes(ctx context.Context, requestID string) ([]Vote, error) {
	fields, err := c.s.HashGetAll(ctx, c.votesKey(requestID))
	if err != nil {
		return nil, fmt.Errorf("consensus: votes %s: %w", requestID, err)
	}
	out := make([]Vote, 0, len(fields))
	for agent, encoded := range fields {
		parts := strings.SplitN(encoded, ":", 2)
		v := Vote{Agent: agent, Approve: parts[0] == "1"}
		if len(parts) > 1 {
			v.Comment = parts[1]
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Coordinator) publish(eventType string, req Request, vote *Vote) {
	if c.bus != nil {
		c.bus.PublishConsensusEvent(eventType, req, vote)
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

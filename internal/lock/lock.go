// Package lock implements the File Lock Manager (spec §4.C): leased
// mutual-exclusion over file paths so at most one agent mutates a given
// file at a time, with renewal, release, and an emergency forced takeover.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/corectl/internal/store"
)

const logPrefix = "[LOCK]"

var (
	// ErrStale is returned by Renew/Release when the caller's agent/lease
	// no longer matches the current owner (spec §4.C "stale").
	ErrStale = errors.New("lock: stale owner or lease")
)

// Lock is the lock record spec §3 describes, as returned by ListLocks.
type Lock struct {
	Path       string
	Owner      string
	AcquiredAt time.Time
	TTL        time.Duration
	Forced     bool
	Reason     string
}

// AcquireResult is the outcome of Acquire: either granted with a lease, or
// already held by someone else.
type AcquireResult struct {
	Granted      bool
	LeaseID      string
	HeldBy       string
	RemainingTTL time.Duration
}

// Manager is the File Lock Manager.
type Manager struct {
	s    store.Store
	keys store.Keys
	bus  EventPublisher
}

// EventPublisher is the minimal seam Manager needs to announce lock events
// on the "file-locks" channel (spec §4.C "Events"), satisfied by
// internal/observability/events.Bus without this package importing it
// directly (keeps the dependency layering from spec §9 flat: lock sits
// below observability, not beside it).
type EventPublisher interface {
	PublishLockEvent(eventType, agent, file string)
}

// New constructs a Manager. bus may be nil, in which case lock events are
// simply not published (useful in unit tests that do not care).
func New(s store.Store, bus EventPublisher) *Manager {
	return &Manager{s: s, keys: store.Keys{}, bus: bus}
}

// Acquire implements spec §4.C's acquire contract via an atomic
// check-then-write Lua script.
func (m *Manager) Acquire(ctx context.Context, path, agent string, ttl time.Duration) (*AcquireResult, error) {
	leaseID := uuid.New().String()
	now := time.Now()

	res, err := m.s.Eval(ctx, acquireScript, []string{m.keys.Lock(path)},
		agent, now.UnixMilli(), ttl.Milliseconds(), leaseID)
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", path, err)
	}

	fields, ok := res.([]interface{})
	if !ok || len(fields) < 2 {
		return nil, fmt.Errorf("lock: unexpected acquire script result: %v", res)
	}

	if toInt64(fields[0]) == 1 {
		_ = m.s.SetAdd(ctx, m.keys.LocksByOwner(agent), path)
		log.Printf("%s granted path=%s agent=%s lease=%s", logPrefix, path, agent, leaseID)
		m.publish("file_claimed", agent, path)
		return &AcquireResult{Granted: true, LeaseID: leaseID}, nil
	}

	owner, _ := fields[1].(string)
	remaining := time.Duration(toInt64(fields[2])) * time.Millisecond
	return &AcquireResult{Granted: false, HeldBy: owner, RemainingTTL: remaining}, nil
}

// Renew implements spec §4.C's renew contract: only the current owner with
// the matching lease can extend its TTL.
func (m *Manager) Renew(ctx context.Context, path, agent, leaseID string, ttl time.Duration) error {
	res, err := m.s.Eval(ctx, renewScript, []string{m.keys.Lock(path)}, agent, leaseID, ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("lock: renew %s: %w", path, err)
	}
	if toInt64(res) != 1 {
		return ErrStale
	}
	return nil
}

// Release implements spec §4.C's release contract, symmetric to Acquire.
func (m *Manager) Release(ctx context.Context, path, agent, leaseID string) error {
	res, err := m.s.Eval(ctx, releaseScript, []string{m.keys.Lock(path)}, agent, leaseID)
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", path, err)
	}
	if toInt64(res) != 1 {
		return ErrStale
	}
	_ = m.s.SetRemove(ctx, m.keys.LocksByOwner(agent), path)
	log.Printf("%s released path=%s agent=%s", logPrefix, path, agent)
	m.publish("file_released", agent, path)
	return nil
}

// ReleaseAllForAgent releases every lock agent currently owns, per spec
// §4.D's janitor requirement to release a dead agent's locks. It has no
// lease id to present, so it uses releaseByOwnerScript rather than the
// regular Release path.
func (m *Manager) ReleaseAllForAgent(ctx context.Context, agent string) ([]string, error) {
	ownerKey := m.keys.LocksByOwner(agent)
	paths, err := m.s.SetMembers(ctx, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("lock: list owned paths for %s: %w", agent, err)
	}

	var released []string
	for _, p := range paths {
		res, err := m.s.Eval(ctx, releaseByOwnerScript, []string{m.keys.Lock(p)}, agent)
		if err != nil {
			return released, fmt.Errorf("lock: release %s for %s: %w", p, agent, err)
		}
		if toInt64(res) == 1 {
			released = append(released, p)
			m.publish("file_released", agent, p)
		}
		_ = m.s.SetRemove(ctx, ownerKey, p)
	}
	if len(released) > 0 {
		log.Printf("%s released all locks for dead agent=%s paths=%v", logPrefix, agent, released)
	}
	return released, nil
}

// ForceAcquire implements spec §4.C's emergency override: unconditional
// overwrite, recording forced=true and reason, publishing
// file_force_locked, and notifying the evicted owner (if any) via the
// returned previous-owner id so the caller can route it to that agent's
// inbox — the evicted owner "must abandon the current file" per spec §4.C,
// which is the dispatcher's responsibility, not this package's.
func (m *Manager) ForceAcquire(ctx context.Context, path, agent, reason string) (evictedOwner string, leaseID string, err error) {
	leaseID = uuid.New().String()
	now := time.Now()

	res, err := m.s.Eval(ctx, forceAcquireScript, []string{m.keys.Lock(path)},
		agent, now.UnixMilli(), defaultForceTTL.Milliseconds(), leaseID, reason)
	if err != nil {
		return "", "", fmt.Errorf("lock: force acquire %s: %w", path, err)
	}

	if prev, ok := res.(string); ok {
		evictedOwner = prev
	}

	if evictedOwner != "" && evictedOwner != agent {
		_ = m.s.SetRemove(ctx, m.keys.LocksByOwner(evictedOwner), path)
	}
	_ = m.s.SetAdd(ctx, m.keys.LocksByOwner(agent), path)

	log.Printf("%s FORCED path=%s agent=%s evicted=%s reason=%q", logPrefix, path, agent, evictedOwner, reason)
	m.publish("file_force_locked", agent, path)
	return evictedOwner, leaseID, nil
}

// defaultForceTTL matches the default lock TTL from spec §5
// ("task_timeout + 60s") when the caller has no more specific figure; the
// dispatcher normally supplies its own ttl via Acquire, ForceAcquire is only
// used for out-of-band emergency overrides.
const defaultForceTTL = 6 * time.Minute

// ListLocks implements spec §4.C's listLocks() for a given set of paths; it
// does not scan lock:*. Since Store's vocabulary has no native key-scan
// primitive, callers that need the full set maintain it themselves by
// tracking paths they have touched; ListLocks returns the locks for the given candidate paths,
// which is the shape every caller in this core actually needs (the
// dispatcher and observability snapshot both already know which paths they
// care about from in-flight tasks).
func (m *Manager) ListLocks(ctx context.Context, paths []string) (map[string]Lock, error) {
	out := make(map[string]Lock, len(paths))
	for _, p := range paths {
		fields, err := m.s.HashGetAll(ctx, m.keys.Lock(p))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		out[p] = lockFromFields(p, fields)
	}
	return out, nil
}

// ListLocksForAgents unions the owned-paths index (spec §9 supplemental
// "locks:by-owner:<agent>" key) across agentIDs and resolves each to its
// current Lock, letting a caller like the observability snapshot list every
// held lock without a key-scan primitive, provided it already knows the set
// of live agents (which internal/registry does).
func (m *Manager) ListLocksForAgents(ctx context.Context, agentIDs []string) (map[string]Lock, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, agent := range agentIDs {
		owned, err := m.s.SetMembers(ctx, m.keys.LocksByOwner(agent))
		if err != nil {
			return nil, fmt.Errorf("lock: list owned paths for %s: %w", agent, err)
		}
		for _, p := range owned {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	return m.ListLocks(ctx, paths)
}

func lockFromFields(path string, fields map[string]string) Lock {
	l := Lock{Path: path, Owner: fields["owner"]}
	if ms, err := parseInt64(fields["acquired_at"]); err == nil {
		l.AcquiredAt = time.UnixMilli(ms)
	}
	if ms, err := parseInt64(fields["ttl"]); err == nil {
		l.TTL = time.Duration(ms) * time.Millisecond
	}
	l.Forced = fields["forced"] == "1"
	l.Reason = fields["reason"]
	return l
}

func (m *Manager) publish(eventType, agent, path string) {
	if m.bus != nil {
		m.bus.PublishLockEvent(eventType, agent, path)
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

func parseInt64(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

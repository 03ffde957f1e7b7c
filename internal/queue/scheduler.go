package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/agentmesh/corectl/internal/coordtypes"
	"github.com/agentmesh/corectl/internal/store"
)

// defaultStarvationThreshold is spec §4.B's default; overridable via
// STARVATION_THRESHOLD_MS (spec §6).
const defaultStarvationThreshold = 5 * time.Minute

// gate returns how often (every Nth tick) a tier of the given weight may be
// served absent a starvation override, per spec §4.B step 3.
func gate(weight float64) int64 {
	switch {
	case weight >= 10:
		return 1
	case weight >= 5:
		return 2
	case weight >= 1:
		return 5
	case weight >= 0.5:
		return 10
	default:
		return 20
	}
}

// scheduler implements the weighted round-robin with starvation-override
// selection from spec §4.B. Its state (last_served_at, tick counter) is
// persisted in the store's queue:<Q>:sched hash rather than held in a
// process-local struct, per spec §3's Ownership rule: the store, not an
// in-process copy, is authoritative across worker restarts.
type scheduler struct {
	s                  store.Store
	keys               store.Keys
	starvationThreshold time.Duration
}

func newScheduler(s store.Store, starvationThreshold time.Duration) *scheduler {
	if starvationThreshold <= 0 {
		starvationThreshold = defaultStarvationThreshold
	}
	return &scheduler{s: s, keys: store.Keys{}, starvationThreshold: starvationThreshold}
}

// selectPriority picks which priority tier to serve next for queue q, given
// the set of tiers that currently have pending work, following spec §4.B's
// five-step "Scheduler" algorithm.
func (sc *scheduler) selectPriority(ctx context.Context, q string, nonEmpty map[coordtypes.Priority]bool, now time.Time) (coordtypes.Priority, error) {
	if len(nonEmpty) == 0 {
		return "", errNoPendingTiers
	}

	weights, err := sc.weights(ctx, q, nonEmpty)
	if err != nil {
		return "", err
	}

	candidates := make([]coordtypes.Priority, 0, len(nonEmpty))
	for p := range nonEmpty {
		candidates = append(candidates, p)
	}
	sort.Slice(candidates, func(i, j int) bool { return weights[candidates[i]] > weights[candidates[j]] })

	lastServed, err := sc.lastServed(ctx, q)
	if err != nil {
		return "", err
	}

	// A tier that has never been served has no last_served_at yet; its
	// starvation clock starts the first moment it is observed pending, not
	// at the dawn of time, else a brand new tier would look infinitely
	// overdue and skip the queue ahead of tiers that have been legitimately
	// waiting. firstSeen persists that moment so repeated calls agree on it.
	firstSeen, err := sc.ensureFirstSeen(ctx, q, candidates, now)
	if err != nil {
		return "", err
	}

	// Step 2: anti-starvation override.
	for _, p := range candidates {
		baseline, ok := lastServed[p]
		if !ok {
			baseline = firstSeen[p]
		}
		if now.Sub(baseline) > sc.starvationThreshold {
			return sc.commit(ctx, q, p, now)
		}
	}

	// Step 3: counter-gated weighted round robin.
	tick, err := sc.tick(ctx, q)
	if err != nil {
		return "", err
	}
	for _, p := range candidates {
		if tick%gate(weights[p]) == 0 {
			return sc.commit(ctx, q, p, now)
		}
	}

	// Step 4: fall back to the highest-weight non-empty tier.
	return sc.commit(ctx, q, candidates[0], now)
}

// commit records step 5 of spec §4.B: update last_served_at and bump the
// per-queue tick counter.
func (sc *scheduler) commit(ctx context.Context, q string, p coordtypes.Priority, now time.Time) (coordtypes.Priority, error) {
	key := sc.keys.Scheduler(q)
	if err := sc.s.HashSet(ctx, key, "last_served:"+string(p), fmt.Sprintf("%d", now.UnixNano())); err != nil {
		return "", err
	}
	if _, err := sc.s.HashIncrBy(ctx, key, "tick", 1); err != nil {
		return "", err
	}
	return p, nil
}

func (sc *scheduler) lastServed(ctx context.Context, q string) (map[coordtypes.Priority]time.Time, error) {
	all, err := sc.s.HashGetAll(ctx, sc.keys.Scheduler(q))
	if err != nil {
		return nil, err
	}
	out := make(map[coordtypes.Priority]time.Time, len(all))
	for k, v := range all {
		const prefix = "last_served:"
		if len(k) <= len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		var nanos int64
		fmt.Sscanf(v, "%d", &nanos)
		out[coordtypes.Priority(k[len(prefix):])] = time.Unix(0, nanos)
	}
	return out, nil
}

// ensureFirstSeen stamps "first_seen:<priority>" the first time a priority
// is observed among candidates, and returns the (possibly just-written)
// first_seen time for every candidate that has never been served.
func (sc *scheduler) ensureFirstSeen(ctx context.Context, q string, candidates []coordtypes.Priority, now time.Time) (map[coordtypes.Priority]time.Time, error) {
	key := sc.keys.Scheduler(q)
	all, err := sc.s.HashGetAll(ctx, key)
	if err != nil {
		return nil, err
	}

	out := make(map[coordtypes.Priority]time.Time, len(candidates))
	for _, p := range candidates {
		field := "first_seen:" + string(p)
		if v, ok := all[field]; ok {
			var nanos int64
			fmt.Sscanf(v, "%d", &nanos)
			out[p] = time.Unix(0, nanos)
			continue
		}
		if err := sc.s.HashSet(ctx, key, field, fmt.Sprintf("%d", now.UnixNano())); err != nil {
			return nil, err
		}
		out[p] = now
	}
	return out, nil
}

func (sc *scheduler) tick(ctx context.Context, q string) (int64, error) {
	v, err := sc.s.HashGet(ctx, sc.keys.Scheduler(q), "tick")
	if err != nil {
		return 0, nil // first tick: key/field absent
	}
	var tick int64
	fmt.Sscanf(v, "%d", &tick)
	return tick, nil
}

func (sc *scheduler) weights(ctx context.Context, q string, tiers map[coordtypes.Priority]bool) (map[coordtypes.Priority]float64, error) {
	out := make(map[coordtypes.Priority]float64, len(tiers))
	for p := range tiers {
		if w, ok := coordtypes.DefaultWeights[p]; ok {
			out[p] = w
		}
	}
	return out, nil
}

// Package coordtypes holds the enumerations and small value types shared
// across the coordination core, so that no package reaches for a dynamic
// map or an ad-hoc string where a closed, spec-fixed set belongs.
package coordtypes

import "fmt"

// Priority is one rung of a queue's priority ladder.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
	PriorityDeferred Priority = "deferred"
)

// DefaultWeights is the canonical priority ladder from spec §3.
var DefaultWeights = map[Priority]float64{
	PriorityCritical: 10,
	PriorityHigh:     5,
	PriorityNormal:   1,
	PriorityLow:      0.5,
	PriorityDeferred: 0.1,
}

// AllPriorities lists every priority in descending-weight order.
func AllPriorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow, PriorityDeferred}
}

// Valid reports whether p is one of the configured ladder rungs.
func (p Priority) Valid() bool {
	_, ok := DefaultWeights[p]
	return ok
}

// ParsePriority validates and returns p as a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

package registry

import "errors"

// ErrNotRegistered is returned by Heartbeat/MarkUnreachable for an agent id
// that was never registered (or whose record has expired).
var ErrNotRegistered = errors.New("registry: agent not registered")

// ErrInvalidTransition is returned when a heartbeat's status update is not a
// legal move in the agent state machine (spec §4.D).
var ErrInvalidTransition = errors.New("registry: invalid agent status transition")

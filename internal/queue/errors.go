package queue

import "errors"

var (
	// errNoPendingTiers is internal: selectPriority found nothing to serve.
	errNoPendingTiers = errors.New("queue: no pending tiers")

	// ErrUnknownQueue is returned when an operation names a queue with no
	// configured priority ladder (spec §7 "Contract violations").
	ErrUnknownQueue = errors.New("queue: unknown queue")

	// ErrInvalidPriority is returned for priorities outside the configured
	// ladder (spec §3 invariant: "priority drawn from the configured ladder").
	ErrInvalidPriority = errors.New("queue: invalid priority")

	// ErrEmpty is returned by Dequeue when no task is available within the
	// requested timeout.
	ErrEmpty = errors.New("queue: empty")
)

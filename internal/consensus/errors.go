package consensus

import "errors"

var (
	// ErrNotFound is returned when a request id has no record.
	ErrNotFound = errors.New("consensus: request not found")

	// ErrNotPending is returned by Vote/Cancel when the request has
	// already reached a terminal status (spec §4.F invariant: "once
	// terminal, the record is immutable").
	ErrNotPending = errors.New("consensus: request is not pending")

	// ErrAlreadyVoted is returned by Vote when agent has already cast a
	// vote on this request (spec §4.F invariant: "each agent has at most
	// one vote per request").
	ErrAlreadyVoted = errors.New("consensus: agent already voted")
)

package store

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned for reads against a missing key, translating
// redis.Nil so that nothing outside this package needs to import go-redis
// directly — the adapter is the sole I/O seam per spec §4.A.
var ErrNotFound = errors.New("store: key not found")

// ErrTransient wraps connection/timeout errors that a caller may retry for
// idempotent operations, per spec §4.A and §7.
var ErrTransient = errors.New("store: transient error")

// translate maps a go-redis error into the adapter's error vocabulary.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isTransient reports whether err looks like a network-level failure
// rather than a contract violation (e.g. WRONGTYPE). go-redis surfaces
// network errors as *net.OpError or context errors; anything else is
// treated as a hard failure the caller should surface, not retry.
func isTransient(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, redis.ErrClosed)
}

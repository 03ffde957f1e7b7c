// Package store is the typed façade over the shared Redis-backed
// key-value/pub-sub substrate (spec §4.A). It is the sole I/O seam for the
// rest of the coordination core: every other package talks to Redis only
// through the Store interface defined here.
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const logPrefix = "[STORE]"

// Client wraps a *redis.Client the way the teacher's internal/nats.Client
// wraps a NATS connection: a thin constructor that pings on connect, wraps
// its errors and logs the address, plus Close. The Store operations live on
// the adapter built from it.
type Client struct {
	rdb *redis.Client
}

// NewClient dials url (a redis:// connection string, matching the
// STORE_URL configuration surface from spec §6) and returns a ready Client.
func NewClient(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: invalid STORE_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("store: failed to connect: %w", err)
	}

	log.Printf("%s connected to %s", logPrefix, opts.Addr)
	return &Client{rdb: rdb}, nil
}

// NewFromRedis adapts an already-constructed *redis.Client (e.g. one
// pointed at an in-process miniredis server in tests).
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

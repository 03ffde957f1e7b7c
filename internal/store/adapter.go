package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the minimal typed vocabulary spec §4.A mandates. Every mutating
// method returns an explicit error; there is no implicit retry anywhere in
// this package — callers choose between retrying idempotent reads and
// surfacing mutating failures, per spec §4.A and §7.
type Store interface {
	// Lists
	ListPushFront(ctx context.Context, key string, values ...string) error
	ListPopBack(ctx context.Context, key string) (string, error)
	BlockingPopBack(ctx context.Context, keys []string, timeout time.Duration) (key, value string, err error)
	ListAtomicMoveTailToHead(ctx context.Context, src, dst string) (string, error)
	ListLength(ctx context.Context, key string) (int64, error)
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ListRemove(ctx context.Context, key string, count int64, value string) (int64, error)

	// Sorted sets
	SortedSetAdd(ctx context.Context, key string, score float64, member string) error
	SortedSetRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	SortedSetRemove(ctx context.Context, key string, member string) error

	// Hashes
	HashSet(ctx context.Context, key, field, value string) error
	HashGet(ctx context.Context, key, field string) (string, error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashIncrBy(ctx context.Context, key, field string, incr float64) (float64, error)

	// Sets
	SetAdd(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetRemove(ctx context.Context, key string, members ...string) error

	// Strings
	StringSetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	StringGet(ctx context.Context, key string) (string, error)
	// StringIncrByWithTTL increments a string counter (creating it at 0 if
	// absent) and (re)applies ttl, backing the queue:<Q>:stats:* "string"
	// counters from spec §6, which are incremented rather than overwritten.
	StringIncrByWithTTL(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error)

	// Atomic batches and scripting
	Multi(ctx context.Context, fn func(Pipeline) error) error
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)

	// Pub/sub
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) Subscription
}

// Pipeline is the subset of Store's write vocabulary usable inside Multi's
// atomic batch. It mirrors Store but every call is queued rather than
// executed immediately; go-redis's TxPipeline issues MULTI/EXEC around the
// batch when fn returns without error.
type Pipeline interface {
	ListPushFront(key string, values ...string)
	SetAdd(key string, members ...string)
	SetRemove(key string, members ...string)
	SortedSetAdd(key string, score float64, member string)
	HashIncrBy(key, field string, incr float64)
	HashSet(key, field, value string)
	StringSetWithTTL(key, value string, ttl time.Duration)
	StringIncrByWithTTL(key string, delta float64, ttl time.Duration)
	ListRemove(key string, count int64, value string)
}

// Subscription is a long-lived pub/sub subscription. Per spec §9's
// re-architecture guidance ("one long-lived subscription per worker with
// routing based on message type" instead of per-request subscribers),
// callers are expected to create exactly one Subscription per process and
// route by channel/message type rather than subscribing per call.
type Subscription interface {
	Channel() <-chan Message
	Close() error
}

// Message is a single pub/sub delivery.
type Message struct {
	Channel string
	Payload string
}

// redisStore is the Store implementation backed by go-redis.
type redisStore struct {
	rdb redis.Cmdable
}

// New wraps c as a Store.
func New(c *Client) Store {
	return &redisStore{rdb: c.rdb}
}

func (s *redisStore) ListPushFront(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return translate("LPUSH", s.rdb.LPush(ctx, key, args...).Err())
}

func (s *redisStore) ListPopBack(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.RPop(ctx, key).Result()
	return v, translate("RPOP", err)
}

func (s *redisStore) BlockingPopBack(ctx context.Context, keys []string, timeout time.Duration) (string, string, error) {
	res, err := s.rdb.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		return "", "", translate("BRPOP", err)
	}
	// BRPop returns [key, value].
	return res[0], res[1], nil
}

func (s *redisStore) ListAtomicMoveTailToHead(ctx context.Context, src, dst string) (string, error) {
	v, err := s.rdb.RPopLPush(ctx, src, dst).Result()
	return v, translate("RPOPLPUSH", err)
}

func (s *redisStore) ListLength(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.LLen(ctx, key).Result()
	return n, translate("LLEN", err)
}

func (s *redisStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vs, err := s.rdb.LRange(ctx, key, start, stop).Result()
	return vs, translate("LRANGE", err)
}

func (s *redisStore) ListRemove(ctx context.Context, key string, count int64, value string) (int64, error) {
	n, err := s.rdb.LRem(ctx, key, count, value).Result()
	return n, translate("LREM", err)
}

func (s *redisStore) SortedSetAdd(ctx context.Context, key string, score float64, member string) error {
	return translate("ZADD", s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err())
}

func (s *redisStore) SortedSetRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	vs, err := s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	return vs, translate("ZRANGEBYSCORE", err)
}

func (s *redisStore) SortedSetRemove(ctx context.Context, key string, member string) error {
	return translate("ZREM", s.rdb.ZRem(ctx, key, member).Err())
}

func (s *redisStore) HashSet(ctx context.Context, key, field, value string) error {
	return translate("HSET", s.rdb.HSet(ctx, key, field, value).Err())
}

func (s *redisStore) HashGet(ctx context.Context, key, field string) (string, error) {
	v, err := s.rdb.HGet(ctx, key, field).Result()
	return v, translate("HGET", err)
}

func (s *redisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.rdb.HGetAll(ctx, key).Result()
	return m, translate("HGETALL", err)
}

func (s *redisStore) HashIncrBy(ctx context.Context, key, field string, incr float64) (float64, error) {
	v, err := s.rdb.HIncrByFloat(ctx, key, field, incr).Result()
	return v, translate("HINCRBYFLOAT", err)
}

func (s *redisStore) SetAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return translate("SADD", s.rdb.SAdd(ctx, key, args...).Err())
}

func (s *redisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	vs, err := s.rdb.SMembers(ctx, key).Result()
	return vs, translate("SMEMBERS", err)
}

func (s *redisStore) SetRemove(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return translate("SREM", s.rdb.SRem(ctx, key, args...).Err())
}

func (s *redisStore) StringSetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return translate("SET", s.rdb.Set(ctx, key, value, ttl).Err())
}

func (s *redisStore) StringGet(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	return v, translate("GET", err)
}

func (s *redisStore) StringIncrByWithTTL(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	v, err := s.rdb.IncrByFloat(ctx, key, delta).Result()
	if err != nil {
		return 0, translate("INCRBYFLOAT", err)
	}
	if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return v, translate("EXPIRE", err)
	}
	return v, nil
}

func (s *redisStore) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	v, err := s.rdb.Eval(ctx, script, keys, args...).Result()
	return v, translate("EVAL", err)
}

func (s *redisStore) Publish(ctx context.Context, channel, message string) error {
	return translate("PUBLISH", s.rdb.Publish(ctx, channel, message).Err())
}

func (s *redisStore) Subscribe(ctx context.Context, channels ...string) Subscription {
	// Subscribe requires a *redis.Client (not the Cmdable interface) for
	// its pub/sub transport; redisStore is always constructed from one via
	// New, so this type assertion cannot fail in practice.
	rdb := s.rdb.(*redis.Client)
	pubsub := rdb.Subscribe(ctx, channels...)
	return &redisSubscription{pubsub: pubsub}
}

func (s *redisStore) Multi(ctx context.Context, fn func(Pipeline) error) error {
	rdb := s.rdb.(*redis.Client)
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(&redisPipeline{pipe: pipe, ctx: ctx})
	})
	return translate("MULTI", err)
}

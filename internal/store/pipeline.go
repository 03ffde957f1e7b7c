package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisPipeline queues commands into a go-redis transactional pipeline.
// Errors from individual queued commands are surfaced when the pipeline is
// executed by TxPipelined in Multi, not here — queuing itself cannot fail.
type redisPipeline struct {
	pipe redis.Pipeliner
	ctx  context.Context
}

func (p *redisPipeline) ListPushFront(key string, values ...string) {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	p.pipe.LPush(p.ctx, key, args...)
}

func (p *redisPipeline) SetAdd(key string, members ...string) {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	p.pipe.SAdd(p.ctx, key, args...)
}

func (p *redisPipeline) SetRemove(key string, members ...string) {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	p.pipe.SRem(p.ctx, key, args...)
}

func (p *redisPipeline) SortedSetAdd(key string, score float64, member string) {
	p.pipe.ZAdd(p.ctx, key, redis.Z{Score: score, Member: member})
}

func (p *redisPipeline) HashIncrBy(key, field string, incr float64) {
	p.pipe.HIncrByFloat(p.ctx, key, field, incr)
}

func (p *redisPipeline) HashSet(key, field, value string) {
	p.pipe.HSet(p.ctx, key, field, value)
}

func (p *redisPipeline) StringSetWithTTL(key, value string, ttl time.Duration) {
	p.pipe.Set(p.ctx, key, value, ttl)
}

func (p *redisPipeline) ListRemove(key string, count int64, value string) {
	p.pipe.LRem(p.ctx, key, count, value)
}

func (p *redisPipeline) StringIncrByWithTTL(key string, delta float64, ttl time.Duration) {
	p.pipe.IncrByFloat(p.ctx, key, delta)
	p.pipe.Expire(p.ctx, key, ttl)
}

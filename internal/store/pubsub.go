package store

import "github.com/redis/go-redis/v9"

// redisSubscription adapts *redis.PubSub to the Subscription interface,
// translating go-redis's *redis.Message into the adapter's own Message type
// so nothing downstream imports go-redis directly.
type redisSubscription struct {
	pubsub *redis.PubSub
}

func (s *redisSubscription) Channel() <-chan Message {
	out := make(chan Message)
	in := s.pubsub.Channel()
	go func() {
		defer close(out)
		for m := range in {
			out <- Message{Channel: m.Channel, Payload: m.Payload}
		}
	}()
	return out
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

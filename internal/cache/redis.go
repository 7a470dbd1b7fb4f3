package cache

import (
	"context"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	cb "github.com/sony/gobreaker"

	"github.com/emixlab/emix/internal/metrics"
)

const redisOpTimeout = 500 * time.Millisecond

// redisCache fronts a Redis client with a circuit breaker: while the breaker
// is open, reads report a miss and writes are dropped, so a Redis outage
// degrades to solving without a cache instead of stalling every solve.
type redisCache struct {
	r  *redis.Client
	br *cb.CircuitBreaker
}

// NewRedis wraps an existing client. The caller owns the client lifecycle.
func NewRedis(client *redis.Client) Cache {
	st := cb.Settings{Name: "result-cache"}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	st.OnStateChange = func(name string, from, to cb.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
			Msg("result cache breaker state change")
	}
	return &redisCache{r: client, br: cb.NewCircuitBreaker(st)}
}

func (c *redisCache) Get(key string) ([]byte, bool) {
	v, err := c.br.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()
		b, err := c.r.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return []byte(nil), nil
		}
		return b, err
	})
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "get").Inc()
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		return nil, false
	}
	b := v.([]byte)
	if b == nil {
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("redis").Inc()
	return b, true
}

func (c *redisCache) Set(key string, val []byte, ttl time.Duration) {
	_, err := c.br.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()
		return nil, c.r.Set(ctx, key, val, ttl).Err()
	})
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "set").Inc()
		log.Debug().Err(err).Str("key", key).Msg("result cache write dropped")
	}
}

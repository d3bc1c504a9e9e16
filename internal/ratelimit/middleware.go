package ratelimit

import (
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// New builds an IP-keyed rate limit middleware backed by Redis. The session
// creation endpoint is public and opens provider sessions, so admission
// control sits in front of it when Redis is available.
func New(client *redis.Client, prefix string, window time.Duration, max int) (func(http.Handler) http.Handler, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: prefix,
	})
	if err != nil {
		return nil, err
	}
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	middleware := stdlib.NewMiddleware(limiter.New(store, rate, limiter.WithTrustForwardHeader(true)))
	return middleware.Handler, nil
}

// Passthrough is used when no Redis client is configured.
func Passthrough(next http.Handler) http.Handler {
	return next
}

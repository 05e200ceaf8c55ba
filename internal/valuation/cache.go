package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
)

// Cache stores folded positions between ledger writes.
type Cache interface {
	Get(ctx context.Context, productID uuid.UUID) (*Position, bool, error)
	Set(ctx context.Context, pos Position) error
	Invalidate(ctx context.Context, productID uuid.UUID) error
}

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	PositionKey(productID string) string
}

const (
	breakerTrips   = 5
	breakerCooloff = 30 * time.Second
)

// RedisCache keeps positions as JSON under jp:position:<product id>.
// Reads and writes go through a circuit breaker so a sick redis costs one
// failed round trip per cooloff instead of one per request; while open the
// cache behaves as empty. Invalidate always reaches redis.
type RedisCache struct {
	store   redisStore
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

func NewRedisCache(store redisStore, ttl time.Duration, logg *logger.Logger) (*RedisCache, error) {
	if store == nil {
		return nil, errors.New("redis store required for position cache")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	settings := gobreaker.Settings{
		Name:    "position-cache",
		Timeout: breakerCooloff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		// A miss is a healthy answer.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	}
	if logg != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			ctx := logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			logg.Warn(ctx, "position cache breaker changed state")
		}
	}
	return &RedisCache{store: store, ttl: ttl, breaker: gobreaker.NewCircuitBreaker(settings)}, nil
}

func (c *RedisCache) Get(ctx context.Context, productID uuid.UUID) (*Position, bool, error) {
	raw, err := c.breaker.Execute(func() (any, error) {
		return c.store.Get(ctx, c.store.PositionKey(productID.String()))
	})
	switch {
	case errors.Is(err, redis.Nil), isBreakerRejection(err):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("read cached position: %w", err)
	}
	var pos Position
	if err := json.Unmarshal([]byte(raw.(string)), &pos); err != nil {
		return nil, false, fmt.Errorf("decode cached position: %w", err)
	}
	return &pos, true, nil
}

func (c *RedisCache) Set(ctx context.Context, pos Position) error {
	payload, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	_, err = c.breaker.Execute(func() (any, error) {
		return nil, c.store.Set(ctx, c.store.PositionKey(pos.ProductID.String()), string(payload), c.ttl)
	})
	if isBreakerRejection(err) {
		return nil
	}
	return err
}

func (c *RedisCache) Invalidate(ctx context.Context, productID uuid.UUID) error {
	return c.store.Del(ctx, c.store.PositionKey(productID.String()))
}

// BreakerState reports whether reads currently bypass redis.
func (c *RedisCache) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

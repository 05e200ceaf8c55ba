package locks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"

	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
)

const (
	defaultTTL     = 30 * time.Second
	defaultRetries = 40
	defaultBackoff = 50 * time.Millisecond
)

type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// RedisOptions tunes the distributed locker.
type RedisOptions struct {
	TTL     time.Duration
	Retries int
	Backoff time.Duration
	// KeyFunc namespaces entity/id pairs into redis keys.
	KeyFunc func(entity, id string) string
}

// RedisLocker implements Locker on bsm/redislock so every API replica sees the same locks.
type RedisLocker struct {
	client  obtainer
	ttl     time.Duration
	retries int
	backoff time.Duration
	keyFunc func(entity, id string) string
	logg    *logger.Logger
}

// NewRedisLocker builds a locker over a redislock client.
func NewRedisLocker(client *redislock.Client, opts RedisOptions, logg *logger.Logger) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redislock client required")
	}
	return newRedisLocker(client, opts, logg), nil
}

func newRedisLocker(client obtainer, opts RedisOptions, logg *logger.Logger) *RedisLocker {
	l := &RedisLocker{
		client:  client,
		ttl:     opts.TTL,
		retries: opts.Retries,
		backoff: opts.Backoff,
		keyFunc: opts.KeyFunc,
		logg:    logg,
	}
	if l.ttl <= 0 {
		l.ttl = defaultTTL
	}
	if l.retries <= 0 {
		l.retries = defaultRetries
	}
	if l.backoff <= 0 {
		l.backoff = defaultBackoff
	}
	if l.keyFunc == nil {
		l.keyFunc = func(entity, id string) string { return "jp:lock:" + entity + ":" + id }
	}
	return l
}

func (l *RedisLocker) Acquire(ctx context.Context, entity, id string) (Release, error) {
	key := l.keyFunc(entity, id)
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return noopRelease, busyError(entity, id)
		}
		return noopRelease, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "obtain entity lock")
	}

	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() {
			if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) && l.logg != nil {
				l.logg.Warn(l.logg.WithField(ctx, "lock_key", key), "release entity lock failed: "+err.Error())
			}
		})
	}, nil
}

package locks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
)

func TestAcquireNilLockerIsNoop(t *testing.T) {
	release, err := Acquire(context.Background(), nil, EntitySale, "s1")
	require.NoError(t, err)
	release(context.Background())
}

func TestMemoryLockerSerialisesSameEntity(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, EntitySettlement, "s1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release(ctx)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestMemoryLockerHonoursContext(t *testing.T) {
	locker := NewMemoryLocker()
	release, err := locker.Acquire(context.Background(), EntitySale, "s1")
	require.NoError(t, err)
	defer release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, EntitySale, "s1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	other, err := locker.Acquire(context.Background(), EntitySale, "s2")
	require.NoError(t, err)
	other(context.Background())
}

func TestAcquireAllReleasesOnFailure(t *testing.T) {
	locker := NewMemoryLocker()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	blocker, err := locker.Acquire(context.Background(), EntityProduct, ids[2].String())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = AcquireAll(ctx, locker, EntityProduct, ids)
	require.Error(t, err)
	blocker(context.Background())

	release, err := AcquireAll(context.Background(), locker, EntityProduct, append(ids, ids[0]))
	require.NoError(t, err)
	release(context.Background())
}

type fakeObtainer struct {
	err  error
	keys []string
}

func (f *fakeObtainer) Obtain(_ context.Context, key string, _ time.Duration, _ *redislock.Options) (*redislock.Lock, error) {
	f.keys = append(f.keys, key)
	return nil, f.err
}

func TestRedisLockerMapsNotObtainedToConflict(t *testing.T) {
	fake := &fakeObtainer{err: redislock.ErrNotObtained}
	locker := newRedisLocker(fake, RedisOptions{}, nil)

	_, err := locker.Acquire(context.Background(), EntitySettlement, "abc")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, []string{"jp:lock:settlement:abc"}, fake.keys)
}

func TestRedisLockerWrapsTransportErrors(t *testing.T) {
	fake := &fakeObtainer{err: errors.New("connection refused")}
	locker := newRedisLocker(fake, RedisOptions{KeyFunc: func(entity, id string) string { return entity + "/" + id }}, nil)

	_, err := locker.Acquire(context.Background(), EntitySale, "s9")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, []string{"sale/s9"}, fake.keys)
}

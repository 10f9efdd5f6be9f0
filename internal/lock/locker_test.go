package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func setupRedisLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	return setupRedisLockerWithLogger(t, zaptest.NewLogger(t))
}

func setupRedisLockerWithLogger(t *testing.T, logger *zap.Logger) (Locker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisLocker(client, time.Minute, logger), mr
}

func TestRedisLocker_LockAndRelease(t *testing.T) {
	locker, mr := setupRedisLocker(t)
	ctx := context.Background()

	release, err := locker.Lock(ctx, "pay_abc")
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockKey("pay_abc")))

	release()
	assert.False(t, mr.Exists(lockKey("pay_abc")))
}

func TestRedisLocker_SecondCallerWaits(t *testing.T) {
	locker, _ := setupRedisLocker(t)

	release, err := locker.Lock(context.Background(), "pay_abc")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "pay_abc")
	assert.ErrorIs(t, err, ErrLockTimeout)

	release()

	release2, err := locker.Lock(context.Background(), "pay_abc")
	require.NoError(t, err)
	release2()
}

func TestRedisLocker_ReleaseDoesNotDropForeignLock(t *testing.T) {
	locker, mr := setupRedisLocker(t)

	release, err := locker.Lock(context.Background(), "pay_abc")
	require.NoError(t, err)

	// lock expired and someone else took it
	require.NoError(t, mr.Set(lockKey("pay_abc"), "other-owner"))

	release()

	got, err := mr.Get(lockKey("pay_abc"))
	require.NoError(t, err)
	assert.Equal(t, "other-owner", got)
}

func TestRedisLocker_ReleaseFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	locker, mr := setupRedisLockerWithLogger(t, zap.New(core))

	release, err := locker.Lock(context.Background(), "pay_abc")
	require.NoError(t, err)

	mr.Close()
	release()

	entries := logs.FilterMessage("release lock failed, waiting for expiry").All()
	require.Len(t, entries, 1)
	assert.Equal(t, lockKey("pay_abc"), entries[0].ContextMap()["key"])
}

func TestMemoryLocker_Serializes(t *testing.T) {
	locker := NewMemoryLocker()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Lock(context.Background(), "pay_abc")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestMemoryLocker_ContextCancelled(t *testing.T) {
	locker := NewMemoryLocker()

	release, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestMemoryLocker_IndependentKeys(t *testing.T) {
	locker := NewMemoryLocker()

	r1, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r2, err := locker.Lock(ctx, "b")
	require.NoError(t, err)
	r2()
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker serializes work on a key. The returned release func must be called
// exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

var ErrLockTimeout = errors.New("timed out waiting for lock")

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	client     *redis.Client
	logger     *zap.Logger
	ttl        time.Duration
	retryDelay time.Duration
}

// NewRedisLocker returns a Locker backed by SET NX. A lock whose release
// fails is logged and expires after ttl.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisLocker{
		client:     client,
		logger:     logger,
		ttl:        ttl,
		retryDelay: 25 * time.Millisecond,
	}
}

func (l *redisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKey(key)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w %s: %v", ErrLockTimeout, key, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}

	return func() {
		// release must outlive a cancelled request context
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("release lock failed, waiting for expiry",
				zap.String("key", redisKey),
				zap.Duration("ttl", l.ttl),
				zap.Error(err),
			)
		}
	}, nil
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

// memoryLocker is used when Redis is not configured; it only serializes
// within one process.
type memoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() Locker {
	return &memoryLocker{locks: make(map[string]*keyLock)}
}

func (l *memoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, kl)
		return nil, fmt.Errorf("%w %s: %v", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.unref(key, kl)
		})
	}, nil
}

func (l *memoryLocker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

package runner

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrRunInProgress is returned when a run is requested while another one
// holds the lock.
var ErrRunInProgress = errors.New("run already in progress")

// Locker grants exclusive run ownership.
type Locker interface {
	// TryLock acquires the lock without waiting. It returns ErrRunInProgress
	// when the lock is held. The returned function releases the lock.
	TryLock(ctx context.Context) (release func(), err error)
}

// LocalLock guards runs within one process.
type LocalLock struct {
	mu sync.Mutex
}

var _ Locker = (*LocalLock)(nil)

// NewLocalLock creates a LocalLock.
func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

// TryLock implements Locker.
func (l *LocalLock) TryLock(context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	return l.mu.Unlock, nil
}

// DefaultLockTTL bounds how long a crashed holder blocks other replicas.
const DefaultLockTTL = time.Hour

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock guards runs across replicas with SET NX PX.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

var _ Locker = (*RedisLock)(nil)

// NewRedisLock creates a RedisLock on key. Non-positive ttl uses
// DefaultLockTTL.
func NewRedisLock(client redis.UniversalClient, key string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}
}

// TryLock implements Locker.
func (l *RedisLock) TryLock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "acquire run lock")
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	release := func() {
		ctx := context.WithoutCancel(ctx)
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			zctx.From(ctx).Warn("Release run lock", zap.String("key", l.key), zap.Error(err))
		}
	}
	return release, nil
}

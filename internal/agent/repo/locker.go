package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	errx "github.com/finbuddy-intake-core/server/internal/core/error"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

// SessionLocker serialises turns for one session.
type SessionLocker interface {
	// Acquire blocks until the session lock is held or ctx is done. The
	// returned release func is idempotent.
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// LocalSessionLocker is a ref-counted keyed mutex for a single process.
type LocalSessionLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewLocalSessionLocker() *LocalSessionLocker {
	return &LocalSessionLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalSessionLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	k, ok := l.locks[sessionID]
	if !ok {
		k = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[sessionID] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(sessionID, k)
		return nil, fmt.Errorf("%w: %w", errx.ErrSessionLocked, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-k.sem
			l.unref(sessionID, k)
		})
	}, nil
}

func (l *LocalSessionLocker) unref(sessionID string, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, sessionID)
	}
}

// held returns the number of sessions with a holder or waiter.
func (l *LocalSessionLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends the key's TTL only when it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

const (
	defaultLockPoll    = 50 * time.Millisecond
	lockReleaseTimeout = 2 * time.Second
)

// RedisSessionLocker is a SET NX lock shared by every process on one Redis.
type RedisSessionLocker struct {
	rdb  redis.Cmdable
	ttl  time.Duration
	poll time.Duration
}

// NewRedisSessionLocker creates a distributed locker. ttl bounds how long a
// crashed holder can keep a session locked; a live holder renews the key every
// ttl/3 until release, so turns may run longer than ttl.
func NewRedisSessionLocker(rdb redis.Cmdable, ttl time.Duration) *RedisSessionLocker {
	return &RedisSessionLocker{rdb: rdb, ttl: ttl, poll: defaultLockPoll}
}

func (l *RedisSessionLocker) lockKey(sessionID string) string {
	return fmt.Sprintf("session:%s:lock", sessionID)
}

func (l *RedisSessionLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := l.lockKey(sessionID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", errx.ErrSessionLocked, ctx.Err())
			}
			logx.Error().Err(err).Str("key", key).Msg("failed to acquire session lock")
			return nil, errx.WrapRedis(err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", errx.ErrSessionLocked, ctx.Err())
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			rctx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
			defer cancel()
			if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				logx.Warn().Err(err).Str("key", key).Msg("failed to release session lock")
			}
		})
	}, nil
}

// keepAlive extends the lock TTL until stop is closed or the token is lost.
func (l *RedisSessionLocker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		rctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := renewScript.Run(rctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			logx.Warn().Err(err).Str("key", key).Msg("failed to renew session lock")
		case n == 0:
			logx.Error().Str("key", key).Msg("session lock lost before release")
			return
		}
	}
}

var (
	_ SessionLocker = (*LocalSessionLocker)(nil)
	_ SessionLocker = (*RedisSessionLocker)(nil)
)

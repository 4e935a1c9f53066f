package businessflow

import (
	"context"
	"sync"

	"github.com/amirphl/Kusanagi/utils"
	"github.com/redis/go-redis/v9"
)

// RefreshLocker serializes credential refreshes per profile. TryAcquire does
// not block: a held lease means another refresh is in flight and the caller
// fails with ErrConcurrentRefresh instead of waiting.
type RefreshLocker interface {
	TryAcquire(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// RedisRefreshLocker implements RefreshLocker with a SET NX lease so the
// exclusion holds across horizontally scaled instances. The TTL bounds lease
// lifetime if a holder dies before releasing.
type RedisRefreshLocker struct {
	rc     *redis.Client
	prefix string
}

// NewRedisRefreshLocker creates a Redis-backed refresh locker
func NewRedisRefreshLocker(rc *redis.Client, prefix string) RefreshLocker {
	return &RedisRefreshLocker{
		rc:     rc,
		prefix: prefix,
	}
}

func (l *RedisRefreshLocker) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	leaseKey := l.prefix + "esp_refresh:" + key

	ok, err := l.rc.SetNX(ctx, leaseKey, 1, utils.RefreshLeaseTTL).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		_ = l.rc.Del(context.Background(), leaseKey).Err()
	}
	return release, true, nil
}

// LocalRefreshLocker implements RefreshLocker in process memory, for
// single-instance deployments and tests where Redis is absent
type LocalRefreshLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalRefreshLocker creates an in-memory refresh locker
func NewLocalRefreshLocker() RefreshLocker {
	return &LocalRefreshLocker{
		held: make(map[string]bool),
	}
}

func (l *LocalRefreshLocker) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}
	return release, true, nil
}

package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when the caller still owns it.
var releaseScript = redis.NewScript(`if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type localLock struct {
	token   string
	expires time.Time
}

// LockRepository provides short-lived per-key mutual exclusion on Redis. Without a
// client the locks are held in process, which only excludes callers in this instance.
type LockRepository struct {
	client *redis.Client
	prefix string

	mu    sync.Mutex
	local map[string]localLock
	now   func() time.Time
}

// NewLockRepository constructs the lock repository.
func NewLockRepository(client *redis.Client) *LockRepository {
	return &LockRepository{client: client, prefix: "lock:", local: map[string]localLock{}, now: time.Now}
}

// Distributed reports whether locks are shared across instances.
func (r *LockRepository) Distributed() bool {
	return r.client != nil
}

// Acquire attempts to take the lock for key. It returns an owner token and false when
// another holder has it.
func (r *LockRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	if r.client == nil {
		return token, r.acquireLocal(key, token, ttl), nil
	}
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return token, ok, nil
}

// Release frees the lock when token still owns it.
func (r *LockRepository) Release(ctx context.Context, key, token string) error {
	if r.client == nil {
		r.releaseLocal(key, token)
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}

func (r *LockRepository) acquireLocal(key, token string, ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if held, ok := r.local[key]; ok && now.Before(held.expires) {
		return false
	}
	r.local[key] = localLock{token: token, expires: now.Add(ttl)}
	return true
}

func (r *LockRepository) releaseLocal(key, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if held, ok := r.local[key]; ok && held.token == token {
		delete(r.local, key)
	}
}

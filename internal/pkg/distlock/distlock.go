package distlock

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release or Extend when the lock is no longer
// owned by this instance (expired or taken over).
var ErrNotHeld = errors.New("distlock: lock not held")

// Lock is a distributed mutual-exclusion primitive. A Lock instance is
// single-owner; share the backend client, not the Lock, across goroutines.
type Lock interface {
	// Acquire tries to take the lock without blocking. True means acquired.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this instance still owns it.
	Release(ctx context.Context) error
}

// New picks the best available backend: Redis when a client is configured,
// otherwise PostgreSQL advisory locks on the primary database.
func New(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) Lock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewAdvisoryLock(db, key)
}

// AdvisoryLock implements Lock with pg_try_advisory_lock. Advisory locks are
// session-scoped, so a crashed holder releases implicitly when its connection
// drops, mirroring Redis TTL expiry.
type AdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewAdvisoryLock derives a stable 64-bit lock id from key.
func NewAdvisoryLock(db *sql.DB, key string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &AdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *AdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

func (l *AdvisoryLock) Release(ctx context.Context) error {
	var released bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released)
	if err != nil {
		return err
	}
	if !released {
		return ErrNotHeld
	}
	return nil
}

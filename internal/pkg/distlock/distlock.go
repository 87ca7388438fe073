package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Extender is implemented by locks whose hold expires. Long holders call
// Extend before the TTL runs out. Advisory locks live as long as their
// session and do not implement it.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// Locker hands out lock instances for arbitrary keys. Trigger claims and
// scheduler job guards both go through a Locker.
type Locker interface {
	Lock(key string, ttl time.Duration) DistLock
}

// Provider picks the best available backend for each lock it creates.
type Provider struct {
	redis *redis.Client
	db    *sql.DB
	local *LocalLocks
}

// NewProvider returns a Locker. Redis is preferred for cross-host locking,
// then PostgreSQL advisory locks. With neither, locks are process-local.
func NewProvider(redisClient *redis.Client, db *sql.DB) *Provider {
	return &Provider{redis: redisClient, db: db, local: NewLocalLocks()}
}

// Lock implements Locker.
func (p *Provider) Lock(key string, ttl time.Duration) DistLock {
	return NewLock(p.redis, p.db, p.local, key, ttl)
}

// Backend names the backend in use, for startup logs.
func (p *Provider) Backend() string {
	switch {
	case p.redis != nil:
		return "redis"
	case p.db != nil:
		return "postgres"
	}
	return "local"
}

// NewLock creates a distributed lock using the best available backend.
func NewLock(redisClient *redis.Client, db *sql.DB, local *LocalLocks, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	if db != nil {
		return NewPGAdvisoryLock(db, key)
	}
	return local.Lock(key, ttl)
}

// =============================================================================
// PostgreSQL Advisory Lock (fallback when Redis is unavailable)
// =============================================================================
// Uses pg_try_advisory_lock / pg_advisory_unlock which are session-scoped.
// The lock is automatically released if the DB connection drops, providing
// crash-safety similar to Redis TTL expiration. The connection that took the
// lock is pinned until Release so the unlock runs in the same session.

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock. Returns true if successful.
// Uses pg_try_advisory_lock which returns immediately (non-blocking).
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, nil
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock %d: %w", l.lockID, err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release releases the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	cerr := l.conn.Close()
	l.conn = nil
	if err != nil {
		return err
	}
	return cerr
}

// =============================================================================
// In-process locks (single binary, no Redis, no database)
// =============================================================================

// LocalLocks is a process-wide table of held keys with expiry.
type LocalLocks struct {
	mu   sync.Mutex
	held map[string]localEntry
	now  func() time.Time
}

type localEntry struct {
	owner   *LocalLock
	expires time.Time
}

// NewLocalLocks returns an empty lock table.
func NewLocalLocks() *LocalLocks {
	return &LocalLocks{held: make(map[string]localEntry), now: time.Now}
}

// Lock returns a lock bound to key in this table.
func (t *LocalLocks) Lock(key string, ttl time.Duration) *LocalLock {
	return &LocalLock{table: t, key: key, ttl: ttl}
}

// LocalLock implements DistLock in memory.
type LocalLock struct {
	table *LocalLocks
	key   string
	ttl   time.Duration
}

// Acquire takes the key unless another live owner holds it.
func (l *LocalLock) Acquire(_ context.Context) (bool, error) {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if e, ok := t.held[l.key]; ok && e.owner != l && (e.expires.IsZero() || now.Before(e.expires)) {
		return false, nil
	}
	e := localEntry{owner: l}
	if l.ttl > 0 {
		e.expires = now.Add(l.ttl)
	}
	t.held[l.key] = e
	return true, nil
}

// Release drops the key if this lock still owns it.
func (l *LocalLock) Release(_ context.Context) error {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.held[l.key]; ok && e.owner == l {
		delete(t.held, l.key)
	}
	return nil
}

// Extend pushes the expiry out to ttl from now while l still owns the key.
func (l *LocalLock) Extend(_ context.Context, ttl time.Duration) error {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.held[l.key]
	if !ok || e.owner != l {
		return fmt.Errorf("extend lock %s: not owner", l.key)
	}
	if !e.expires.IsZero() && !t.now().Before(e.expires) {
		return fmt.Errorf("extend lock %s: expired", l.key)
	}
	if ttl > 0 {
		e.expires = t.now().Add(ttl)
	} else {
		e.expires = time.Time{}
	}
	t.held[l.key] = e
	return nil
}

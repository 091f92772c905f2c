package scopecache

import (
	"context"
	"time"

	auth "github.com/goliatone/go-auth0-bearer"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a resolved permission set stays cached.
	DefaultTTL = 15 * time.Minute
	// DefaultComputeTimeout bounds a shared computation started by Fetch.
	DefaultComputeTimeout = 30 * time.Second
)

// Entry is a cached permission set.
type Entry struct {
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is stale at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is the backing storage of a Cache. Stores may expire entries on
// their own; Cache never relies on it.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key builds the cache key of a principal: "{namespace}:{provider}|{local id}".
func Key(namespace, provider, localID string) string {
	return namespace + ":" + provider + "|" + localID
}

// Cache stores permission sets per principal with a fixed time to live.
// Concurrent Fetch calls for one key share a single computation.
type Cache struct {
	store          Store
	ttl            time.Duration
	computeTimeout time.Duration
	now            func() time.Time
	group          singleflight.Group
	logger         auth.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the lifetime of new entries.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithComputeTimeout bounds how long a shared computation may run once it no
// longer follows the cancellation of the caller that started it.
func WithComputeTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		if timeout > 0 {
			c.computeTimeout = timeout
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger auth.Logger) Option {
	return func(c *Cache) {
		c.logger = auth.EnsureLogger(logger)
	}
}

// New creates a Cache over store. A nil store falls back to a MemoryStore.
func New(store Store, opts ...Option) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Cache{
		store:          store,
		ttl:            DefaultTTL,
		computeTimeout: DefaultComputeTimeout,
		now:            time.Now,
		logger:         auth.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// TTL returns the lifetime of new entries.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached scopes of key. Expired entries and store failures
// are reported as a miss. Expired entries are left to the store TTL or the
// next Put, so a read never removes a value written after it started.
func (c *Cache) Get(ctx context.Context, key string) ([]string, bool) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("scope cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if entry.Expired(c.now()) {
		return nil, false
	}
	return cloneScopes(entry.Scopes), true
}

// Put stores scopes under key until now + TTL.
func (c *Cache) Put(ctx context.Context, key string, scopes []string) error {
	entry := Entry{
		Scopes:    cloneScopes(scopes),
		ExpiresAt: c.now().Add(c.ttl),
	}
	return c.store.Set(ctx, key, entry, c.ttl)
}

// Invalidate drops key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// Fetch returns the cached scopes of key or computes, stores, and returns
// them. Compute errors are returned as is and never cached. A failure to
// store a computed value is logged; the value is still returned.
//
// The computation is shared by every concurrent caller of key. It runs with
// the values of the first caller's context but not its cancellation, bounded
// by the compute timeout. Each caller stops waiting when its own context is
// done.
func (c *Cache) Fetch(ctx context.Context, key string, compute func(ctx context.Context) ([]string, error)) ([]string, error) {
	if scopes, ok := c.Get(ctx, key); ok {
		return scopes, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()

		if scopes, ok := c.Get(shared, key); ok {
			return scopes, nil
		}

		scopes, err := compute(shared)
		if err != nil {
			return nil, err
		}
		if scopes == nil {
			scopes = []string{}
		}

		if err := c.Put(shared, key, scopes); err != nil {
			c.logger.Warn("scope cache write failed", "key", key, "error", err)
		}
		return scopes, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneScopes(res.Val.([]string)), nil
	}
}

func cloneScopes(scopes []string) []string {
	if scopes == nil {
		return []string{}
	}
	return append([]string{}, scopes...)
}

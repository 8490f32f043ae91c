package intent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/originalmmd/rift-robotics-ai/internal/observe"
)

const (
	// DefaultTTL is how long a loaded rule set is served before the next
	// lookup refetches it.
	DefaultTTL = 60 * time.Second

	// DefaultFetchTimeout bounds a single source fetch.
	DefaultFetchTimeout = 5 * time.Second
)

var (
	// ErrFetch wraps every failure to load a rule set through a [Cache].
	ErrFetch = errors.New("intent: rule set fetch failed")

	// ErrNoRuleSet is returned when a source reports success without a rule
	// set.
	ErrNoRuleSet = errors.New("intent: source returned no rule set")
)

// CacheOption is a functional option for configuring a [Cache].
type CacheOption func(*Cache)

// WithTTL overrides [DefaultTTL]. Non-positive values are ignored.
func WithTTL(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithFetchTimeout overrides [DefaultFetchTimeout]. Non-positive values are
// ignored.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithClock replaces [time.Now] as the cache's time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithCacheMetrics records lookups and fetches on m instead of
// [observe.DefaultMetrics].
func WithCacheMetrics(m *observe.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// Cache holds the most recently loaded [RuleSet] for a fixed TTL.
//
// Staleness is checked lazily on [Cache.Get]; there is no background refresh.
// A failed refresh is returned to the caller and nothing expired is ever
// served. Concurrent lookups that find the entry stale share a single fetch.
// A Cache is safe for concurrent use.
type Cache struct {
	src          Source
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	metrics      *observe.Metrics

	mu       sync.Mutex
	set      *RuleSet
	loadedAt time.Time

	flight singleflight.Group
}

// NewCache returns an empty [Cache] backed by src.
func NewCache(src Source, opts ...CacheOption) *Cache {
	c := &Cache{
		src:          src,
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Get returns the cached rule set if it was loaded less than TTL ago, and
// otherwise fetches a new one from the source, stores it and returns it.
//
// Fetch failures wrap [ErrFetch]. The shared fetch runs detached from any
// single caller's cancellation, bounded by the fetch timeout; a caller whose
// ctx ends first returns ctx.Err() while the fetch carries on for the others.
func (c *Cache) Get(ctx context.Context) (*RuleSet, error) {
	if rs, ok := c.fresh(); ok {
		c.metrics.RecordCacheLookup(ctx, true)
		return rs, nil
	}
	c.metrics.RecordCacheLookup(ctx, false)

	ch := c.flight.DoChan("ruleset", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*RuleSet), nil
	}
}

// Loaded reports when the current entry was stored, and whether there is one.
// The entry may already be expired.
func (c *Cache) Loaded() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadedAt, c.set != nil
}

func (c *Cache) fresh() (*RuleSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set == nil || c.now().Sub(c.loadedAt) >= c.ttl {
		return nil, false
	}
	return c.set, true
}

func (c *Cache) refresh(ctx context.Context) (*RuleSet, error) {
	// A flight that finished just before this one started may have already
	// stored a fresh entry.
	if rs, ok := c.fresh(); ok {
		return rs, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	start := time.Now()
	rs, err := c.src.Fetch(ctx)
	if err == nil && rs == nil {
		err = ErrNoRuleSet
	}
	c.metrics.RecordFetch(ctx, time.Since(start).Seconds(), err)
	if err != nil {
		c.metrics.RecordProviderError(ctx, "ruleset")
		observe.Logger(ctx).Warn("intent: rule set fetch failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	c.mu.Lock()
	c.set = rs
	c.loadedAt = c.now()
	c.mu.Unlock()

	observe.Logger(ctx).Debug("intent: rule set loaded",
		"version", rs.Version,
		"rules", len(rs.Rules),
	)
	return rs, nil
}

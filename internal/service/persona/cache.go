package persona

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/util"
)

// ArchetypeTier is an optional shared second level behind the in-process cache.
type ArchetypeTier interface {
	Load(ctx context.Context, ref string) (*domain.PersonaArchetype, bool, error)
	Store(ctx context.Context, archetype *domain.PersonaArchetype, ttl time.Duration) error
	Delete(ctx context.Context, refs ...string) error
	Clear(ctx context.Context) error
}

type LoadFunc func(ctx context.Context, ref string) (*domain.PersonaArchetype, error)

type cacheEntry struct {
	archetype *domain.PersonaArchetype
	expiresAt time.Time
}

// ArchetypeCache is a read-mostly TTL cache keyed by archetype id and slug.
// Cached archetypes are shared and must be treated as immutable.
type ArchetypeCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time

	tier    ArchetypeTier
	tierTTL time.Duration

	group  singleflight.Group
	logger *zap.Logger
}

type CacheOption func(*ArchetypeCache)

// WithTier adds a shared second level (for example Redis).
func WithTier(tier ArchetypeTier, ttl time.Duration) CacheOption {
	return func(c *ArchetypeCache) {
		c.tier = tier
		c.tierTTL = ttl
	}
}

func WithClock(now func() time.Time) CacheOption {
	return func(c *ArchetypeCache) {
		c.now = now
	}
}

func NewArchetypeCache(ttl time.Duration, logger *zap.Logger, opts ...CacheOption) *ArchetypeCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ArchetypeCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(ref string) string {
	return util.Normalize(ref)
}

// Get returns a live in-process entry.
func (c *ArchetypeCache) Get(ref string) (*domain.PersonaArchetype, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(ref)]
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.archetype, true
}

// Set stores an archetype under both its id and slug.
func (c *ArchetypeCache) Set(archetype *domain.PersonaArchetype) {
	if archetype == nil {
		return
	}
	entry := cacheEntry{archetype: archetype, expiresAt: c.now().Add(c.ttl)}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ref := range refsOf(archetype) {
		c.entries[cacheKey(ref)] = entry
	}
}

// GetOrLoad resolves ref from memory, then the shared tier, then load.
// Concurrent misses for the same ref share a single load.
func (c *ArchetypeCache) GetOrLoad(ctx context.Context, ref string, load LoadFunc) (*domain.PersonaArchetype, error) {
	if a, ok := c.Get(ref); ok {
		return a, nil
	}

	v, err, shared := c.group.Do(cacheKey(ref), func() (any, error) {
		if a, ok := c.Get(ref); ok {
			return a, nil
		}

		if c.tier != nil {
			a, found, err := c.tier.Load(ctx, ref)
			if err != nil {
				c.logger.Warn("Archetype tier load failed", zap.String("ref", ref), zap.Error(err))
			} else if found {
				c.Set(a)
				return a, nil
			}
		}

		a, err := load(ctx, ref)
		if err != nil {
			return nil, err
		}
		c.Set(a)
		if c.tier != nil {
			if err := c.tier.Store(ctx, a, c.tierTTL); err != nil {
				c.logger.Warn("Archetype tier store failed", zap.String("ref", ref), zap.Error(err))
			}
		}
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("Archetype load shared", zap.String("ref", ref))
	}
	return v.(*domain.PersonaArchetype), nil
}

// Invalidate drops ref (and the sibling id/slug key of the same archetype).
func (c *ArchetypeCache) Invalidate(ctx context.Context, ref string) error {
	refs := []string{ref}

	c.mu.Lock()
	if entry, ok := c.entries[cacheKey(ref)]; ok {
		refs = refsOf(entry.archetype)
	}
	for _, r := range refs {
		delete(c.entries, cacheKey(r))
	}
	c.mu.Unlock()

	if c.tier != nil {
		return c.tier.Delete(ctx, refs...)
	}
	return nil
}

func (c *ArchetypeCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()

	if c.tier != nil {
		return c.tier.Clear(ctx)
	}
	return nil
}

// Len counts live keys; expired entries are not counted.
func (c *ArchetypeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

func refsOf(a *domain.PersonaArchetype) []string {
	refs := make([]string, 0, 2)
	if a.ID != "" {
		refs = append(refs, a.ID)
	}
	if a.Slug != "" && a.Slug != a.ID {
		refs = append(refs, a.Slug)
	}
	return refs
}

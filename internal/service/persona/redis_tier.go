package persona

import (
	"context"
	"time"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/cache"
)

const (
	archetypeKeyPrefix = "archetype:"
	archetypeIndexKey  = "archetype:index"
)

// RedisArchetypeTier shares archetypes between runner processes.
type RedisArchetypeTier struct {
	cache *cache.CacheService
}

func NewRedisArchetypeTier(c *cache.CacheService) *RedisArchetypeTier {
	return &RedisArchetypeTier{cache: c}
}

func (t *RedisArchetypeTier) Load(ctx context.Context, ref string) (*domain.PersonaArchetype, bool, error) {
	var a domain.PersonaArchetype
	found, err := t.cache.Get(ctx, archetypeKeyPrefix+cacheKey(ref), &a)
	if err != nil || !found {
		return nil, false, err
	}
	return &a, true, nil
}

func (t *RedisArchetypeTier) Store(ctx context.Context, a *domain.PersonaArchetype, ttl time.Duration) error {
	keys := make([]string, 0, 2)
	for _, ref := range refsOf(a) {
		key := archetypeKeyPrefix + cacheKey(ref)
		if err := t.cache.Set(ctx, key, a, ttl); err != nil {
			return err
		}
		keys = append(keys, key)
	}
	if _, err := t.cache.SAdd(ctx, archetypeIndexKey, keys...); err != nil {
		return err
	}
	// The index lives as long as the newest entry it names.
	if ttl > 0 {
		return t.cache.Expire(ctx, archetypeIndexKey, ttl)
	}
	return nil
}

func (t *RedisArchetypeTier) Delete(ctx context.Context, refs ...string) error {
	if len(refs) == 1 {
		return t.cache.Del(ctx, archetypeKeyPrefix+cacheKey(refs[0]))
	}
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		keys = append(keys, archetypeKeyPrefix+cacheKey(ref))
	}
	_, err := t.cache.DelMany(ctx, keys)
	return err
}

func (t *RedisArchetypeTier) Clear(ctx context.Context) error {
	keys, err := t.cache.SMembers(ctx, archetypeIndexKey)
	if err != nil {
		return err
	}
	_, err = t.cache.DelMany(ctx, append(keys, archetypeIndexKey))
	return err
}

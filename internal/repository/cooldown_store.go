package repository

import (
	"context"
	"errors"
	"time"

	domrepo "speedliner/internal/domain/repository"
	"speedliner/pkg/cache"
)

// CacheCooldownStore keeps cooldown timestamps in a cache backend. Expiry is
// left to the backend.
type CacheCooldownStore struct {
	cache cache.Service
}

func NewCacheCooldownStore(c cache.Service) domrepo.CooldownStore {
	return &CacheCooldownStore{cache: c}
}

func (s *CacheCooldownStore) Load(ctx context.Context, key string) (int64, bool, error) {
	var epochMs int64
	if err := s.cache.Get(ctx, key, &epochMs); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return epochMs, true, nil
}

func (s *CacheCooldownStore) Save(ctx context.Context, key string, epochMs int64, ttl time.Duration) error {
	return s.cache.Set(ctx, key, epochMs, ttl)
}

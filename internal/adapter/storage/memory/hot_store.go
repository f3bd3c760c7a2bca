package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nft-metadata-resolver/internal/config"
	"nft-metadata-resolver/internal/domain"
	"nft-metadata-resolver/internal/domain/entity"
	domainRepo "nft-metadata-resolver/internal/domain/repository"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainRepo.HotCacheRepository = (*HotStore)(nil)

const healthCheckKey = "health:check"

// HotStore implements domainRepo.HotCacheRepository using the go-cache in-memory library.
// Records are deep-copied on the way in and out, so callers never share fields with the cache.
type HotStore struct {
	cache  *cache.Cache
	logger *zap.Logger
}

// NewHotStore creates a new in-memory hot tier.
func NewHotStore(cfg config.CacheConfig, logger *zap.Logger) *HotStore {
	cleanupInterval := cfg.GetCleanupInterval()

	c := cache.New(cache.NoExpiration, cleanupInterval)
	logger.Info("Initialized go-cache for hot tier", zap.Duration("cleanupInterval", cleanupInterval))

	return &HotStore{
		cache:  c,
		logger: logger.Named("HotStore"),
	}
}

// GetMetadata retrieves a token record, returning found status.
func (s *HotStore) GetMetadata(ctx context.Context, key string) (entity.Metadata, bool, error) {
	if err := ctx.Err(); err != nil {
		return entity.Metadata{}, false, err
	}
	x, found := s.cache.Get(key)
	if !found {
		s.logger.Debug("Hot tier miss", zap.String("key", key))
		return entity.Metadata{}, false, nil
	}
	m, ok := x.(entity.Metadata)
	if !ok {
		s.logger.Warn("Hot tier data type mismatch for key", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", x)))
		return entity.Metadata{}, false, fmt.Errorf("%w: unexpected type %T under %s", domain.ErrCacheFailure, x, key)
	}
	s.logger.Debug("Hot tier hit", zap.String("key", key))
	return m.Clone(), true, nil
}

// SetMetadata caches a token record for ttl.
func (s *HotStore) SetMetadata(ctx context.Context, key string, m entity.Metadata, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cache.Set(key, m.Clone(), ttl)
	s.logger.Debug("Hot tier set", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

// GetCollection retrieves a collection record, returning found status.
func (s *HotStore) GetCollection(ctx context.Context, key string) (entity.Collection, bool, error) {
	if err := ctx.Err(); err != nil {
		return entity.Collection{}, false, err
	}
	x, found := s.cache.Get(key)
	if !found {
		s.logger.Debug("Hot tier miss", zap.String("key", key))
		return entity.Collection{}, false, nil
	}
	c, ok := x.(entity.Collection)
	if !ok {
		s.logger.Warn("Hot tier data type mismatch for key", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", x)))
		return entity.Collection{}, false, fmt.Errorf("%w: unexpected type %T under %s", domain.ErrCacheFailure, x, key)
	}
	s.logger.Debug("Hot tier hit", zap.String("key", key))
	return c.Clone(), true, nil
}

// SetCollection caches a collection record for ttl.
func (s *HotStore) SetCollection(ctx context.Context, key string, c entity.Collection, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cache.Set(key, c.Clone(), ttl)
	s.logger.Debug("Hot tier set", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

// Delete removes one key and reports whether a live entry was held under it.
func (s *HotStore) Delete(_ context.Context, key string) (bool, error) {
	_, found := s.cache.Get(key)
	s.cache.Delete(key)
	return found, nil
}

// DeleteByPrefix scans live entries and removes those whose key starts with prefix.
func (s *HotStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("%w: empty prefix", domain.ErrCacheFailure)
	}
	removed := 0
	for key := range s.cache.Items() {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
			removed++
		}
	}
	s.logger.Debug("Hot tier prefix delete", zap.String("prefix", prefix), zap.Int("removed", removed))
	return removed, nil
}

// Clear removes every entry.
func (s *HotStore) Clear(_ context.Context) error {
	s.cache.Flush()
	s.logger.Info("Hot tier cleared")
	return nil
}

// Ping round-trips a marker value through the cache.
func (s *HotStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	marker := time.Now().UnixNano()
	s.cache.Set(healthCheckKey, marker, time.Minute)
	defer s.cache.Delete(healthCheckKey)

	x, found := s.cache.Get(healthCheckKey)
	if !found || x != marker {
		return fmt.Errorf("%w: health marker not readable", domain.ErrCacheFailure)
	}
	return nil
}

// Len reports the number of live entries.
func (s *HotStore) Len() int {
	return s.cache.ItemCount()
}

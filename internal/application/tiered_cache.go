package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nft-metadata-resolver/internal/domain"
	"nft-metadata-resolver/internal/domain/entity"
	domainRepo "nft-metadata-resolver/internal/domain/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HotTTL is how long a record stays in the hot tier after a write or a promotion.
const HotTTL = time.Hour

// TieredCache reads through the hot tier to the persistent tier and writes to both.
// Failures of either tier are logged and degrade to a miss; they never fail a resolution.
type TieredCache struct {
	hot    domainRepo.HotCacheRepository
	store  domainRepo.PersistentRepository
	logger *zap.Logger
}

// NewTieredCache combines the two tiers.
func NewTieredCache(hot domainRepo.HotCacheRepository, store domainRepo.PersistentRepository, logger *zap.Logger) *TieredCache {
	return &TieredCache{
		hot:    hot,
		store:  store,
		logger: logger.Named("TieredCache"),
	}
}

// ReadNFT returns the token record and the tier it came from.
// A persistent hit is written into the hot tier before returning.
func (c *TieredCache) ReadNFT(ctx context.Context, id entity.TokenIdentity) (entity.Metadata, entity.Tier, bool) {
	key := id.Key()

	m, found, err := c.hot.GetMetadata(ctx, key)
	if err != nil {
		c.logger.Warn("Hot tier read failed, falling through", zap.String("key", key), zap.Error(err))
	}
	if found {
		return m, entity.TierHot, true
	}

	m, found, err = c.store.GetMetadata(ctx, id)
	if err != nil {
		c.logger.Warn("Persistent tier read failed, treating as miss", zap.String("key", key), zap.Error(err))
		return entity.Metadata{}, entity.TierNone, false
	}
	if !found {
		return entity.Metadata{}, entity.TierNone, false
	}

	if err := c.hot.SetMetadata(ctx, key, m, HotTTL); err != nil {
		c.logger.Warn("Promotion into hot tier failed", zap.String("key", key), zap.Error(err))
	} else {
		c.logger.Debug("Promoted record into hot tier", zap.String("key", key))
	}
	return m, entity.TierPersistent, true
}

// WriteNFT stores the record in both tiers concurrently. Each tier is best-effort.
func (c *TieredCache) WriteNFT(ctx context.Context, m entity.Metadata) {
	key := m.Identity().Key()
	c.writeBoth(
		func() error { return c.hot.SetMetadata(ctx, key, m, HotTTL) },
		func() error { return c.store.UpsertMetadata(ctx, m) },
		key,
	)
}

// InvalidateNFT removes the record from both tiers and reports whether either tier held it.
// Both tiers are attempted even if one fails.
func (c *TieredCache) InvalidateNFT(ctx context.Context, id entity.TokenIdentity) (bool, error) {
	key := id.Key()
	inHot, hotErr := c.hot.Delete(ctx, key)
	inStore, storeErr := c.store.DeleteMetadata(ctx, id)
	removed := inHot || inStore
	if err := errors.Join(hotErr, storeErr); err != nil {
		return removed, fmt.Errorf("%w: invalidate %s: %w", domain.ErrCacheFailure, key, err)
	}
	c.logger.Debug("Invalidated token record", zap.String("key", key), zap.Bool("removed", removed))
	return removed, nil
}

// ReadCollection returns the collection record and the tier it came from, promoting persistent hits.
func (c *TieredCache) ReadCollection(ctx context.Context, id entity.CollectionIdentity) (entity.Collection, entity.Tier, bool) {
	key := id.Key()

	col, found, err := c.hot.GetCollection(ctx, key)
	if err != nil {
		c.logger.Warn("Hot tier read failed, falling through", zap.String("key", key), zap.Error(err))
	}
	if found {
		return col, entity.TierHot, true
	}

	col, found, err = c.store.GetCollection(ctx, id)
	if err != nil {
		c.logger.Warn("Persistent tier read failed, treating as miss", zap.String("key", key), zap.Error(err))
		return entity.Collection{}, entity.TierNone, false
	}
	if !found {
		return entity.Collection{}, entity.TierNone, false
	}

	if err := c.hot.SetCollection(ctx, key, col, HotTTL); err != nil {
		c.logger.Warn("Promotion into hot tier failed", zap.String("key", key), zap.Error(err))
	}
	return col, entity.TierPersistent, true
}

// WriteCollection stores the collection record in both tiers concurrently.
func (c *TieredCache) WriteCollection(ctx context.Context, col entity.Collection) {
	key := col.Identity().Key()
	c.writeBoth(
		func() error { return c.hot.SetCollection(ctx, key, col, HotTTL) },
		func() error { return c.store.UpsertCollection(ctx, col) },
		key,
	)
}

// InvalidateCollection removes the collection record and every token record under it from both tiers.
// It returns the number of token records the persistent tier dropped.
func (c *TieredCache) InvalidateCollection(ctx context.Context, id entity.CollectionIdentity) (int, error) {
	removedHot, prefixErr := c.hot.DeleteByPrefix(ctx, id.TokenKeyPrefix())
	_, keyErr := c.hot.Delete(ctx, id.Key())
	removed, storeErr := c.store.DeleteCollection(ctx, id)

	c.logger.Info("Invalidated collection",
		zap.String("key", id.Key()),
		zap.Int("hotTokens", removedHot),
		zap.Int("persistentTokens", removed),
	)
	if err := errors.Join(prefixErr, keyErr, storeErr); err != nil {
		return removed, fmt.Errorf("%w: invalidate %s: %w", domain.ErrCacheFailure, id.Key(), err)
	}
	return removed, nil
}

// ListCollectionTokens pages through the persistent tier.
func (c *TieredCache) ListCollectionTokens(ctx context.Context, id entity.CollectionIdentity, limit, offset int) (entity.MetadataPage, error) {
	page, err := c.store.ListCollectionTokens(ctx, id, limit, offset)
	if err != nil {
		return entity.MetadataPage{}, fmt.Errorf("%w: list tokens of %s: %w", domain.ErrCacheFailure, id.Key(), err)
	}
	return page, nil
}

// HotTierHealthy reports whether the hot tier passes its write/read/delete probe.
func (c *TieredCache) HotTierHealthy(ctx context.Context) bool {
	if err := c.hot.Ping(ctx); err != nil {
		c.logger.Warn("Hot tier health probe failed", zap.Error(err))
		return false
	}
	return true
}

// Statistics counts persistent records and probes the hot tier concurrently.
func (c *TieredCache) Statistics(ctx context.Context) (entity.CacheStatistics, error) {
	var stats entity.CacheStatistics

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := c.store.Stats(gctx)
		if err != nil {
			return fmt.Errorf("%w: persistent stats: %w", domain.ErrCacheFailure, err)
		}
		stats.StoreStats = s
		return nil
	})
	g.Go(func() error {
		stats.HotTierHealthy = c.HotTierHealthy(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return entity.CacheStatistics{}, err
	}
	return stats, nil
}

func (c *TieredCache) writeBoth(hotWrite, storeWrite func() error, key string) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := hotWrite(); err != nil {
			c.logger.Warn("Hot tier write failed", zap.String("key", key), zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := storeWrite(); err != nil {
			c.logger.Warn("Persistent tier write failed", zap.String("key", key), zap.Error(err))
		}
	}()
	wg.Wait()
	c.logger.Debug("Cache write finished", zap.String("key", key))
}

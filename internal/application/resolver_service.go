package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nft-metadata-resolver/internal/application/port"
	"nft-metadata-resolver/internal/config"
	"nft-metadata-resolver/internal/domain/entity"
	domainService "nft-metadata-resolver/internal/domain/service"
	"nft-metadata-resolver/internal/pkg/apperrors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Compile-time check
var _ port.ResolverService = (*ResolverService)(nil)

// healthCheckConcurrency bounds the number of node probes in flight.
const healthCheckConcurrency = 4

// ResolverService implements port.ResolverService: cache first, then chain and content on a miss.
type ResolverService struct {
	registry   domainService.ChainRegistry
	cache      *TieredCache
	normalizer domainService.MetadataNormalizer
	cfg        config.ResolverConfig
	logger     *zap.Logger

	inflight singleflight.Group
	pending  sync.WaitGroup
	now      func() time.Time
}

// NewResolverService wires the orchestrator.
func NewResolverService(
	registry domainService.ChainRegistry,
	cache *TieredCache,
	normalizer domainService.MetadataNormalizer,
	cfg config.ResolverConfig,
	logger *zap.Logger,
) *ResolverService {
	return &ResolverService{
		registry:   registry,
		cache:      cache,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger.Named("ResolverService"),
		now:        time.Now,
	}
}

// ResolveNFT returns the token record. The chain is checked before any cache access.
// On a miss, or when forceRefresh is set, the pointer is read from the chain, dereferenced,
// normalized and written to both cache tiers.
func (s *ResolverService) ResolveNFT(ctx context.Context, chain, contractAddress, tokenID string, forceRefresh bool) (entity.NFTResult, error) {
	start := time.Now()
	id := entity.NewTokenIdentity(chain, contractAddress, tokenID)
	if err := id.Validate(); err != nil {
		return entity.NFTResult{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	adapter, err := s.registry.Resolve(id.Chain)
	if err != nil {
		return entity.NFTResult{}, err
	}

	if !forceRefresh {
		if m, tier, found := s.cache.ReadNFT(ctx, id); found {
			s.logger.Debug("Resolved token from cache",
				zap.String("key", id.Key()),
				zap.String("tier", string(tier)),
				zap.Duration("duration", time.Since(start)),
			)
			return entity.NFTResult{Metadata: m, FromCache: true, Source: tier}, nil
		}
	}

	var m entity.Metadata
	if s.cfg.CoalesceInflight {
		m, err = s.fetchShared(ctx, adapter, id)
	} else {
		m, err = s.fetchNFT(ctx, adapter, id)
	}
	if err != nil {
		return entity.NFTResult{}, err
	}

	s.logger.Info("Resolved token from chain",
		zap.String("key", id.Key()),
		zap.Bool("forceRefresh", forceRefresh),
		zap.Bool("valid", s.normalizer.Validate(m)),
		zap.Duration("duration", time.Since(start)),
	)
	return entity.NFTResult{Metadata: m, FromCache: false, Source: entity.TierNone}, nil
}

// fetchShared joins or starts the one resolution in flight for id. The shared fetch runs detached
// from every caller and is bounded by the coalesce timeout; a caller whose ctx ends stops waiting alone.
func (s *ResolverService) fetchShared(ctx context.Context, adapter domainService.ChainAdapter, id entity.TokenIdentity) (entity.Metadata, error) {
	ch := s.inflight.DoChan(id.Key(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GetCoalesceTimeout())
		defer cancel()
		return s.fetchNFT(fetchCtx, adapter, id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return entity.Metadata{}, res.Err
		}
		if res.Shared {
			s.logger.Debug("Joined in-flight resolution", zap.String("key", id.Key()))
		}
		return res.Val.(entity.Metadata), nil
	case <-ctx.Done():
		s.logger.Debug("Caller left in-flight resolution", zap.String("key", id.Key()), zap.Error(ctx.Err()))
		return entity.Metadata{}, ctx.Err()
	}
}

func (s *ResolverService) fetchNFT(ctx context.Context, adapter domainService.ChainAdapter, id entity.TokenIdentity) (entity.Metadata, error) {
	tokenURI, err := adapter.GetTokenURI(ctx, id.ContractAddress, id.TokenID)
	if err != nil {
		return entity.Metadata{}, err
	}

	raw, err := s.normalizer.Load(ctx, tokenURI)
	if err != nil {
		return entity.Metadata{}, err
	}

	m, err := s.normalizer.Parse(raw)
	if err != nil {
		return entity.Metadata{}, err
	}
	m = m.WithIdentity(id)
	m.TokenURI = &tokenURI
	m.UpdatedAt = s.stamp()

	if !s.normalizer.Validate(m) {
		s.logger.Warn("Token record has neither name nor image, storing anyway", zap.String("key", id.Key()))
	}

	s.persist(ctx, func(writeCtx context.Context) {
		s.cache.WriteNFT(writeCtx, m)
	})
	return m, nil
}

// ResolveCollection returns the contract record, reading it from the chain on a miss.
func (s *ResolverService) ResolveCollection(ctx context.Context, chain, contractAddress string) (entity.CollectionResult, error) {
	start := time.Now()
	id := entity.NewCollectionIdentity(chain, contractAddress)
	if err := id.Validate(); err != nil {
		return entity.CollectionResult{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	adapter, err := s.registry.Resolve(id.Chain)
	if err != nil {
		return entity.CollectionResult{}, err
	}

	if col, tier, found := s.cache.ReadCollection(ctx, id); found {
		s.logger.Debug("Resolved collection from cache",
			zap.String("key", id.Key()),
			zap.String("tier", string(tier)),
			zap.Duration("duration", time.Since(start)),
		)
		return entity.CollectionResult{Collection: col, FromCache: true, Source: tier}, nil
	}

	md, err := adapter.GetContractMetadata(ctx, id.ContractAddress)
	if err != nil {
		return entity.CollectionResult{}, err
	}
	col := entity.NewCollection(id, md, s.stamp())

	s.persist(ctx, func(writeCtx context.Context) {
		s.cache.WriteCollection(writeCtx, col)
	})

	s.logger.Info("Resolved collection from chain",
		zap.String("key", id.Key()),
		zap.String("contractType", string(col.ContractType)),
		zap.Duration("duration", time.Since(start)),
	)
	return entity.CollectionResult{Collection: col, FromCache: false, Source: entity.TierNone}, nil
}

// ListCollectionTokens pages through the token records cached for a collection.
func (s *ResolverService) ListCollectionTokens(ctx context.Context, chain, contractAddress string, limit, offset int) (entity.MetadataPage, error) {
	id, err := s.collectionIdentity(chain, contractAddress)
	if err != nil {
		return entity.MetadataPage{}, err
	}
	return s.cache.ListCollectionTokens(ctx, id, limit, offset)
}

// InvalidateNFT drops one token record from both tiers and reports whether one was cached.
func (s *ResolverService) InvalidateNFT(ctx context.Context, chain, contractAddress, tokenID string) (bool, error) {
	id := entity.NewTokenIdentity(chain, contractAddress, tokenID)
	if err := id.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if _, err := s.registry.Resolve(id.Chain); err != nil {
		return false, err
	}
	return s.cache.InvalidateNFT(ctx, id)
}

// InvalidateCollection drops a collection and every token under it from both tiers.
func (s *ResolverService) InvalidateCollection(ctx context.Context, chain, contractAddress string) (int, error) {
	id, err := s.collectionIdentity(chain, contractAddress)
	if err != nil {
		return 0, err
	}
	return s.cache.InvalidateCollection(ctx, id)
}

// CacheStatistics reports record counts and hot tier health.
func (s *ResolverService) CacheStatistics(ctx context.Context) (entity.CacheStatistics, error) {
	return s.cache.Statistics(ctx)
}

// HealthCheck probes the hot tier and every registered node concurrently.
func (s *ResolverService) HealthCheck(ctx context.Context) entity.HealthReport {
	adapters := s.registry.All()
	report := entity.HealthReport{Chains: make(map[string]bool, len(adapters))}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(healthCheckConcurrency)
	g.Go(func() error {
		healthy := s.cache.HotTierHealthy(gctx)
		mu.Lock()
		report.HotTierHealthy = healthy
		mu.Unlock()
		return nil
	})
	for _, a := range adapters {
		g.Go(func() error {
			healthy := a.CheckConnection(gctx)
			mu.Lock()
			report.Chains[a.Chain()] = healthy
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Debug("Health check finished", zap.String("status", report.Status()))
	return report
}

// SupportedChains lists the chains with a registered adapter.
func (s *ResolverService) SupportedChains() []string {
	return s.registry.Supported()
}

// Shutdown waits for background cache writes to finish or for ctx to end.
func (s *ResolverService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Pending cache writes flushed")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Shutdown deadline reached with cache writes pending", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (s *ResolverService) collectionIdentity(chain, contractAddress string) (entity.CollectionIdentity, error) {
	id := entity.NewCollectionIdentity(chain, contractAddress)
	if err := id.Validate(); err != nil {
		return entity.CollectionIdentity{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if _, err := s.registry.Resolve(id.Chain); err != nil {
		return entity.CollectionIdentity{}, err
	}
	return id, nil
}

// persist runs a cache write in the background when async writes are enabled.
// Background writes outlive the request, so they run on a context that is never cancelled.
func (s *ResolverService) persist(ctx context.Context, write func(context.Context)) {
	if !s.cfg.AsyncCacheWrites {
		write(ctx)
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		write(context.WithoutCancel(ctx))
	}()
}

// stamp is the record timestamp, truncated to the persistent tier's millisecond precision.
func (s *ResolverService) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

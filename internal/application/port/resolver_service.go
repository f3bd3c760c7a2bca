package port

import (
	"context"

	"nft-metadata-resolver/internal/domain/entity"
)

// ResolverService resolves token and collection metadata through the tiered cache and the chain adapters.
type ResolverService interface {
	// ResolveNFT returns the token record, from cache unless forceRefresh is set.
	ResolveNFT(ctx context.Context, chain, contractAddress, tokenID string, forceRefresh bool) (entity.NFTResult, error)

	// ResolveCollection returns the contract record, from cache when present.
	ResolveCollection(ctx context.Context, chain, contractAddress string) (entity.CollectionResult, error)

	// ListCollectionTokens pages through the token records already cached for a collection.
	ListCollectionTokens(ctx context.Context, chain, contractAddress string, limit, offset int) (entity.MetadataPage, error)

	// InvalidateNFT drops one token from both cache tiers and reports whether any tier held it.
	InvalidateNFT(ctx context.Context, chain, contractAddress, tokenID string) (bool, error)

	// InvalidateCollection drops a contract and all of its tokens from both tiers, returning the persistent token count removed.
	InvalidateCollection(ctx context.Context, chain, contractAddress string) (int, error)

	// CacheStatistics reports record counts and hot tier health.
	CacheStatistics(ctx context.Context) (entity.CacheStatistics, error)

	// HealthCheck probes the hot tier and every chain node.
	HealthCheck(ctx context.Context) entity.HealthReport

	// SupportedChains lists the chains with a registered adapter.
	SupportedChains() []string

	// Shutdown waits for pending background cache writes or for ctx to end.
	Shutdown(ctx context.Context) error
}

package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"nft-metadata-resolver/internal/config"
	"nft-metadata-resolver/internal/domain"
	"nft-metadata-resolver/internal/domain/entity"
	"nft-metadata-resolver/internal/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testContract = "0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D"
	lowerAddress = "0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d"
)

var syncWrites = config.ResolverConfig{}

func TestResolveNFTFromChain(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)
	f.service.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 6789012, time.UTC) }

	res, err := f.service.ResolveNFT(context.Background(), "ethereum", testContract, "1", false)
	require.NoError(t, err)

	assert.False(t, res.FromCache)
	assert.Equal(t, entity.TierNone, res.Source)

	m := res.Metadata
	assert.Equal(t, "ethereum", m.Chain)
	assert.Equal(t, lowerAddress, m.ContractAddress)
	assert.Equal(t, "1", m.TokenID)
	require.NotNil(t, m.Name)
	assert.Equal(t, "Ape #1", *m.Name)
	require.NotNil(t, m.ImageURL)
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", *m.ImageURL)
	require.NotNil(t, m.TokenURI)
	assert.Equal(t, f.adapter.tokenURI, *m.TokenURI)
	require.Len(t, m.Attributes, 2)
	assert.True(t, m.Attributes[1].Value.IsNumber())
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 6000000, time.UTC), m.UpdatedAt)

	assert.Equal(t, 1, f.hot.Len())
	stored, found, err := f.store.GetMetadata(context.Background(), m.Identity())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, m.Name, stored.Name)
}

func TestResolveNFTIsIdempotentThroughHotTier(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)
	ctx := context.Background()

	first, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "1", false)
	require.NoError(t, err)
	second, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "1", false)
	require.NoError(t, err)

	assert.True(t, second.FromCache)
	assert.Equal(t, entity.TierHot, second.Source)
	assert.Equal(t, first.Metadata, second.Metadata)
	assert.EqualValues(t, 1, f.adapter.uriCalls.Load())
	assert.EqualValues(t, 1, f.content.fetches.Load())
}

func TestResolveNFTSharesEntryAcrossTokenIDForms(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)
	ctx := context.Background()

	first, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "1", false)
	require.NoError(t, err)
	second, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "0x01", false)
	require.NoError(t, err)

	assert.True(t, second.FromCache)
	assert.Equal(t, "1", second.Metadata.TokenID)
	assert.Equal(t, first.Metadata, second.Metadata)
	assert.EqualValues(t, 1, f.adapter.uriCalls.Load())
	assert.Equal(t, 1, f.hot.Len())
}

func TestResolveNFTPromotesPersistentHit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)
	ctx := context.Background()

	id := entity.NewTokenIdentity("ethereum", testContract, "7")
	name := "Stored"
	require.NoError(t, f.store.UpsertMetadata(ctx, entity.Metadata{Name: &name}.WithIdentity(id)))

	first, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "7", false)
	require.NoError(t, err)
	assert.True(t, first.FromCache)
	assert.Equal(t, entity.TierPersistent, first.Source)

	_, inHot, err := f.hot.GetMetadata(ctx, id.Key())
	require.NoError(t, err)
	assert.True(t, inHot, "persistent hit must be promoted before returning")

	second, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "7", false)
	require.NoError(t, err)
	assert.Equal(t, entity.TierHot, second.Source)
	assert.EqualValues(t, 0, f.adapter.uriCalls.Load())
}

func TestResolveNFTNormalizesCase(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)
	ctx := context.Background()

	_, err := f.service.ResolveNFT(ctx, "Ethereum", testContract, "1", false)
	require.NoError(t, err)

	res, err := f.service.ResolveNFT(ctx, "ethereum", lowerAddress, "1", false)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, lowerAddress, res.Metadata.ContractAddress)
	assert.EqualValues(t, 1, f.adapter.uriCalls.Load())
}

func TestResolveNFTUnsupportedChainTouchesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)

	_, err := f.service.ResolveNFT(context.Background(), "solana", testContract, "1", false)
	require.Error(t, err)

	var unsupported *domain.UnsupportedChainError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, []string{"ethereum"}, unsupported.Supported)
	assert.Equal(t, domain.ClassClientInput, domain.ClassOf(err))

	assert.Zero(t, f.hot.Len())
	assert.Zero(t, f.store.callCount())
	assert.EqualValues(t, 0, f.adapter.uriCalls.Load())
}

func TestResolveNFTRejectsEmptyIdentity(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)

	_, err := f.service.ResolveNFT(context.Background(), "ethereum", testContract, " ", false)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, f.store.callCount())
}

func TestResolveNFTForceRefreshBypassesCache(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)
	ctx := context.Background()

	_, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "1", false)
	require.NoError(t, err)

	f.content.body = `{"name":"Ape #1 v2"}`
	res, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "1", true)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "Ape #1 v2", *res.Metadata.Name)
	assert.Nil(t, res.Metadata.Attributes)

	cached, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "1", false)
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
	assert.Equal(t, "Ape #1 v2", *cached.Metadata.Name)
	assert.EqualValues(t, 2, f.adapter.uriCalls.Load())
}

func TestResolveNFTPersistentFailureDegradesToMiss(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)
	f.store.failing = true
	ctx := context.Background()

	res, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "1", false)
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	again, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "1", false)
	require.NoError(t, err)
	assert.Equal(t, entity.TierHot, again.Source)
}

func TestResolveNFTStoresInvalidRecords(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)
	f.content.body = `{"description":"no name, no image"}`

	res, err := f.service.ResolveNFT(context.Background(), "ethereum", testContract, "3", false)
	require.NoError(t, err)
	assert.False(t, res.Metadata.IsValid())
	assert.Equal(t, 1, f.hot.Len())
}

func TestResolveNFTPropagatesPipelineErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		class domain.ErrorClass
	}{
		{"not found", fmt.Errorf("%w: neither standard", domain.ErrNotFound), domain.ClassNotFound},
		{"node down", fmt.Errorf("%w: dial tcp", domain.ErrUpstreamUnavailable), domain.ClassTransient},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, syncWrites, &fakeAdapter{chain: "ethereum", uriErr: tc.err})

			_, err := f.service.ResolveNFT(context.Background(), "ethereum", testContract, "1", false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.err))
			assert.Equal(t, tc.class, domain.ClassOf(err))
			assert.Zero(t, f.hot.Len())
		})
	}
}

func TestResolveNFTMalformedDocument(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)
	f.content.body = `["not","an","object"]`

	_, err := f.service.ResolveNFT(context.Background(), "ethereum", testContract, "1", false)
	assert.ErrorIs(t, err, domain.ErrMalformedDocument)
	assert.Zero(t, f.hot.Len())
}

func TestResolveNFTInlineDocumentSkipsContent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites, &fakeAdapter{
		chain:    "ethereum",
		tokenURI: "data:application/json;base64,eyJuYW1lIjoiT24tY2hhaW4ifQ==",
	})

	res, err := f.service.ResolveNFT(context.Background(), "ethereum", testContract, "1", false)
	require.NoError(t, err)
	assert.Equal(t, "On-chain", *res.Metadata.Name)
	assert.EqualValues(t, 0, f.content.fetches.Load())
}

func TestResolveNFTAsyncWritesFlushOnShutdown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.ResolverConfig{AsyncCacheWrites: true})

	ctx, cancel := context.WithCancel(context.Background())
	res, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "1", false)
	require.NoError(t, err)
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	require.NoError(t, f.service.Shutdown(shutdownCtx))

	_, found, err := f.hot.GetMetadata(context.Background(), res.Metadata.Identity().Key())
	require.NoError(t, err)
	assert.True(t, found, "background write must survive request cancellation")
	assert.Equal(t, 2, f.store.callCount(), "one read and one upsert")
}

func TestResolveNFTCoalescesInflight(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{
		chain:    "ethereum",
		tokenURI: "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		release:  make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	f := newFixture(t, config.ResolverConfig{CoalesceInflight: true}, adapter)
	ctx := context.Background()

	const callers = 4
	var wg sync.WaitGroup
	results := make([]entity.NFTResult, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.service.ResolveNFT(ctx, "ethereum", testContract, "1", false)
		}()
	}

	<-adapter.entered
	time.Sleep(50 * time.Millisecond)
	close(adapter.release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "Ape #1", *results[i].Metadata.Name)
	}
	assert.EqualValues(t, 1, adapter.uriCalls.Load())
}

func TestResolveNFTCoalescedFetchSurvivesFirstCallerCancel(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{
		chain:    "ethereum",
		tokenURI: "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		release:  make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	f := newFixture(t, config.ResolverConfig{CoalesceInflight: true}, adapter)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.service.ResolveNFT(firstCtx, "ethereum", testContract, "1", false)
		firstErr <- err
	}()
	<-adapter.entered

	type outcome struct {
		res entity.NFTResult
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := f.service.ResolveNFT(context.Background(), "ethereum", testContract, "1", false)
		second <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(adapter.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "Ape #1", *got.res.Metadata.Name)
	assert.EqualValues(t, 1, adapter.uriCalls.Load())
}

func TestResolveNFTCoalescedFetchHasOwnDeadline(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{
		chain:    "ethereum",
		tokenURI: "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		release:  make(chan struct{}),
	}
	f := newFixture(t, config.ResolverConfig{CoalesceInflight: true, CoalesceTimeout: 20 * time.Millisecond}, adapter)

	_, err := f.service.ResolveNFT(context.Background(), "ethereum", testContract, "1", false)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolveCollection(t *testing.T) {
	t.Parallel()
	name, symbol, supply := "Apes", "APE", "10000"
	f := newFixture(t, syncWrites, &fakeAdapter{
		chain: "ethereum",
		contract: entity.ContractMetadata{
			Name:         &name,
			Symbol:       &symbol,
			TotalSupply:  &supply,
			ContractType: entity.ContractTypeERC721,
		},
	})
	ctx := context.Background()

	first, err := f.service.ResolveCollection(ctx, "ETHEREUM", testContract)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, lowerAddress, first.Collection.ContractAddress)
	assert.Equal(t, entity.ContractTypeERC721, first.Collection.ContractType)
	assert.Equal(t, "10000", *first.Collection.TotalSupply)

	second, err := f.service.ResolveCollection(ctx, "ethereum", lowerAddress)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, entity.TierHot, second.Source)
	assert.EqualValues(t, 1, f.adapter.contractCalls.Load())
}

func TestResolveCollectionUnknownContract(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites, &fakeAdapter{chain: "ethereum"})

	res, err := f.service.ResolveCollection(context.Background(), "ethereum", testContract)
	require.NoError(t, err)
	assert.Equal(t, entity.ContractTypeUnknown, res.Collection.ContractType)
	assert.Nil(t, res.Collection.Name)
}

func TestInvalidateAndList(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)
	ctx := context.Background()

	for _, tokenID := range []string{"1", "2", "3"} {
		_, err := f.service.ResolveNFT(ctx, "ethereum", testContract, tokenID, false)
		require.NoError(t, err)
	}
	_, err := f.service.ResolveCollection(ctx, "ethereum", testContract)
	require.NoError(t, err)
	require.Equal(t, 4, f.hot.Len())

	page, err := f.service.ListCollectionTokens(ctx, "ethereum", testContract, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)

	found, err := f.service.InvalidateNFT(ctx, "ethereum", testContract, "1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, f.hot.Len())

	found, err = f.service.InvalidateNFT(ctx, "ethereum", testContract, "1")
	require.NoError(t, err)
	assert.False(t, found)

	removed, err := f.service.InvalidateCollection(ctx, "ethereum", testContract)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Zero(t, f.hot.Len())

	res, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "2", false)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
}

func TestInvalidateReportsCacheFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)
	f.store.failing = true

	_, err := f.service.InvalidateNFT(context.Background(), "ethereum", testContract, "1")
	assert.ErrorIs(t, err, domain.ErrCacheFailure)
	assert.ErrorIs(t, err, errStoreDown)

	_, err = f.service.InvalidateCollection(context.Background(), "polygon", testContract)
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestCacheStatistics(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites)
	ctx := context.Background()

	_, err := f.service.ResolveNFT(ctx, "ethereum", testContract, "1", false)
	require.NoError(t, err)

	stats, err := f.service.CacheStatistics(ctx)
	require.NoError(t, err)
	assert.True(t, stats.HotTierHealthy)
	assert.EqualValues(t, 1, stats.TotalRecords)
	assert.Equal(t, map[string]int64{"ethereum": 1}, stats.PerChainCounts)

	f.store.failing = true
	_, err = f.service.CacheStatistics(ctx)
	assert.ErrorIs(t, err, domain.ErrCacheFailure)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	f := newFixture(t, syncWrites,
		&fakeAdapter{chain: "ethereum"},
		&fakeAdapter{chain: "polygon", down: true},
		&fakeAdapter{chain: "starknet"},
	)

	report := f.service.HealthCheck(context.Background())
	assert.True(t, report.HotTierHealthy)
	assert.Equal(t, map[string]bool{"ethereum": true, "polygon": false, "starknet": true}, report.Chains)
	assert.Equal(t, entity.HealthDegraded, report.Status())
	assert.Equal(t, []string{"ethereum", "polygon", "starknet"}, f.service.SupportedChains())
}

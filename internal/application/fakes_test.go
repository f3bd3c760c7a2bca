package application

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"nft-metadata-resolver/internal/adapter/chain"
	"nft-metadata-resolver/internal/adapter/metadata"
	"nft-metadata-resolver/internal/adapter/storage/memory"
	"nft-metadata-resolver/internal/config"
	"nft-metadata-resolver/internal/domain/entity"
	domainRepo "nft-metadata-resolver/internal/domain/repository"
	domainService "nft-metadata-resolver/internal/domain/service"

	"go.uber.org/zap"
)

var errStoreDown = errors.New("database is locked")

// fakeAdapter serves a fixed token pointer and contract metadata.
type fakeAdapter struct {
	chain    string
	tokenURI string
	uriErr   error
	contract entity.ContractMetadata
	down     bool

	// release, when set, blocks GetTokenURI until closed; entered is signalled first.
	release chan struct{}
	entered chan struct{}

	uriCalls      atomic.Int32
	contractCalls atomic.Int32
}

var _ domainService.ChainAdapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) Chain() string {
	return f.chain
}

func (f *fakeAdapter) GetTokenURI(ctx context.Context, _, _ string) (string, error) {
	f.uriCalls.Add(1)
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.uriErr != nil {
		return "", f.uriErr
	}
	return f.tokenURI, nil
}

func (f *fakeAdapter) GetContractMetadata(context.Context, string) (entity.ContractMetadata, error) {
	f.contractCalls.Add(1)
	return f.contract, nil
}

func (f *fakeAdapter) IsERC721(context.Context, string) (bool, error) {
	return f.contract.ContractType == entity.ContractTypeERC721, nil
}

func (f *fakeAdapter) IsERC1155(context.Context, string) (bool, error) {
	return f.contract.ContractType == entity.ContractTypeERC1155, nil
}

func (f *fakeAdapter) CheckConnection(context.Context) bool {
	return !f.down
}

func (f *fakeAdapter) Close() {}

// fakeContent serves one document for every pointer.
type fakeContent struct {
	body    string
	fetches atomic.Int32
}

func (f *fakeContent) Normalize(uri string) string {
	return strings.Replace(uri, "ipfs://", "https://gateway.pinata.cloud/ipfs/", 1)
}

func (f *fakeContent) Fetch(context.Context, string) ([]byte, error) {
	f.fetches.Add(1)
	return []byte(f.body), nil
}

// fakeStore is an in-memory persistent tier with failure injection.
type fakeStore struct {
	mu          sync.Mutex
	tokens      map[string]entity.Metadata
	collections map[string]entity.Collection
	failing     bool
	calls       int
}

var _ domainRepo.PersistentRepository = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{tokens: map[string]entity.Metadata{}, collections: map[string]entity.Collection{}}
}

func (s *fakeStore) enter() error {
	s.calls++
	if s.failing {
		return errStoreDown
	}
	return nil
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeStore) GetMetadata(_ context.Context, id entity.TokenIdentity) (entity.Metadata, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return entity.Metadata{}, false, err
	}
	m, ok := s.tokens[id.Key()]
	return m, ok, nil
}

func (s *fakeStore) UpsertMetadata(_ context.Context, m entity.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	s.tokens[m.Identity().Key()] = m
	return nil
}

func (s *fakeStore) DeleteMetadata(_ context.Context, id entity.TokenIdentity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return false, err
	}
	_, found := s.tokens[id.Key()]
	delete(s.tokens, id.Key())
	return found, nil
}

func (s *fakeStore) GetCollection(_ context.Context, id entity.CollectionIdentity) (entity.Collection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return entity.Collection{}, false, err
	}
	c, ok := s.collections[id.Key()]
	return c, ok, nil
}

func (s *fakeStore) UpsertCollection(_ context.Context, c entity.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	s.collections[c.Identity().Key()] = c
	return nil
}

func (s *fakeStore) ListCollectionTokens(_ context.Context, id entity.CollectionIdentity, limit, offset int) (entity.MetadataPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return entity.MetadataPage{}, err
	}
	var items []entity.Metadata
	for key, m := range s.tokens {
		if strings.HasPrefix(key, id.TokenKeyPrefix()) {
			items = append(items, m)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].TokenID < items[j].TokenID })
	page := entity.MetadataPage{Total: len(items), Limit: limit, Offset: offset}
	if offset < len(items) {
		page.Items = items[offset:min(offset+limit, len(items))]
	}
	return page, nil
}

func (s *fakeStore) DeleteCollection(_ context.Context, id entity.CollectionIdentity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return 0, err
	}
	removed := 0
	for key := range s.tokens {
		if strings.HasPrefix(key, id.TokenKeyPrefix()) {
			delete(s.tokens, key)
			removed++
		}
	}
	delete(s.collections, id.Key())
	return removed, nil
}

func (s *fakeStore) Stats(context.Context) (entity.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return entity.StoreStats{}, err
	}
	stats := entity.StoreStats{
		TotalRecords:     int64(len(s.tokens)),
		TotalCollections: int64(len(s.collections)),
		PerChainCounts:   map[string]int64{},
	}
	for _, m := range s.tokens {
		stats.PerChainCounts[m.Chain]++
	}
	return stats, nil
}

const testDocument = `{"name":"Ape #1","image":"ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG","attributes":[{"trait_type":"Fur","value":"Gold"},{"trait_type":"Level","value":42}]}`

type fixture struct {
	adapter *fakeAdapter
	content *fakeContent
	hot     *memory.HotStore
	store   *fakeStore
	service *ResolverService
}

func newFixture(t *testing.T, cfg config.ResolverConfig, adapters ...*fakeAdapter) *fixture {
	t.Helper()
	logger := zap.NewNop()

	if len(adapters) == 0 {
		adapters = []*fakeAdapter{{
			chain:    "ethereum",
			tokenURI: "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG/1.json",
			contract: entity.ContractMetadata{ContractType: entity.ContractTypeERC721},
		}}
	}
	registered := make([]domainService.ChainAdapter, 0, len(adapters))
	for _, a := range adapters {
		registered = append(registered, a)
	}

	f := &fixture{
		adapter: adapters[0],
		content: &fakeContent{body: testDocument},
		hot:     memory.NewHotStore(config.CacheConfig{}, logger),
		store:   newFakeStore(),
	}
	cache := NewTieredCache(f.hot, f.store, logger)
	f.service = NewResolverService(chain.NewRegistry(registered...), cache, metadata.NewNormalizer(f.content, logger), cfg, logger)
	t.Cleanup(func() {
		_ = f.service.Shutdown(context.Background())
	})
	return f
}

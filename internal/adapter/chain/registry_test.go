package chain

import (
	"context"
	"errors"
	"testing"

	"nft-metadata-resolver/internal/domain"
	"nft-metadata-resolver/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	chain  string
	closed bool
}

func (s *stubAdapter) Chain() string {
	return s.chain
}

func (s *stubAdapter) GetTokenURI(context.Context, string, string) (string, error) {
	return "", nil
}

func (s *stubAdapter) GetContractMetadata(context.Context, string) (entity.ContractMetadata, error) {
	return entity.ContractMetadata{}, nil
}

func (s *stubAdapter) IsERC721(context.Context, string) (bool, error) {
	return false, nil
}

func (s *stubAdapter) IsERC1155(context.Context, string) (bool, error) {
	return false, nil
}

func (s *stubAdapter) CheckConnection(context.Context) bool {
	return true
}

func (s *stubAdapter) Close() {
	s.closed = true
}

func TestRegistryResolveIgnoresCase(t *testing.T) {
	t.Parallel()
	eth := &stubAdapter{chain: "ethereum"}
	r := NewRegistry(eth, &stubAdapter{chain: "polygon"})

	for _, id := range []string{"ethereum", "Ethereum", "ETHEREUM", " ethereum "} {
		a, err := r.Resolve(id)
		require.NoError(t, err, id)
		assert.Same(t, eth, a)
	}
	assert.True(t, r.IsSupported("POLYGON"))
	assert.False(t, r.IsSupported("solana"))
}

func TestRegistryUnsupportedChain(t *testing.T) {
	t.Parallel()
	r := NewRegistry(&stubAdapter{chain: "ethereum"}, &stubAdapter{chain: "polygon"}, &stubAdapter{chain: "starknet"})

	_, err := r.Resolve("solana")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedChain))

	var unsupported *domain.UnsupportedChainError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "solana", unsupported.Chain)
	assert.Equal(t, []string{"ethereum", "polygon", "starknet"}, unsupported.Supported)
	assert.Equal(t, "Unsupported chain: solana. Supported chains: ethereum, polygon, starknet", err.Error())
	assert.Equal(t, domain.ClassClientInput, domain.ClassOf(err))
}

func TestRegistryOrderAndClose(t *testing.T) {
	t.Parallel()
	first := &stubAdapter{chain: "polygon"}
	replaced := &stubAdapter{chain: "ethereum"}
	second := &stubAdapter{chain: "Ethereum"}
	r := NewRegistry(first, replaced, nil, second)

	assert.Equal(t, []string{"polygon", "ethereum"}, r.Supported())
	require.Len(t, r.All(), 2)

	supported := r.Supported()
	supported[0] = "mutated"
	assert.Equal(t, "polygon", r.Supported()[0])

	r.Close()
	assert.True(t, first.closed)
	assert.True(t, second.closed)
	assert.False(t, replaced.closed)
}

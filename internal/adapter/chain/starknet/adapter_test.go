package starknet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"nft-metadata-resolver/internal/adapter/rpc"
	"nft-metadata-resolver/internal/domain"
	"nft-metadata-resolver/internal/domain/entity"
	"nft-metadata-resolver/internal/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testContract = "0x07606CEfA3D2bE1D69e2Bd2C8A4A3B4B5f5b5e5a5d5c5b5a595857565554535"

// fakeNode answers starknet_call by entry point name.
type fakeNode struct {
	answers map[string][]string
	down    bool

	mu       sync.Mutex
	calldata map[string][]string
}

func (f *fakeNode) CallContext(_ context.Context, result any, method string, params ...any) error {
	if f.down {
		return errors.New("connection refused")
	}
	switch method {
	case "starknet_blockNumber":
		*result.(*uint64) = 700000
		return nil
	case "starknet_call":
		req := params[0].(map[string]any)
		selector := req["entry_point_selector"].(string)
		for name, out := range f.answers {
			if Selector(name) == selector {
				f.mu.Lock()
				if f.calldata == nil {
					f.calldata = map[string][]string{}
				}
				f.calldata[name] = req["calldata"].([]string)
				f.mu.Unlock()
				*result.(*[]string) = out
				return nil
			}
		}
		return &rpc.JSONRPCError{Code: 40, Message: "Contract error"}
	}
	return &rpc.JSONRPCError{Code: -32601, Message: "method not found"}
}

func (f *fakeNode) Close() {}

func newTestAdapter(node *fakeNode) *Adapter {
	return NewAdapter(node, 0, zap.NewNop())
}

func TestGetTokenURIFallsBackToSnakeCase(t *testing.T) {
	t.Parallel()
	node := &fakeNode{answers: map[string][]string{
		"name":      {shortString("Punks")},
		"token_uri": {shortString("ipfs://Qm"), shortString("Xyz")},
	}}

	uri, err := newTestAdapter(node).GetTokenURI(context.Background(), testContract, "340282366920938463463374607431768211457")
	require.NoError(t, err)
	assert.Equal(t, "ipfs://QmXyz", uri)
	assert.Equal(t, []string{"0x1", "0x1"}, node.calldata["token_uri"])
}

func TestGetTokenURIPrefersCamelCase(t *testing.T) {
	t.Parallel()
	node := &fakeNode{answers: map[string][]string{
		"name":      {shortString("Punks")},
		"tokenURI":  {shortString("https://a.io/1")},
		"token_uri": {shortString("https://b.io/1")},
	}}

	uri, err := newTestAdapter(node).GetTokenURI(context.Background(), testContract, "1")
	require.NoError(t, err)
	assert.Equal(t, "https://a.io/1", uri)
}

func TestGetTokenURINotERC721(t *testing.T) {
	t.Parallel()

	_, err := newTestAdapter(&fakeNode{}).GetTokenURI(context.Background(), testContract, "1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetTokenURINoEntrypoint(t *testing.T) {
	t.Parallel()
	node := &fakeNode{answers: map[string][]string{"name": {shortString("Punks")}}}

	_, err := newTestAdapter(node).GetTokenURI(context.Background(), testContract, "1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetTokenURINodeDown(t *testing.T) {
	t.Parallel()

	_, err := newTestAdapter(&fakeNode{down: true}).GetTokenURI(context.Background(), testContract, "1")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestGetTokenURIBadAddress(t *testing.T) {
	t.Parallel()

	_, err := newTestAdapter(&fakeNode{}).GetTokenURI(context.Background(), "punks", "1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGetContractMetadata(t *testing.T) {
	t.Parallel()
	node := &fakeNode{answers: map[string][]string{
		"name":         {shortString("Punks")},
		"symbol":       {shortString("PNK")},
		"total_supply": {"0x2710", "0x0"},
	}}

	md, err := newTestAdapter(node).GetContractMetadata(context.Background(), testContract)
	require.NoError(t, err)
	assert.Equal(t, entity.ContractTypeERC721, md.ContractType)
	require.NotNil(t, md.Name)
	assert.Equal(t, "Punks", *md.Name)
	require.NotNil(t, md.Symbol)
	assert.Equal(t, "PNK", *md.Symbol)
	require.NotNil(t, md.TotalSupply)
	assert.Equal(t, "10000", *md.TotalSupply)
}

func TestGetContractMetadataUnknown(t *testing.T) {
	t.Parallel()

	md, err := newTestAdapter(&fakeNode{}).GetContractMetadata(context.Background(), testContract)
	require.NoError(t, err)
	assert.Equal(t, entity.ContractMetadata{ContractType: entity.ContractTypeUnknown}, md)
}

func TestProbesAndConnection(t *testing.T) {
	t.Parallel()
	a := newTestAdapter(&fakeNode{answers: map[string][]string{"name": {shortString("x")}}})
	ctx := context.Background()

	ok, err := a.IsERC721(ctx, testContract)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.IsERC1155(ctx, testContract)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, a.CheckConnection(ctx))
	assert.False(t, newTestAdapter(&fakeNode{down: true}).CheckConnection(ctx))
	assert.Equal(t, "starknet", a.Chain())
}

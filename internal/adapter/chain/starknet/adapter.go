package starknet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"nft-metadata-resolver/internal/adapter/rpc"
	"nft-metadata-resolver/internal/domain"
	"nft-metadata-resolver/internal/domain/entity"
	domainService "nft-metadata-resolver/internal/domain/service"
	"nft-metadata-resolver/internal/pkg/apperrors"

	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.ChainAdapter = (*Adapter)(nil)

// ChainID is the identifier the adapter registers under.
const ChainID = "starknet"

const defaultCallTimeout = 4 * time.Second

var errCallFailed = errors.New("contract call failed")

// tokenURIEntrypoints are tried in order; contracts use either naming convention.
var tokenURIEntrypoints = []string{"tokenURI", "token_uri"}

var totalSupplyEntrypoints = []string{"totalSupply", "total_supply"}

// NodeCaller is a JSON-RPC client, satisfied by *rpc.Client.
type NodeCaller interface {
	CallContext(ctx context.Context, result any, method string, params ...any) error
	Close()
}

// Adapter reads ERC-721 style contracts on Starknet.
type Adapter struct {
	node        NodeCaller
	callTimeout time.Duration
	logger      *zap.Logger
}

// Dial creates the node client and the adapter.
func Dial(rpcURL entity.RPCURL, callTimeout time.Duration, logger *zap.Logger) (*Adapter, error) {
	client, err := rpc.NewClient(rpcURL, rpc.Options{Timeout: callTimeout}, logger)
	if err != nil {
		return nil, err
	}
	return NewAdapter(client, callTimeout, logger), nil
}

// NewAdapter wraps an existing node client.
func NewAdapter(node NodeCaller, callTimeout time.Duration, logger *zap.Logger) *Adapter {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Adapter{
		node:        node,
		callTimeout: callTimeout,
		logger:      logger.Named("StarknetAdapter"),
	}
}

func (a *Adapter) Chain() string {
	return ChainID
}

// GetTokenURI probes the contract with name() and reads tokenURI, then token_uri.
func (a *Adapter) GetTokenURI(ctx context.Context, contractAddress, tokenID string) (string, error) {
	contract, err := parseAddress(contractAddress)
	if err != nil {
		return "", err
	}
	id, err := parseTokenID(tokenID)
	if err != nil {
		return "", err
	}

	isERC721, err := a.IsERC721(ctx, contract)
	if err != nil {
		return "", err
	}
	if !isERC721 {
		return "", fmt.Errorf("%w: contract %s on starknet does not answer name()", domain.ErrNotFound, contractAddress)
	}

	low, high := SplitUint256(id)
	var lastErr error
	for _, entrypoint := range tokenURIEntrypoints {
		felts, err := a.call(ctx, contract, entrypoint, low, high)
		if err != nil {
			if !errors.Is(err, errCallFailed) {
				return "", err
			}
			a.logger.Debug("Token URI entrypoint failed", zap.String("entrypoint", entrypoint), zap.Error(err))
			lastErr = err
			continue
		}
		uri, err := DecodeFeltStrings(felts)
		if err != nil || strings.TrimSpace(uri) == "" {
			lastErr = fmt.Errorf("%w: %s returned no text: %v", errCallFailed, entrypoint, err)
			continue
		}
		return uri, nil
	}

	return "", fmt.Errorf("%w: token uri for %s #%s: %v", domain.ErrNotFound, contractAddress, tokenID, lastErr)
}

// GetContractMetadata reads name, symbol and total supply. Starknet has no multi-token probe.
func (a *Adapter) GetContractMetadata(ctx context.Context, contractAddress string) (entity.ContractMetadata, error) {
	md := entity.ContractMetadata{ContractType: entity.ContractTypeUnknown}
	contract, err := parseAddress(contractAddress)
	if err != nil {
		a.logger.Debug("Invalid contract address, reporting unknown type", zap.String("contract", contractAddress))
		return md, nil
	}

	nameFelts, err := a.call(ctx, contract, "name")
	if errors.Is(err, errCallFailed) {
		return md, nil
	}
	if err != nil {
		return md, err
	}
	md.ContractType = entity.ContractTypeERC721
	md.Name = textOrNil(nameFelts)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		felts, err := a.call(ctx, contract, "symbol")
		if err != nil {
			a.logger.Debug("symbol unavailable", zap.String("contract", contract), zap.Error(err))
			return
		}
		md.Symbol = textOrNil(felts)
	}()
	go func() {
		defer wg.Done()
		md.TotalSupply = a.totalSupply(ctx, contract)
	}()
	wg.Wait()

	return md, nil
}

// IsERC721 succeeds when the contract answers name().
func (a *Adapter) IsERC721(ctx context.Context, contractAddress string) (bool, error) {
	contract, err := parseAddress(contractAddress)
	if err != nil {
		return false, err
	}
	_, err = a.call(ctx, contract, "name")
	if errors.Is(err, errCallFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsERC1155 is always false; the multi-token standard is not probed on Starknet.
func (a *Adapter) IsERC1155(_ context.Context, _ string) (bool, error) {
	return false, nil
}

// CheckConnection asks the node for the latest block number.
func (a *Adapter) CheckConnection(ctx context.Context) bool {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	var height uint64
	if err := a.node.CallContext(callCtx, &height, "starknet_blockNumber"); err != nil {
		a.logger.Warn("Node connection check failed", zap.Error(err))
		return false
	}
	a.logger.Debug("Node connection check passed", zap.Uint64("blockNumber", height))
	return true
}

func (a *Adapter) Close() {
	a.node.Close()
}

func (a *Adapter) totalSupply(ctx context.Context, contract string) *string {
	for _, entrypoint := range totalSupplyEntrypoints {
		felts, err := a.call(ctx, contract, entrypoint)
		if err != nil || len(felts) == 0 {
			continue
		}
		var supply *big.Int
		if len(felts) >= 2 {
			supply, err = JoinUint256(felts[0], felts[1])
		} else {
			supply, err = ParseFelt(felts[0])
		}
		if err != nil {
			continue
		}
		s := supply.String()
		return &s
	}
	return nil
}

// call runs starknet_call against the latest block.
func (a *Adapter) call(ctx context.Context, contract, entrypoint string, calldata ...string) ([]string, error) {
	if calldata == nil {
		calldata = []string{}
	}
	request := map[string]any{
		"contract_address":     contract,
		"entry_point_selector": Selector(entrypoint),
		"calldata":             calldata,
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	var result []string
	if err := a.node.CallContext(callCtx, &result, "starknet_call", request, "latest"); err != nil {
		if rpc.IsCallError(err) {
			return nil, fmt.Errorf("%w: %s on %s: %v", errCallFailed, entrypoint, contract, err)
		}
		return nil, fmt.Errorf("%w: starknet node call %s on %s: %v", domain.ErrUpstreamUnavailable, entrypoint, contract, err)
	}
	return result, nil
}

func textOrNil(felts []string) *string {
	s, err := DecodeFeltStrings(felts)
	if err != nil || strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func parseAddress(contractAddress string) (string, error) {
	v, err := ParseFelt(contractAddress)
	if err != nil || !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contractAddress)), "0x") {
		return "", fmt.Errorf("%w: invalid starknet address %q", apperrors.ErrInvalidInput, contractAddress)
	}
	return "0x" + v.Text(16), nil
}

func parseTokenID(tokenID string) (*big.Int, error) {
	s := strings.TrimSpace(tokenID)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	id, ok := new(big.Int).SetString(s, base)
	if !ok || id.Sign() < 0 || id.BitLen() > 256 {
		return nil, fmt.Errorf("%w: invalid token id %q", apperrors.ErrInvalidInput, tokenID)
	}
	return id, nil
}

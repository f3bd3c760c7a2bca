package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"nft-metadata-resolver/internal/domain"
	"nft-metadata-resolver/internal/domain/entity"
	domainService "nft-metadata-resolver/internal/domain/service"
	"nft-metadata-resolver/internal/pkg/apperrors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Compile-time check
var _ domainService.ChainAdapter = (*Adapter)(nil)

const defaultCallTimeout = 4 * time.Second

// JSON-RPC codes that mean the node refused service rather than the contract failing.
var throttleCodes = map[int]bool{-32005: true, 429: true}

// errCallFailed marks a call the node executed but the contract rejected or answered unreadably.
var errCallFailed = errors.New("contract call failed")

// ContractCaller is the subset of ethclient.Client the adapter needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Adapter reads ERC-721 and ERC-1155 contracts on an EVM chain.
type Adapter struct {
	chain       string
	caller      ContractCaller
	callTimeout time.Duration
	logger      *zap.Logger
}

// Dial connects to the node and returns an adapter registered under chain.
func Dial(ctx context.Context, chain string, rpcURL entity.RPCURL, callTimeout time.Duration, logger *zap.Logger) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL.String())
	if err != nil {
		return nil, fmt.Errorf("%w: couldn't connect to %s node %s: %v",
			domain.ErrUpstreamUnavailable, chain, rpcURL.Redacted(), err,
		)
	}
	return NewAdapter(chain, client, callTimeout, logger), nil
}

// NewAdapter wraps an existing caller.
func NewAdapter(chain string, caller ContractCaller, callTimeout time.Duration, logger *zap.Logger) *Adapter {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	chain = strings.ToLower(chain)
	return &Adapter{
		chain:       chain,
		caller:      caller,
		callTimeout: callTimeout,
		logger:      logger.Named("EVMAdapter").With(zap.String("chain", chain)),
	}
}

func (a *Adapter) Chain() string {
	return a.chain
}

// GetTokenURI probes ERC-721 then ERC-1155 and reads tokenURI or uri accordingly.
func (a *Adapter) GetTokenURI(ctx context.Context, contractAddress, tokenID string) (string, error) {
	addr, err := parseAddress(contractAddress)
	if err != nil {
		return "", err
	}
	id, err := parseTokenID(tokenID)
	if err != nil {
		return "", err
	}

	isERC721, err := a.IsERC721(ctx, contractAddress)
	if err != nil {
		return "", err
	}
	if isERC721 {
		uri, err := a.readString(ctx, erc721ABI, "tokenURI", addr, id)
		if err != nil {
			return "", a.tokenError(err, contractAddress, tokenID, "tokenURI")
		}
		return nonEmptyURI(uri, contractAddress, tokenID)
	}

	isERC1155, err := a.IsERC1155(ctx, contractAddress)
	if err != nil {
		return "", err
	}
	if isERC1155 {
		uri, err := a.readString(ctx, erc1155ABI, "uri", addr, id)
		if err != nil {
			return "", a.tokenError(err, contractAddress, tokenID, "uri")
		}
		return nonEmptyURI(ExpandIDPlaceholder(uri, id), contractAddress, tokenID)
	}

	return "", fmt.Errorf("%w: contract %s on %s implements neither ERC721 nor ERC1155",
		domain.ErrNotFound, contractAddress, a.chain,
	)
}

// GetContractMetadata detects the standard and reads name, symbol and totalSupply independently.
// Unreadable fields stay nil. Only an unreachable node is an error.
func (a *Adapter) GetContractMetadata(ctx context.Context, contractAddress string) (entity.ContractMetadata, error) {
	md := entity.ContractMetadata{ContractType: entity.ContractTypeUnknown}
	addr, err := parseAddress(contractAddress)
	if err != nil {
		a.logger.Debug("Invalid contract address, reporting unknown type", zap.String("contract", contractAddress))
		return md, nil
	}

	var isERC721, isERC1155 bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		isERC721, err = a.supportsInterface(gctx, addr, InterfaceIDERC721)
		return err
	})
	g.Go(func() error {
		var err error
		isERC1155, err = a.supportsInterface(gctx, addr, InterfaceIDERC1155)
		return err
	})
	if err := g.Wait(); err != nil {
		return md, err
	}

	switch {
	case isERC721:
		md.ContractType = entity.ContractTypeERC721
	case isERC1155:
		md.ContractType = entity.ContractTypeERC1155
	default:
		return md, nil
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		md.Name = a.optionalString(ctx, addr, "name")
	}()
	go func() {
		defer wg.Done()
		md.Symbol = a.optionalString(ctx, addr, "symbol")
	}()
	go func() {
		defer wg.Done()
		values, err := a.call(ctx, erc721ABI, "totalSupply", addr)
		if err != nil {
			a.logger.Debug("totalSupply unavailable", zap.String("contract", contractAddress), zap.Error(err))
			return
		}
		if supply, ok := values[0].(*big.Int); ok {
			s := supply.String()
			md.TotalSupply = &s
		}
	}()
	wg.Wait()

	return md, nil
}

func (a *Adapter) IsERC721(ctx context.Context, contractAddress string) (bool, error) {
	addr, err := parseAddress(contractAddress)
	if err != nil {
		return false, err
	}
	return a.supportsInterface(ctx, addr, InterfaceIDERC721)
}

func (a *Adapter) IsERC1155(ctx context.Context, contractAddress string) (bool, error) {
	addr, err := parseAddress(contractAddress)
	if err != nil {
		return false, err
	}
	return a.supportsInterface(ctx, addr, InterfaceIDERC1155)
}

// CheckConnection asks the node for the current block height.
func (a *Adapter) CheckConnection(ctx context.Context) bool {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	height, err := a.caller.BlockNumber(callCtx)
	if err != nil {
		a.logger.Warn("Node connection check failed", zap.Error(err))
		return false
	}
	a.logger.Debug("Node connection check passed", zap.Uint64("blockNumber", height))
	return true
}

// Close releases the node connection when the caller owns one.
func (a *Adapter) Close() {
	if closer, ok := a.caller.(interface{ Close() }); ok {
		closer.Close()
	}
}

// supportsInterface is the ERC-165 probe. A contract that rejects the call does not support the interface.
func (a *Adapter) supportsInterface(ctx context.Context, addr common.Address, id [4]byte) (bool, error) {
	values, err := a.call(ctx, erc721ABI, "supportsInterface", addr, id)
	if errors.Is(err, errCallFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	supported, _ := values[0].(bool)
	return supported, nil
}

func (a *Adapter) optionalString(ctx context.Context, addr common.Address, method string) *string {
	s, err := a.readString(ctx, erc721ABI, method, addr)
	if err != nil || s == "" {
		a.logger.Debug("Optional contract field unavailable",
			zap.String("method", method), zap.String("contract", addr.Hex()), zap.Error(err),
		)
		return nil
	}
	return &s
}

func (a *Adapter) readString(ctx context.Context, contractABI abi.ABI, method string, addr common.Address, args ...any) (string, error) {
	values, err := a.call(ctx, contractABI, method, addr, args...)
	if err != nil {
		return "", err
	}
	s, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s returned %T", errCallFailed, method, values[0])
	}
	return s, nil
}

// call packs, executes and unpacks one view call under the per-call timeout.
func (a *Adapter) call(ctx context.Context, contractABI abi.ABI, method string, addr common.Address, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %v", apperrors.ErrInternal, method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	out, err := a.caller.CallContract(callCtx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		if isContractRejection(err) {
			return nil, fmt.Errorf("%w: %s: %v", errCallFailed, method, err)
		}
		return nil, fmt.Errorf("%w: %s node call %s on %s: %v",
			domain.ErrUpstreamUnavailable, a.chain, method, addr.Hex(), err,
		)
	}

	values, err := contractABI.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return nil, fmt.Errorf("%w: unpack %s: %v", errCallFailed, method, err)
	}
	return values, nil
}

func (a *Adapter) tokenError(err error, contractAddress, tokenID, method string) error {
	if errors.Is(err, errCallFailed) {
		return fmt.Errorf("%w: %s(%s) on %s %s: %v", domain.ErrNotFound, method, tokenID, a.chain, contractAddress, err)
	}
	return err
}

// isContractRejection reports a JSON-RPC error object from the node, such as a revert.
func isContractRejection(err error) bool {
	var rpcErr gethrpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	return !throttleCodes[rpcErr.ErrorCode()]
}

func nonEmptyURI(uri, contractAddress, tokenID string) (string, error) {
	if strings.TrimSpace(uri) == "" {
		return "", fmt.Errorf("%w: empty token uri for %s #%s", domain.ErrNotFound, contractAddress, tokenID)
	}
	return uri, nil
}

// ExpandIDPlaceholder substitutes the ERC-1155 {id} placeholder with the zero-padded hex token id.
func ExpandIDPlaceholder(uri string, id *big.Int) string {
	if !strings.Contains(uri, "{id}") {
		return uri
	}
	return strings.ReplaceAll(uri, "{id}", fmt.Sprintf("%064x", id))
}

func parseAddress(contractAddress string) (common.Address, error) {
	if !common.IsHexAddress(contractAddress) {
		return common.Address{}, fmt.Errorf("%w: invalid contract address %q", apperrors.ErrInvalidInput, contractAddress)
	}
	return common.HexToAddress(contractAddress), nil
}

func parseTokenID(tokenID string) (*big.Int, error) {
	s := strings.TrimSpace(tokenID)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	id, ok := new(big.Int).SetString(s, base)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid token id %q", apperrors.ErrInvalidInput, tokenID)
	}
	return id, nil
}

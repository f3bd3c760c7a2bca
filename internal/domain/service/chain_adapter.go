package service

import (
	"context"

	"nft-metadata-resolver/internal/domain/entity"
)

// ChainAdapter reads token pointers and contract details from one chain.
// Implementations hold one long-lived node connection and are safe for concurrent use.
type ChainAdapter interface {
	// Chain is the lower-case identifier the adapter is registered under.
	Chain() string

	// GetTokenURI returns the raw token pointer stored on-chain.
	GetTokenURI(ctx context.Context, contractAddress, tokenID string) (string, error)

	// GetContractMetadata reads name, symbol and supply best-effort.
	GetContractMetadata(ctx context.Context, contractAddress string) (entity.ContractMetadata, error)

	// IsERC721 probes for the non-fungible standard.
	IsERC721(ctx context.Context, contractAddress string) (bool, error)

	// IsERC1155 probes for the multi-token standard.
	IsERC1155(ctx context.Context, contractAddress string) (bool, error)

	// CheckConnection reports whether the node answers a chain-height call.
	CheckConnection(ctx context.Context) bool

	// Close releases the node connection.
	Close()
}

// ChainRegistry looks up adapters by chain identifier.
type ChainRegistry interface {
	// Resolve returns the adapter for chain, ignoring case. Unknown chains fail with domain.UnsupportedChainError.
	Resolve(chain string) (ChainAdapter, error)

	// Supported lists the registered chain identifiers in registration order.
	Supported() []string

	// All returns the registered adapters in registration order.
	All() []ChainAdapter
}

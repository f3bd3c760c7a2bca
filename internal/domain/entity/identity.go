package entity

import (
	"fmt"
	"math/big"
	"strings"
)

// Cache key namespaces.
const (
	nftKeyPrefix        = "nft"
	collectionKeyPrefix = "collection"
	keySeparator        = ":"
)

// TokenIdentity addresses one collectible. Chain and ContractAddress are always lower-case.
type TokenIdentity struct {
	Chain           string
	ContractAddress string
	TokenID         string
}

// NewTokenIdentity trims and lower-cases the chain and address, and canonicalizes the token ID.
func NewTokenIdentity(chain, contractAddress, tokenID string) TokenIdentity {
	return TokenIdentity{
		Chain:           normalizePart(chain),
		ContractAddress: normalizePart(contractAddress),
		TokenID:         CanonicalTokenID(tokenID),
	}
}

// CanonicalTokenID renders a non-negative decimal or 0x-prefixed hex token ID in plain decimal,
// so "1", "01" and "0x1" share one cache entry. Anything else is only trimmed.
func CanonicalTokenID(tokenID string) string {
	s := strings.TrimSpace(tokenID)
	digits, base := s, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits, base = s[2:], 16
	}
	if digits == "" || strings.ContainsAny(digits[:1], "+-") {
		return s
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return s
	}
	return n.String()
}

// Collection returns the identity of the contract the token belongs to.
func (id TokenIdentity) Collection() CollectionIdentity {
	return CollectionIdentity{Chain: id.Chain, ContractAddress: id.ContractAddress}
}

// Key renders the cache key nft:{chain}:{address}:{tokenId}.
func (id TokenIdentity) Key() string {
	return strings.Join([]string{nftKeyPrefix, id.Chain, id.ContractAddress, id.TokenID}, keySeparator)
}

// Validate reports an error when any part of the identity is empty.
func (id TokenIdentity) Validate() error {
	if err := id.Collection().Validate(); err != nil {
		return err
	}
	if id.TokenID == "" {
		return fmt.Errorf("token id is required")
	}
	return nil
}

func (id TokenIdentity) String() string {
	return id.Key()
}

// CollectionIdentity addresses one contract.
type CollectionIdentity struct {
	Chain           string
	ContractAddress string
}

// NewCollectionIdentity trims and lower-cases both parts.
func NewCollectionIdentity(chain, contractAddress string) CollectionIdentity {
	return CollectionIdentity{Chain: normalizePart(chain), ContractAddress: normalizePart(contractAddress)}
}

// Key renders the cache key collection:{chain}:{address}.
func (id CollectionIdentity) Key() string {
	return strings.Join([]string{collectionKeyPrefix, id.Chain, id.ContractAddress}, keySeparator)
}

// TokenKeyPrefix is the prefix shared by the keys of every token of the collection.
func (id CollectionIdentity) TokenKeyPrefix() string {
	return KeyPattern(id.Chain, id.ContractAddress)
}

// Validate reports an error when the chain or address is empty.
func (id CollectionIdentity) Validate() error {
	if id.Chain == "" {
		return fmt.Errorf("chain is required")
	}
	if id.ContractAddress == "" {
		return fmt.Errorf("contract address is required")
	}
	return nil
}

// ParseTokenKey reverses TokenIdentity.Key. It fails unless the key has exactly four parts and the nft namespace.
func ParseTokenKey(key string) (TokenIdentity, bool) {
	parts := strings.Split(key, keySeparator)
	if len(parts) != 4 || parts[0] != nftKeyPrefix {
		return TokenIdentity{}, false
	}
	return TokenIdentity{Chain: parts[1], ContractAddress: parts[2], TokenID: parts[3]}, true
}

// KeyPattern builds a token key prefix: "nft:", "nft:{chain}:" or "nft:{chain}:{address}:".
// Empty trailing parts widen the pattern.
func KeyPattern(chain, contractAddress string) string {
	chain = normalizePart(chain)
	contractAddress = normalizePart(contractAddress)

	pattern := nftKeyPrefix + keySeparator
	if chain == "" {
		return pattern
	}
	pattern += chain + keySeparator
	if contractAddress == "" {
		return pattern
	}
	return pattern + contractAddress + keySeparator
}

func normalizePart(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

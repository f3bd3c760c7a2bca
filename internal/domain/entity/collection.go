package entity

import "time"

// ContractType is the token standard a contract was detected to implement.
type ContractType string

const (
	ContractTypeERC721  ContractType = "ERC721"
	ContractTypeERC1155 ContractType = "ERC1155"
	ContractTypeUnknown ContractType = "UNKNOWN"
)

// ContractMetadata is what a chain adapter can read about a contract. Nil fields could not be read.
type ContractMetadata struct {
	Name         *string
	Symbol       *string
	TotalSupply  *string
	ContractType ContractType
}

// Collection is the cached record for one contract.
type Collection struct {
	Chain           string
	ContractAddress string

	Name         *string
	Symbol       *string
	TotalSupply  *string
	ContractType ContractType

	UpdatedAt time.Time
}

// Identity returns the key the record is stored under.
func (c Collection) Identity() CollectionIdentity {
	return CollectionIdentity{Chain: c.Chain, ContractAddress: c.ContractAddress}
}

// Clone returns a deep copy that shares no pointers with c.
func (c Collection) Clone() Collection {
	c.Name = cloneString(c.Name)
	c.Symbol = cloneString(c.Symbol)
	c.TotalSupply = cloneString(c.TotalSupply)
	return c
}

// NewCollection combines an identity with what the adapter read.
func NewCollection(id CollectionIdentity, md ContractMetadata, updatedAt time.Time) Collection {
	ct := md.ContractType
	if ct == "" {
		ct = ContractTypeUnknown
	}
	return Collection{
		Chain:           id.Chain,
		ContractAddress: id.ContractAddress,
		Name:            md.Name,
		Symbol:          md.Symbol,
		TotalSupply:     md.TotalSupply,
		ContractType:    ct,
		UpdatedAt:       updatedAt,
	}
}

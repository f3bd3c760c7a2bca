package http

import (
	"time"

	"nft-metadata-resolver/internal/domain/entity"
)

// NFTResponse is the wire form of a token record.
type NFTResponse struct {
	ContractAddress string             `json:"contractAddress"`
	TokenID         string             `json:"tokenId"`
	Chain           string             `json:"chain"`
	Name            *string            `json:"name"`
	Description     *string            `json:"description"`
	Image           *string            `json:"image"`
	ImageURL        *string            `json:"imageUrl"`
	AnimationURL    *string            `json:"animationUrl"`
	ExternalURL     *string            `json:"externalUrl"`
	Attributes      []entity.Attribute `json:"attributes"`
	TokenURI        string             `json:"tokenUri"`
	RawMetadata     entity.RawDocument `json:"rawMetadata,omitempty"`
	Cached          bool               `json:"cached"`
	Source          entity.Tier        `json:"source"`
	LastUpdated     time.Time          `json:"lastUpdated"`
}

// CollectionResponse is the wire form of a contract record.
type CollectionResponse struct {
	ContractAddress string              `json:"contractAddress"`
	Chain           string              `json:"chain"`
	Name            *string             `json:"name"`
	Symbol          *string             `json:"symbol"`
	TotalSupply     *string             `json:"totalSupply"`
	ContractType    entity.ContractType `json:"contractType"`
	Cached          bool                `json:"cached"`
	LastUpdated     time.Time           `json:"lastUpdated"`
}

// TokenPageResponse is one page of cached token records.
type TokenPageResponse struct {
	Items  []NFTResponse `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ChainsResponse lists the supported chains.
type ChainsResponse struct {
	Chains []string `json:"chains"`
}

// HealthResponse reports dependency liveness.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    float64           `json:"uptime"`
	Services  map[string]string `json:"services"`
}

// StatsResponse reports cache counts.
type StatsResponse struct {
	Timestamp time.Time  `json:"timestamp"`
	Cache     CacheStats `json:"cache"`
}

type CacheStats struct {
	Database DatabaseStats `json:"database"`
	Hot      HotStats      `json:"hot"`
}

type DatabaseStats struct {
	TotalNFTs        int64            `json:"totalNfts"`
	TotalCollections int64            `json:"totalCollections"`
	NFTsByChain      map[string]int64 `json:"nftsByChain"`
}

type HotStats struct {
	Healthy bool `json:"healthy"`
}

// InvalidationResponse reports what a DELETE removed.
type InvalidationResponse struct {
	Key     string `json:"key"`
	Removed int    `json:"removed"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// NewNFTResponse converts a record for output. cached and source describe where it was served from.
func NewNFTResponse(m entity.Metadata, cached bool, source entity.Tier) NFTResponse {
	resp := NFTResponse{
		ContractAddress: m.ContractAddress,
		TokenID:         m.TokenID,
		Chain:           m.Chain,
		Name:            m.Name,
		Description:     m.Description,
		Image:           m.Image,
		ImageURL:        m.ImageURL,
		AnimationURL:    m.AnimationURL,
		ExternalURL:     m.ExternalURL,
		Attributes:      m.Attributes,
		RawMetadata:     m.RawMetadata,
		Cached:          cached,
		Source:          source,
		LastUpdated:     m.UpdatedAt.UTC(),
	}
	if m.TokenURI != nil {
		resp.TokenURI = *m.TokenURI
	}
	return resp
}

// NewCollectionResponse converts a collection record for output.
func NewCollectionResponse(c entity.Collection, cached bool) CollectionResponse {
	return CollectionResponse{
		ContractAddress: c.ContractAddress,
		Chain:           c.Chain,
		Name:            c.Name,
		Symbol:          c.Symbol,
		TotalSupply:     c.TotalSupply,
		ContractType:    c.ContractType,
		Cached:          cached,
		LastUpdated:     c.UpdatedAt.UTC(),
	}
}

func newTokenPageResponse(page entity.MetadataPage) TokenPageResponse {
	items := make([]NFTResponse, 0, len(page.Items))
	for _, m := range page.Items {
		items = append(items, NewNFTResponse(m, true, entity.TierPersistent))
	}
	return TokenPageResponse{Items: items, Total: page.Total, Limit: page.Limit, Offset: page.Offset}
}

func serviceStatus(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

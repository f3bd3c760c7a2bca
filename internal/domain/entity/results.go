package entity

// Tier names the place a record was served from.
type Tier string

const (
	TierHot        Tier = "hot"
	TierPersistent Tier = "persistent"
	TierNone       Tier = "none"
)

// NFTResult is a resolved token record with its cache provenance.
type NFTResult struct {
	Metadata  Metadata
	FromCache bool
	Source    Tier
}

// CollectionResult is a resolved contract record with its cache provenance.
type CollectionResult struct {
	Collection Collection
	FromCache  bool
	Source     Tier
}

// MetadataPage is one page of cached token records for a collection, newest first.
type MetadataPage struct {
	Items  []Metadata
	Total  int
	Limit  int
	Offset int
}

// StoreStats are the persistent tier's record counts.
type StoreStats struct {
	TotalRecords     int64
	TotalCollections int64
	PerChainCounts   map[string]int64
}

// CacheStatistics are reported by the resolution service.
type CacheStatistics struct {
	StoreStats
	HotTierHealthy bool
}

// Health status values.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// HealthReport is the liveness of every dependency.
type HealthReport struct {
	HotTierHealthy bool
	Chains         map[string]bool
}

// Status is "ok" when every dependency is reachable, otherwise "degraded".
func (h HealthReport) Status() string {
	if !h.HotTierHealthy {
		return HealthDegraded
	}
	for _, ok := range h.Chains {
		if !ok {
			return HealthDegraded
		}
	}
	return HealthOK
}

package repository

import (
	"context"
	"time"

	"nft-metadata-resolver/internal/domain/entity"
)

// HotCacheRepository is the volatile, TTL-bounded tier. A miss is reported by found=false, not an error.
type HotCacheRepository interface {
	// GetMetadata returns the record stored under key.
	GetMetadata(ctx context.Context, key string) (entity.Metadata, bool, error)

	// SetMetadata stores the record under key for ttl.
	SetMetadata(ctx context.Context, key string, m entity.Metadata, ttl time.Duration) error

	// GetCollection returns the collection record stored under key.
	GetCollection(ctx context.Context, key string) (entity.Collection, bool, error)

	// SetCollection stores the collection record under key for ttl.
	SetCollection(ctx context.Context, key string, c entity.Collection, ttl time.Duration) error

	// Delete removes a single key and reports whether it was present.
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteByPrefix removes every key starting with prefix and returns how many were removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// Clear removes everything.
	Clear(ctx context.Context) error

	// Ping verifies the tier accepts a write, a read and a delete.
	Ping(ctx context.Context) error
}

// PersistentRepository is the durable tier. Records are overwritten wholesale.
type PersistentRepository interface {
	// GetMetadata returns the token record for id.
	GetMetadata(ctx context.Context, id entity.TokenIdentity) (entity.Metadata, bool, error)

	// UpsertMetadata inserts or replaces the token record.
	UpsertMetadata(ctx context.Context, m entity.Metadata) error

	// DeleteMetadata removes the token record and reports whether one existed. Missing records are not an error.
	DeleteMetadata(ctx context.Context, id entity.TokenIdentity) (bool, error)

	// GetCollection returns the collection record for id.
	GetCollection(ctx context.Context, id entity.CollectionIdentity) (entity.Collection, bool, error)

	// UpsertCollection inserts or replaces the collection record.
	UpsertCollection(ctx context.Context, c entity.Collection) error

	// ListCollectionTokens pages through cached tokens of a collection, newest first.
	ListCollectionTokens(ctx context.Context, id entity.CollectionIdentity, limit, offset int) (entity.MetadataPage, error)

	// DeleteCollection removes the collection record and all of its tokens, returning the token count removed.
	DeleteCollection(ctx context.Context, id entity.CollectionIdentity) (int, error)

	// Stats counts stored records.
	Stats(ctx context.Context) (entity.StoreStats, error)
}

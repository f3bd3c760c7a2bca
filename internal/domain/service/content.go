package service

import (
	"context"

	"nft-metadata-resolver/internal/domain/entity"
)

// ContentResolver dereferences token pointers into document bytes.
type ContentResolver interface {
	// Normalize rewrites a pointer into a fetchable URL on the primary gateway. HTTP URLs pass through.
	Normalize(uri string) string

	// Fetch downloads the document a pointer refers to, falling back across gateways.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// MetadataNormalizer turns token pointers and raw documents into normalized records.
type MetadataNormalizer interface {
	// Load returns the document bytes for a pointer, decoding inline documents locally.
	Load(ctx context.Context, tokenURI string) ([]byte, error)

	// Parse builds a record from a raw document. Identity fields are left empty.
	Parse(raw []byte) (entity.Metadata, error)

	// Validate reports whether the record is minimally usable.
	Validate(m entity.Metadata) bool
}

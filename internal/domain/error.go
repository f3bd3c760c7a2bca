package domain

import (
	"errors"
	"fmt"
	"strings"

	"nft-metadata-resolver/internal/pkg/apperrors"
)

var (
	// ErrUnsupportedChain means the requested chain identifier has no registered adapter.
	ErrUnsupportedChain = errors.New("unsupported chain")

	// ErrNotFound means the contract does not expose the requested token pointer or the token does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClientError means a content source answered with a 4xx status. Never retried.
	ErrClientError = errors.New("content source rejected request")

	// ErrUpstreamUnavailable means a node or content source could not be reached after retries.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedDocument means a fetched or inline document is not a JSON object.
	ErrMalformedDocument = errors.New("malformed metadata document")

	// ErrContentUnavailable means every gateway failed for a content-addressed pointer.
	ErrContentUnavailable = errors.New("content unavailable on all gateways")

	// ErrCacheFailure means an internal error occurred while interacting with a cache tier (not a miss).
	ErrCacheFailure = errors.New("cache operation failed")
)

// UnsupportedChainError carries the requested chain and the list of chains the registry knows.
type UnsupportedChainError struct {
	Chain     string
	Supported []string
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("Unsupported chain: %s. Supported chains: %s", e.Chain, strings.Join(e.Supported, ", "))
}

// Unwrap lets errors.Is match ErrUnsupportedChain.
func (e *UnsupportedChainError) Unwrap() error {
	return ErrUnsupportedChain
}

// ErrorClass groups failures by how a caller should react to them.
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassClientInput
	ClassNotFound
	ClassTransient
)

func (c ErrorClass) String() string {
	switch c {
	case ClassClientInput:
		return "client_input"
	case ClassNotFound:
		return "not_found"
	case ClassTransient:
		return "transient"
	default:
		return "internal"
	}
}

// ClassOf maps an error from the resolution pipeline onto its class.
func ClassOf(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrUnsupportedChain), errors.Is(err, apperrors.ErrInvalidInput):
		return ClassClientInput
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrClientError), errors.Is(err, ErrMalformedDocument):
		return ClassNotFound
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrContentUnavailable),
		errors.Is(err, apperrors.ErrTimeout), errors.Is(err, apperrors.ErrExternalServiceFailure):
		return ClassTransient
	default:
		return ClassInternal
	}
}

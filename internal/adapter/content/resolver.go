package content

import (
	"context"
	"fmt"
	"strings"

	"nft-metadata-resolver/internal/domain"
	"nft-metadata-resolver/internal/domain/entity"
	domainService "nft-metadata-resolver/internal/domain/service"
	"nft-metadata-resolver/internal/pkg/apperrors"

	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.ContentResolver = (*Resolver)(nil)

// Options tunes retry behaviour.
type Options struct {
	// MaxRetries is the attempt budget for pointers without an extractable hash.
	MaxRetries int
	// GatewayRetries is the attempt budget spent on each gateway.
	GatewayRetries int
	Backoff        Backoff
}

// DefaultOptions are three direct attempts, two per gateway, and DefaultBackoff.
var DefaultOptions = Options{MaxRetries: 3, GatewayRetries: 2, Backoff: DefaultBackoff}

// Resolver dereferences token pointers over a list of gateways.
type Resolver struct {
	gateways []entity.Gateway
	fetch    FetchFunc
	opts     Options
	logger   *zap.Logger
}

// NewResolver creates a resolver. gateways must already be in priority order.
func NewResolver(gateways []entity.Gateway, fetch FetchFunc, opts Options, logger *zap.Logger) *Resolver {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = DefaultOptions.MaxRetries
	}
	if opts.GatewayRetries < 1 {
		opts.GatewayRetries = DefaultOptions.GatewayRetries
	}
	if len(gateways) == 0 {
		gateways = entity.DefaultGateways()
	}
	return &Resolver{
		gateways: gateways,
		fetch:    fetch,
		opts:     opts,
		logger:   logger.Named("ContentResolver"),
	}
}

// Gateways returns the fallback order.
func (r *Resolver) Gateways() []entity.Gateway {
	out := make([]entity.Gateway, len(r.gateways))
	copy(out, r.gateways)
	return out
}

// Normalize rewrites content-addressed pointers onto the primary gateway.
// http(s) URLs, inline and unrecognized pointers are returned unchanged, even when they embed a hash.
func (r *Resolver) Normalize(uri string) string {
	p := Classify(uri)
	if p.IsHTTP() {
		return p.Raw
	}
	return r.gatewayURL(p, 0)
}

// GatewayURL rewrites a content-addressed pointer onto the gateway at index.
// An http(s) URL is only rewritten when it embeds a CID.
// An out-of-range index falls back to the primary gateway.
func (r *Resolver) GatewayURL(uri string, index int) string {
	return r.gatewayURL(Classify(uri), index)
}

func (r *Resolver) gatewayURL(p Pointer, index int) string {
	if p.Kind != KindContentAddressed || (p.IsHTTP() && !p.HasHash()) {
		return p.Raw
	}

	if index < 0 || index >= len(r.gateways) {
		index = 0
	}
	base := r.gateways[index].BaseURL

	if p.HasHash() {
		return base + ipfsMarker + p.Hash + p.Path
	}

	lower := strings.ToLower(p.Raw)
	switch {
	case strings.HasPrefix(lower, ipfsScheme):
		rest := strings.TrimPrefix(p.Raw[len(ipfsScheme):], "ipfs/")
		return base + ipfsMarker + rest
	case strings.HasPrefix(lower, ipfsMarker):
		return base + p.Raw
	default:
		return base + ipfsMarker + p.Raw
	}
}

// Fetch downloads the document behind a pointer.
func (r *Resolver) Fetch(ctx context.Context, uri string) ([]byte, error) {
	p := Classify(uri)
	switch p.Kind {
	case KindInline:
		return nil, fmt.Errorf("%w: inline pointer has no remote content", apperrors.ErrInvalidInput)
	case KindUnrecognized:
		return nil, fmt.Errorf("%w: unsupported token pointer %q", domain.ErrNotFound, p.Raw)
	}

	if p.HasHash() {
		return r.fetchFromGateways(ctx, p)
	}

	target := p.Raw
	if !p.IsHTTP() {
		target = r.gatewayURL(p, 0)
	}
	r.logger.Debug("Fetching pointer directly", zap.String("url", target), zap.Stringer("kind", p.Kind))
	return FetchWithRetry(ctx, r.fetch, target, r.opts.MaxRetries, r.opts.Backoff)
}

// fetchFromGateways walks the gateways in order; the first success wins.
func (r *Resolver) fetchFromGateways(ctx context.Context, p Pointer) ([]byte, error) {
	r.logger.Debug("Fetching content-addressed pointer",
		zap.String("hash", p.Hash), zap.String("path", p.Path), zap.Int("cidVersion", p.CIDVersion),
	)

	var lastErr error
	for i, gw := range r.gateways {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrUpstreamUnavailable, p.Hash, err)
		}

		target := gw.BaseURL + ipfsMarker + p.Hash + p.Path
		body, err := FetchWithRetry(ctx, r.fetch, target, r.opts.GatewayRetries, r.opts.Backoff)
		if err == nil {
			if i > 0 {
				r.logger.Info("Content served by fallback gateway", zap.String("gateway", gw.Name), zap.String("hash", p.Hash))
			}
			return body, nil
		}
		r.logger.Warn("Gateway failed", zap.String("gateway", gw.Name), zap.String("url", target), zap.Error(err))
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %s (tried %d gateways): %v", domain.ErrContentUnavailable, p.Hash, len(r.gateways), lastErr)
}

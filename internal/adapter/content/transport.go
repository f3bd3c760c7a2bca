package content

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"nft-metadata-resolver/internal/config"
	"nft-metadata-resolver/internal/pkg/apperrors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	defaultFetchTimeout  = 5 * time.Second
	defaultMaxRedirects  = 5
	maxDocumentBodySize  = 10 << 20
	acceptDocumentHeader = "application/json, text/plain;q=0.9, */*;q=0.8"
	fetcherUserAgent     = "nft-metadata-resolver/1.0"
)

// HTTPFetcher performs single download attempts over fasthttp.
type HTTPFetcher struct {
	client       *fasthttp.Client
	timeout      time.Duration
	maxRedirects int
	logger       *zap.Logger
}

// NewHTTPFetcher creates a fetcher bounded by the configured per-call timeout.
// dial may be nil; tests pass an in-memory dialer.
func NewHTTPFetcher(cfg config.ContentConfig, dial fasthttp.DialFunc, logger *zap.Logger) *HTTPFetcher {
	timeout := cfg.GetTimeout()
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects < 0 {
		maxRedirects = defaultMaxRedirects
	}

	return &HTTPFetcher{
		client: &fasthttp.Client{
			Name:                fetcherUserAgent,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxResponseBodySize: maxDocumentBodySize,
			Dial:                dial,
		},
		timeout:      timeout,
		maxRedirects: maxRedirects,
		logger:       logger.Named("ContentFetcher"),
	}
}

// Fetch issues one GET, following redirects, and returns the body of a 2xx answer.
// Non-2xx answers are reported as *StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	deadline := time.Now().Add(f.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rawURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, acceptDocumentHeader)

	current := rawURL
	for hop := 0; ; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: fetch %s: %v", apperrors.ErrTimeout, current, err)
		}

		if err := f.client.DoDeadline(req, resp, deadline); err != nil {
			if errors.Is(err, fasthttp.ErrTimeout) || isNetTimeout(err) {
				f.logger.Debug("Content fetch timed out", zap.String("url", current), zap.Error(err))
				return nil, fmt.Errorf("%w: fetch %s: %v", apperrors.ErrTimeout, current, err)
			}
			f.logger.Debug("Content fetch failed", zap.String("url", current), zap.Error(err))
			return nil, fmt.Errorf("%w: fetch %s: %v", apperrors.ErrExternalServiceFailure, current, err)
		}

		status := resp.StatusCode()
		if fasthttp.StatusCodeIsRedirect(status) {
			location := resp.Header.Peek(fasthttp.HeaderLocation)
			if len(location) == 0 || hop >= f.maxRedirects {
				return nil, &StatusError{URL: current, StatusCode: status}
			}
			req.URI().UpdateBytes(location)
			current = req.URI().String()
			f.logger.Debug("Following redirect", zap.String("location", current), zap.Int("status", status))
			continue
		}

		if status < fasthttp.StatusOK || status >= fasthttp.StatusMultipleChoices {
			return nil, &StatusError{URL: current, StatusCode: status}
		}

		body := make([]byte, len(resp.Body()))
		copy(body, resp.Body())
		return body, nil
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

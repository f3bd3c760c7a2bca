package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nft-metadata-resolver/internal/domain"
)

// FetchFunc performs one download attempt.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// StatusError is returned by a FetchFunc when the source answered with a non-success status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned http status %d", e.URL, e.StatusCode)
}

// IsClientError reports a 4xx status.
func (e *StatusError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Backoff computes the pause after a failed attempt: Base doubled per attempt, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff waits 1s, 2s, 4s, then 5s from there on.
var DefaultBackoff = Backoff{Base: time.Second, Max: 5 * time.Second}

// Delay returns the pause after the zero-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := b.Base << attempt
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}
	return d
}

// FetchWithRetry calls fetch up to attempts times. A 4xx answer ends the loop at once with
// ErrClientError. Any other failure is retried after a backoff pause; there is no pause after
// the last attempt. Exhaustion yields ErrUpstreamUnavailable.
func FetchWithRetry(ctx context.Context, fetch FetchFunc, url string, attempts int, backoff Backoff) ([]byte, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		body, err := fetch(ctx, url)
		if err == nil {
			return body, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.IsClientError() {
			return nil, fmt.Errorf("%w: %s returned %d", domain.ErrClientError, url, statusErr.StatusCode)
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}
		if sleepErr := sleepContext(ctx, backoff.Delay(attempt)); sleepErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrUpstreamUnavailable, url, sleepErr)
		}
	}

	return nil, fmt.Errorf("%w: %s failed after %d attempts: %w", domain.ErrUpstreamUnavailable, url, attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

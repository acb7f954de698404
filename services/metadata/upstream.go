package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

var (
	ErrNotConfigured  = errors.New("metadata provider not configured")
	ErrNotFound       = errors.New("metadata not found")
	ErrUpstream       = errors.New("metadata upstream failure")
	ErrInvalidRequest = errors.New("invalid metadata request")
)

// upstream is a throttled JSON-over-HTTP endpoint shared by the provider clients.
type upstream struct {
	name     string
	httpc    *http.Client
	limiter  *rate.Limiter
	attempts uint
	delay    time.Duration

	// decorate adds credentials to each request.
	decorate func(*http.Request)
}

func newUpstream(name string, httpc *http.Client, rps float64) *upstream {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &upstream{
		name:     name,
		httpc:    httpc,
		limiter:  rate.NewLimiter(limit, burst),
		attempts: 3,
		delay:    300 * time.Millisecond,
	}
}

// getJSON performs a GET with rate limiting, retrying transport errors, 429
// and 5xx with exponential backoff.
func (u *upstream) getJSON(ctx context.Context, endpoint string, v any) error {
	return retry.Do(
		func() error {
			if err := u.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Accept", "application/json")
			if u.decorate != nil {
				u.decorate(req)
			}

			resp, err := u.httpc.Do(req)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrUpstream, u.name, err)
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
				return fmt.Errorf("%w: %s request failed: %s", ErrUpstream, u.name, resp.Status)
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(fmt.Errorf("%w: %s", ErrNotFound, u.name))
			case resp.StatusCode >= 400:
				return retry.Unrecoverable(fmt.Errorf("%w: %s request failed: %s", ErrUpstream, u.name, resp.Status))
			}

			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("%w: %s decode: %v", ErrUpstream, u.name, err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(u.attempts),
		retry.Delay(u.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[%s] request error (attempt %d/%d): %v", u.name, n+1, u.attempts, err)
		}),
	)
}

package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"bingewatch/models"
	"bingewatch/services/progress"
)

var ErrBaseURLRequired = errors.New("remote store url is required")

// UserHeader carries the user id when the remote instance runs without OIDC.
const UserHeader = "X-User-ID"

// Store talks to the /api/store surface of another bingewatch instance.
type Store struct {
	baseURL  string
	token    string
	httpc    *http.Client
	attempts uint
	delay    time.Duration
}

var _ progress.Store = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.httpc = c }
}

func WithToken(token string) Option {
	return func(s *Store) { s.token = strings.TrimSpace(token) }
}

// WithRetry sets the attempt count and the initial backoff delay.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(s *Store) {
		s.attempts = attempts
		s.delay = delay
	}
}

func New(baseURL string, opts ...Option) (*Store, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse remote store url: %w", err)
	}
	s := &Store{
		baseURL:  baseURL,
		httpc:    &http.Client{Timeout: 15 * time.Second},
		attempts: 3,
		delay:    300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Put(ctx context.Context, userID string, video models.VideoInfo) error {
	body, err := json.Marshal(video)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = s.do(ctx, http.MethodPut, "/api/store/records", userID, body, nil)
	return err
}

func (s *Store) Get(ctx context.Context, userID, key string) (*models.VideoInfo, error) {
	var rec models.VideoInfo
	status, err := s.do(ctx, http.MethodGet, "/api/store/records/"+url.PathEscape(key), userID, nil, &rec)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) List(ctx context.Context, userID string) ([]models.VideoInfo, error) {
	var items []models.VideoInfo
	if _, err := s.do(ctx, http.MethodGet, "/api/store/records", userID, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) Delete(ctx context.Context, userID string, keys ...string) error {
	for _, key := range keys {
		status, err := s.do(ctx, http.MethodDelete, "/api/store/records/"+url.PathEscape(key), userID, nil, nil)
		if err != nil && status != http.StatusNotFound {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.httpc.CloseIdleConnections()
	return nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("remote store request failed: %d %s", e.status, e.body)
}

// do sends the request, retrying network errors, 429 and 5xx with exponential backoff.
func (s *Store) do(ctx context.Context, method, path, userID string, body []byte, out any) (int, error) {
	var status int
	err := retry.Do(
		func() error {
			var reader io.Reader
			if body != nil {
				reader = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set(UserHeader, userID)
			req.Header.Set("Accept", "application/json")
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			if s.token != "" {
				req.Header.Set("Authorization", "Bearer "+s.token)
			}

			resp, err := s.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			status = resp.StatusCode

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
			}
			if resp.StatusCode >= 400 {
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return retry.Unrecoverable(&statusError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))})
			}
			if out == nil || resp.StatusCode == http.StatusNoContent {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode remote response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[store] remote %s %s failed (attempt %d/%d): %v", method, path, n+1, s.attempts, err)
		}),
	)
	return status, err
}

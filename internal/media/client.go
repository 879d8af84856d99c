// ABOUTME: HTTP client for the external media store collaborator
// ABOUTME: Resolves opaque media references to {url, format, size} with bounded retry

package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ErrMediaNotFound is returned when the media store has no record for a reference.
var ErrMediaNotFound = errors.New("media not found")

// Info describes a resolved media object.
type Info struct {
	URL    string `json:"url"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
}

// Resolver resolves an opaque media reference to its metadata.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (*Info, error)
}

// Client talks to the media store over HTTP. Transient failures (5xx,
// transport errors) are retried with exponential backoff; 404 is final.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// NewClient creates a media store client. Pass nil logger for default.
func NewClient(baseURL string, timeout time.Duration, maxRetries int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		backoff:    200 * time.Millisecond,
		logger:     logger.With("component", "media"),
	}
}

var _ Resolver = (*Client)(nil)

// Resolve fetches metadata for the given media reference.
func (c *Client) Resolve(ctx context.Context, ref string) (*Info, error) {
	if ref == "" {
		return nil, ErrMediaNotFound
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			c.logger.Debug("retrying media resolve", "ref", ref, "attempt", attempt)
		}

		info, retryable, err := c.resolveOnce(ctx, ref)
		if err == nil {
			return info, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("resolving media %s: %w", ref, lastErr)
}

func (c *Client) resolveOnce(ctx context.Context, ref string) (*Info, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/media/"+ref, nil)
	if err != nil {
		return nil, false, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("media store request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var info Info
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, false, fmt.Errorf("decoding media response: %w", err)
		}
		return &info, false, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrMediaNotFound
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("media store returned %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("media store returned %d", resp.StatusCode)
	}
}

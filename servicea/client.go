// Package servicea implements the remote.Client contract against
// service A: a token-refresh OAuth2-style HTTP/JSON API, modeled on
// campminder/client.go's authentication and retry shape.
package servicea

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/liketrack/likesyncd/ratelimit"
	"github.com/liketrack/likesyncd/remote"
	"github.com/liketrack/likesyncd/syncerr"
)

const (
	batchSize         = 50
	networkAttempts   = 3
	tokenRefreshSlack = 60 * time.Second
)

// Config holds the credential block the daemon's config file stores
// for service A (spec.md §6's service_A.{client_id, client_secret,
// redirect_uri, refresh_token}).
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	RefreshToken string
}

// Client is the service A remote.Client implementation.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// New builds a service A client. The access token is fetched lazily on
// first use, not at construction time.
func New(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.NewRateLimiter(ratelimit.DefaultConfig()),
	}
}

// WithSession ensures a valid access token, runs fn, and guarantees no
// resources outlive the call — there is no separate handle to release
// beyond the token held on the Client itself, but the guard keeps the
// shape identical to service B's, where a real session object exists.
func (c *Client) WithSession(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.ensureAuthenticated(ctx, false); err != nil {
		return err
	}
	return fn(ctx)
}

func (c *Client) ensureAuthenticated(ctx context.Context, force bool) error {
	c.mu.Lock()
	needsRefresh := force || c.accessToken == "" || time.Until(c.expiresAt) < tokenRefreshSlack
	c.mu.Unlock()
	if !needsRefresh {
		return nil
	}

	req := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": c.cfg.RefreshToken,
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
	}
	body, _ := json.Marshal(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, bytes.NewReader(body))
	if err != nil {
		return syncerr.New(syncerr.KindNetwork, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return syncerr.New(syncerr.KindNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return syncerr.Auth("service_A.refresh_token", fmt.Errorf("token refresh failed: status %d", resp.StatusCode))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return syncerr.Auth("service_A.refresh_token", fmt.Errorf("decode token response: %w", err))
	}
	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = 3600
	}

	c.mu.Lock()
	c.accessToken = payload.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	c.mu.Unlock()
	return nil
}

// doRequest performs one HTTP call with the retry policy from spec.md
// §4.3: a 401 forces one token refresh and one retry; a 429 honours
// Retry-After; network errors retry up to networkAttempts times with
// backoff 2^attempt seconds between attempts (1s, then 2s).
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, syncerr.New(syncerr.KindFatal, err)
		}
	}

	forcedRefresh := false
	var lastErr error
	for attempt := 0; attempt < networkAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, syncerr.New(syncerr.KindNetwork, err)
		}
		if err := c.ensureAuthenticated(ctx, false); err != nil {
			return nil, err
		}

		resp, err := c.send(ctx, method, path, bodyBytes)
		if err != nil {
			lastErr = syncerr.New(syncerr.KindNetwork, err)
			if attempt < networkAttempts-1 {
				if waitErr := sleepBackoff(ctx, attempt); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, lastErr
		}

		switch resp.status {
		case http.StatusUnauthorized:
			if forcedRefresh {
				return nil, syncerr.Auth("service_A.refresh_token", fmt.Errorf("authentication rejected after refresh"))
			}
			forcedRefresh = true
			if err := c.ensureAuthenticated(ctx, true); err != nil {
				return nil, err
			}
			continue
		case http.StatusTooManyRequests:
			rateErr := fmt.Errorf("service A rate limited: status 429")
			lastErr = syncerr.New(syncerr.KindRateLimit, rateErr)
			shouldRetry, wait := c.limiter.HandleError(rateErr)
			if !shouldRetry {
				return nil, lastErr
			}
			if header := retryAfter(resp.headers, -1); header >= 0 {
				wait = header
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		if resp.status >= 500 {
			lastErr = syncerr.New(syncerr.KindNetwork, fmt.Errorf("server error: status %d", resp.status))
			if attempt < networkAttempts-1 {
				if waitErr := sleepBackoff(ctx, attempt); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, lastErr
		}
		if resp.status >= 400 {
			return nil, syncerr.Newf(syncerr.KindFatal, "service A request failed: status %d", resp.status)
		}
		c.limiter.Success()
		return resp.body, nil
	}
	return nil, lastErr
}

type httpResponse struct {
	status  int
	headers http.Header
	body    []byte
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*httpResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &httpResponse{status: resp.StatusCode, headers: resp.Header, body: respBody}, nil
}

func sleepBackoff(ctx context.Context, attempt int) error {
	wait := time.Duration(1<<uint(attempt)) * time.Second
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

var _ remote.Client = (*Client)(nil)

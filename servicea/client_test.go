package servicea

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liketrack/likesyncd/ratelimit"
)

// fastLimiter gives tests a rate limiter that doesn't make them wait
// out service A's real pacing/backoff windows.
func fastLimiter() *ratelimit.RateLimiter {
	return ratelimit.NewRateLimiter(&ratelimit.Config{
		APIDelay:          time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          20 * time.Millisecond,
		MaxAttempts:       5,
	})
}

func newTestClient(baseURL, tokenURL string) *Client {
	return &Client{
		cfg: Config{
			BaseURL:      baseURL,
			TokenURL:     tokenURL,
			ClientID:     "id",
			ClientSecret: "secret",
			RefreshToken: "refresh",
		},
		httpClient: &http.Client{Timeout: 5 * time.Second},
		limiter:    fastLimiter(),
	}
}

func tokenHandler(expires int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-" + time.Now().Format("150405.000000"),
			"expires_in":   expires,
		})
	}
}

func TestClient_EnsureAuthenticated_FetchesTokenOnFirstUse(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		tokenHandler(3600)(w, r)
	})
	mux.HandleFunc("/v1/me/liked", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(likedPage{})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(server.URL, server.URL+"/token")
	_, err := c.FetchLiked(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokenCalls.Load())

	// A second call within the token's lifetime must not refresh again.
	_, err = c.FetchLiked(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokenCalls.Load())
}

func TestClient_EnsureAuthenticated_RefreshesNearExpiry(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		tokenHandler(1)(w, r) // expires almost immediately, within tokenRefreshSlack
	})
	mux.HandleFunc("/v1/me/liked", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(likedPage{})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(server.URL, server.URL+"/token")
	_, err := c.FetchLiked(context.Background(), nil)
	require.NoError(t, err)
	_, err = c.FetchLiked(context.Background(), nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, tokenCalls.Load(), int32(2))
}

func TestClient_EnsureAuthenticated_RefreshFailureIsAuthError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(server.URL, server.URL+"/token")
	_, err := c.FetchLiked(context.Background(), nil)
	require.Error(t, err)
}

func TestClient_DoRequest_RetriesOnceAfter401ThenSucceeds(t *testing.T) {
	var tokenCalls atomic.Int32
	var unauthorizedServed atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		tokenHandler(3600)(w, r)
	})
	mux.HandleFunc("/v1/me/liked", func(w http.ResponseWriter, r *http.Request) {
		if unauthorizedServed.CompareAndSwap(false, true) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(likedPage{})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(server.URL, server.URL+"/token")
	_, err := c.FetchLiked(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), tokenCalls.Load(), "expected one initial token fetch plus one forced refresh")
}

func TestClient_DoRequest_SecondConsecutive401IsFatalAuthError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(3600))
	mux.HandleFunc("/v1/me/liked", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(server.URL, server.URL+"/token")
	_, err := c.FetchLiked(context.Background(), nil)
	require.Error(t, err)
}

func TestClient_DoRequest_429HonoursRetryAfterHeaderThenSucceeds(t *testing.T) {
	var attempt atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(3600))
	mux.HandleFunc("/v1/me/liked", func(w http.ResponseWriter, r *http.Request) {
		if attempt.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(likedPage{})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(server.URL, server.URL+"/token")
	start := time.Now()
	_, err := c.FetchLiked(context.Background(), nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "Retry-After: 0 should not fall back to the limiter's own backoff")
	assert.Equal(t, int32(2), attempt.Load())
}

func TestClient_DoRequest_NetworkErrorRetriesUpToNetworkAttempts(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(3600))
	mux.HandleFunc("/v1/me/liked", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(server.URL, server.URL+"/token")
	_, err := c.FetchLiked(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, int32(networkAttempts), calls.Load())
}

func TestClient_DoRequest_NonRetryable4xxFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(3600))
	mux.HandleFunc("/v1/me/liked", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(server.URL, server.URL+"/token")
	_, err := c.FetchLiked(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_LikeAndUnlike_BatchAtBatchSize(t *testing.T) {
	var batchLens []int
	var methods []string
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(3600))
	mux.HandleFunc("/v1/me/liked", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs []string `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		batchLens = append(batchLens, len(body.IDs))
		methods = append(methods, r.Method)
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ids := make([]string, batchSize+1)
	for i := range ids {
		ids[i] = "id"
	}

	c := newTestClient(server.URL, server.URL+"/token")
	require.NoError(t, c.Like(context.Background(), ids))
	require.Len(t, batchLens, 2)
	assert.Equal(t, batchSize, batchLens[0])
	assert.Equal(t, 1, batchLens[1])
	assert.Equal(t, http.MethodPut, methods[0])

	batchLens, methods = nil, nil
	require.NoError(t, c.Unlike(context.Background(), ids))
	assert.Equal(t, http.MethodDelete, methods[0])
}

func TestClient_Search_ReturnsNilOnNoBestMatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(3600))
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(server.URL, server.URL+"/token")
	track, err := c.Search(context.Background(), "Artist", "Title")
	require.NoError(t, err)
	assert.Nil(t, track)
}

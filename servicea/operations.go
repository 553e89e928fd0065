package servicea

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/liketrack/likesyncd/remote"
	"github.com/liketrack/likesyncd/store"
)

type likedPage struct {
	Items []struct {
		ID        string `json:"id"`
		Artist    string `json:"artist"`
		Title     string `json:"title"`
		AddedAt   string `json:"added_at"`
		DurationMs *int  `json:"duration_ms"`
	} `json:"items"`
	NextOffset *int `json:"next_offset"`
}

// FetchLiked lists the liked set newest-first, paging until the server
// stops reporting a next_offset or, when since is given, until a page
// yields a track added strictly before since.
func (c *Client) FetchLiked(ctx context.Context, since *time.Time) ([]remote.Track, error) {
	var out []remote.Track
	offset := 0
	for {
		path := fmt.Sprintf("/v1/me/liked?limit=100&offset=%d", offset)
		raw, err := c.doRequest(ctx, "GET", path, nil)
		if err != nil {
			return nil, err
		}
		var page likedPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, err
		}

		stop := false
		for _, item := range page.Items {
			var addedAt *time.Time
			if item.AddedAt != "" {
				if t, err := time.Parse(time.RFC3339, item.AddedAt); err == nil {
					addedAt = &t
				}
			}
			if since != nil && addedAt != nil && addedAt.Before(*since) {
				stop = true
				break
			}
			out = append(out, remote.Track{
				Service:    store.ServiceA,
				RemoteID:   item.ID,
				Artist:     item.Artist,
				Title:      item.Title,
				AddedAt:    addedAt,
				DurationMs: item.DurationMs,
			})
		}
		if stop || page.NextOffset == nil {
			break
		}
		offset = *page.NextOffset
	}
	return out, nil
}

// Like marks ids as liked, batched in groups of batchSize.
func (c *Client) Like(ctx context.Context, ids []string) error {
	return c.batchWrite(ctx, "PUT", "/v1/me/liked", ids)
}

// Unlike removes ids from liked, batched in groups of batchSize.
func (c *Client) Unlike(ctx context.Context, ids []string) error {
	return c.batchWrite(ctx, "DELETE", "/v1/me/liked", ids)
}

func (c *Client) batchWrite(ctx context.Context, method, path string, ids []string) error {
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		if _, err := c.doRequest(ctx, method, path, map[string][]string{"ids": ids[start:end]}); err != nil {
			return err
		}
	}
	return nil
}

// Search returns service A's single best candidate for (artist, title),
// or nil if its search endpoint found nothing.
func (c *Client) Search(ctx context.Context, artist, title string) (*remote.Track, error) {
	path := fmt.Sprintf("/v1/search?artist=%s&title=%s", urlEscape(artist), urlEscape(title))
	raw, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Best *struct {
			ID         string `json:"id"`
			Artist     string `json:"artist"`
			Title      string `json:"title"`
			DurationMs *int   `json:"duration_ms"`
		} `json:"best"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	if result.Best == nil {
		return nil, nil
	}
	return &remote.Track{
		Service:    store.ServiceA,
		RemoteID:   result.Best.ID,
		Artist:     result.Best.Artist,
		Title:      result.Best.Title,
		DurationMs: result.Best.DurationMs,
	}, nil
}

func urlEscape(s string) string {
	return url.QueryEscape(s)
}

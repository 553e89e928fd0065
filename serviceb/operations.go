package serviceb

import (
	"context"
	"time"

	"github.com/liketrack/likesyncd/remote"
	"github.com/liketrack/likesyncd/syncerr"
)

// FetchLiked lists the liked set newest-first. since is handed to the
// SDK session as is; this method does no trimming of its own. The
// underlying SDK call is a single blocking round trip, offloaded to the
// worker pool.
func (c *Client) FetchLiked(ctx context.Context, since *time.Time) ([]remote.Track, error) {
	session, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	v, err := c.offload(ctx, func() (interface{}, error) {
		return session.FetchLiked(since)
	})
	if err != nil {
		return nil, syncerr.New(syncerr.KindNetwork, err)
	}

	libTracks := v.([]LibTrack)
	out := make([]remote.Track, 0, len(libTracks))
	for _, t := range libTracks {
		out = append(out, toRemoteTrack(t))
	}
	return out, nil
}

// Like marks ids as liked, batched in groups of batchSize; each batch
// is one offloaded blocking SDK call.
func (c *Client) Like(ctx context.Context, ids []string) error {
	return c.batchCall(ctx, ids, func(session Session, batch []string) error {
		return session.Like(batch)
	})
}

// Unlike removes ids from liked, batched in groups of batchSize.
func (c *Client) Unlike(ctx context.Context, ids []string) error {
	return c.batchCall(ctx, ids, func(session Session, batch []string) error {
		return session.Unlike(batch)
	})
}

func (c *Client) batchCall(ctx context.Context, ids []string, call func(Session, []string) error) error {
	session, err := sessionFrom(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		if _, err := c.offload(ctx, func() (interface{}, error) {
			return nil, call(session, batch)
		}); err != nil {
			return syncerr.New(syncerr.KindNetwork, err)
		}
	}
	return nil
}

// Search returns service B's single best candidate for (artist, title),
// or nil if the SDK's search found nothing.
func (c *Client) Search(ctx context.Context, artist, title string) (*remote.Track, error) {
	session, err := sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	v, err := c.offload(ctx, func() (interface{}, error) {
		return session.Search(artist, title)
	})
	if err != nil {
		return nil, syncerr.New(syncerr.KindNetwork, err)
	}
	lib, _ := v.(*LibTrack)
	if lib == nil {
		return nil, nil
	}
	track := toRemoteTrack(*lib)
	return &track, nil
}

var _ remote.Client = (*Client)(nil)

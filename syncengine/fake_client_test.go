package syncengine

import (
	"context"
	"time"

	"github.com/liketrack/likesyncd/remote"
	"github.com/liketrack/likesyncd/store"
)

// fakeClient is an in-memory remote.Client stub for exercising the
// engine's cycle logic without a real network or SDK dependency.
type fakeClient struct {
	service store.Service

	liked         []remote.Track
	searchResults map[string]remote.Track

	likeCalls   [][]string
	unlikeCalls [][]string
}

func newFakeClient(service store.Service, liked []remote.Track) *fakeClient {
	return &fakeClient{service: service, liked: liked, searchResults: map[string]remote.Track{}}
}

func (f *fakeClient) withSearchResult(artist, title string, track remote.Track) *fakeClient {
	f.searchResults[searchKey(artist, title)] = track
	return f
}

func searchKey(artist, title string) string { return artist + "\x00" + title }

func (f *fakeClient) WithSession(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeClient) FetchLiked(ctx context.Context, since *time.Time) ([]remote.Track, error) {
	if since == nil {
		return f.liked, nil
	}
	var out []remote.Track
	for _, t := range f.liked {
		if t.AddedAt == nil || !t.AddedAt.Before(*since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeClient) Like(ctx context.Context, ids []string) error {
	f.likeCalls = append(f.likeCalls, append([]string(nil), ids...))
	return nil
}

func (f *fakeClient) Unlike(ctx context.Context, ids []string) error {
	f.unlikeCalls = append(f.unlikeCalls, append([]string(nil), ids...))
	return nil
}

func (f *fakeClient) Search(ctx context.Context, artist, title string) (*remote.Track, error) {
	if t, ok := f.searchResults[searchKey(artist, title)]; ok {
		return &t, nil
	}
	return nil, nil
}

var _ remote.Client = (*fakeClient)(nil)

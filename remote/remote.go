// Package remote defines the shared contract service A and service B
// clients both implement, so the sync engine never branches on which
// wire protocol it's talking to.
package remote

import (
	"context"
	"time"

	"github.com/liketrack/likesyncd/store"
)

// Track is a track as reported by a remote service: the tag of which
// service it came from, its id there, the first credited artist, the
// title, and, when the service reports them, when it was liked and how
// long it runs.
type Track struct {
	Service    store.Service
	RemoteID   string
	Artist     string
	Title      string
	AddedAt    *time.Time
	DurationMs *int
}

// Client is the contract both service clients implement. Every method
// is cancellable via ctx and safe to retry: all operations are
// idempotent from the caller's perspective.
type Client interface {
	// WithSession acquires transport and credentials for the duration
	// of fn and releases them on every exit path, including a panic
	// unwinding through fn.
	WithSession(ctx context.Context, fn func(ctx context.Context) error) error

	// FetchLiked lists the liked set newest-first. When since is
	// non-nil, fetching stops as soon as a page yields a track whose
	// AddedAt is strictly earlier than since.
	FetchLiked(ctx context.Context, since *time.Time) ([]Track, error)

	// Like marks ids as liked. Batched internally; idempotent on ids
	// already liked.
	Like(ctx context.Context, ids []string) error

	// Unlike removes ids from liked. Batched internally; idempotent
	// when an id is already absent.
	Unlike(ctx context.Context, ids []string) error

	// Search returns the service's single best candidate for
	// (artist, title), or nil if the service found nothing.
	Search(ctx context.Context, artist, title string) (*Track, error)
}

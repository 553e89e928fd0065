// Package serviceb implements the remote.Client contract against
// service B by wrapping a synchronous client library: spec.md §4.3
// requires every blocking call to be offloaded so the scheduler's
// cooperative loop stays responsive, and §9's design notes call this
// out explicitly as "treat the wrapper as an async adapter, not a
// re-implementation" — so Library itself stays a plain blocking
// interface and Client is the only place concurrency is introduced.
package serviceb

import (
	"context"
	"time"

	"github.com/liketrack/likesyncd/remote"
	"github.com/liketrack/likesyncd/store"
	"github.com/liketrack/likesyncd/syncerr"
)

const batchSize = 100

// LibTrack is one track as the underlying synchronous library reports
// it, before translation to remote.Track.
type LibTrack struct {
	ID         string     `json:"id"`
	Artist     string     `json:"artist"`
	Title      string     `json:"title"`
	AddedAt    *time.Time `json:"added_at,omitempty"`
	DurationMs *int       `json:"duration_ms,omitempty"`
}

// Session is a logged-in handle from the synchronous library. All
// methods block the calling goroutine.
type Session interface {
	FetchLiked(since *time.Time) ([]LibTrack, error)
	Like(ids []string) error
	Unlike(ids []string) error
	Search(artist, title string) (*LibTrack, error)
	Close()
}

// Library is the synchronous SDK's entry point: trading a token for a
// Session is itself a blocking call, and its failure is always an auth
// error per spec.md §4.3 ("failures surface as a single auth-error
// kind on session acquisition").
type Library interface {
	Login(token string) (Session, error)
}

// Client adapts a blocking Library into the async remote.Client
// contract by running every call on a bounded worker pool so the
// scheduler's single-threaded loop never blocks on service B's SDK.
type Client struct {
	lib   Library
	token string
	pool  chan struct{}
}

// poolSize bounds how many service-B SDK calls may be in flight at
// once; it exists only to cap goroutine fan-out, not to pace requests
// (the SDK has no server-side rate limit contract we're told about).
const poolSize = 4

// New builds a service B client around lib, authenticated with token.
func New(lib Library, token string) *Client {
	return &Client{lib: lib, token: token, pool: make(chan struct{}, poolSize)}
}

// WithSession logs in (blocking, offloaded to the pool), runs fn with
// the session reachable through ctx-scoped closures, and always closes
// the session afterward, even if fn panics.
func (c *Client) WithSession(ctx context.Context, fn func(ctx context.Context) error) error {
	sessionV, err := c.offload(ctx, func() (interface{}, error) {
		return c.lib.Login(c.token)
	})
	if err != nil {
		return syncerr.Auth("service_B.token", err)
	}
	session := sessionV.(Session)
	defer session.Close()

	return fn(withSession(ctx, session))
}

// offload runs fn on a pool goroutine and returns its result, or
// ctx.Err() if ctx is cancelled first. fn's own goroutine is allowed
// to finish in the background; its result is simply discarded in that
// case, matching a synchronous SDK's lack of cancellation support.
func (c *Client) offload(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case c.pool <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.pool }()

	type result struct {
		v   interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type sessionKey struct{}

func withSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// sessionFrom retrieves the Session WithSession installed on ctx. Every
// remote.Client method below must run inside the fn passed to
// WithSession, exactly as scoped_session's "acquires transport +
// credentials; released on scope exit" is specified in spec.md §4.3.
func sessionFrom(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	if !ok {
		return nil, syncerr.Newf(syncerr.KindFatal, "serviceb: called outside WithSession scope")
	}
	return s, nil
}

func toRemoteTrack(t LibTrack) remote.Track {
	return remote.Track{
		Service:    store.ServiceB,
		RemoteID:   t.ID,
		Artist:     t.Artist,
		Title:      t.Title,
		AddedAt:    t.AddedAt,
		DurationMs: t.DurationMs,
	}
}

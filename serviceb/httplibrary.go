package serviceb

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPLibrary is the reference Library implementation: a blocking,
// synchronous wrapper over service B's REST API built on
// github.com/go-resty/resty, grounded on
// kirbs-btw-spotify-playlist-dataset's own client-credentials-then-
// Get/Post resty usage. Every method here blocks the calling
// goroutine by design — Client.offload is what keeps the scheduler's
// loop unblocked, not this type.
type HTTPLibrary struct {
	BaseURL string
}

// NewHTTPLibrary builds the reference Library against baseURL.
func NewHTTPLibrary(baseURL string) *HTTPLibrary {
	return &HTTPLibrary{BaseURL: baseURL}
}

// Login trades token for an httpSession. Service B's contract treats
// this exchange as the sole point of failure for auth errors (spec.md
// §4.3): any non-2xx response here is reported, uniformly, as an auth
// failure rather than distinguishing network/HTTP error kinds the way
// service A's finer-grained retry policy does.
func (l *HTTPLibrary) Login(token string) (Session, error) {
	client := resty.New().
		SetBaseURL(l.BaseURL).
		SetAuthToken(token).
		SetTimeout(30 * time.Second)

	resp, err := client.R().Get("/me")
	if err != nil {
		return nil, fmt.Errorf("serviceb: login request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("serviceb: login rejected: status %d", resp.StatusCode())
	}
	return &httpSession{client: client}, nil
}

// httpSession is the blocking Session a real deployment's HTTPLibrary
// hands back; every method here is a single synchronous resty call.
type httpSession struct {
	client *resty.Client
}

func (s *httpSession) FetchLiked(since *time.Time) ([]LibTrack, error) {
	req := s.client.R().SetResult(&likedPage{})
	if since != nil {
		req = req.SetQueryParam("since", since.UTC().Format(time.RFC3339))
	}
	resp, err := req.Get("/me/liked")
	if err != nil {
		return nil, fmt.Errorf("serviceb: fetch liked: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("serviceb: fetch liked: status %d", resp.StatusCode())
	}
	page, _ := resp.Result().(*likedPage)
	if page == nil {
		return nil, nil
	}
	return page.Tracks, nil
}

func (s *httpSession) Like(ids []string) error {
	resp, err := s.client.R().SetBody(map[string][]string{"ids": ids}).Put("/me/liked")
	if err != nil {
		return fmt.Errorf("serviceb: like: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("serviceb: like: status %d", resp.StatusCode())
	}
	return nil
}

func (s *httpSession) Unlike(ids []string) error {
	resp, err := s.client.R().SetBody(map[string][]string{"ids": ids}).Delete("/me/liked")
	if err != nil {
		return fmt.Errorf("serviceb: unlike: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("serviceb: unlike: status %d", resp.StatusCode())
	}
	return nil
}

func (s *httpSession) Search(artist, title string) (*LibTrack, error) {
	resp, err := s.client.R().
		SetQueryParams(map[string]string{"artist": artist, "title": title}).
		SetResult(&LibTrack{}).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("serviceb: search: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("serviceb: search: status %d", resp.StatusCode())
	}
	track, _ := resp.Result().(*LibTrack)
	if track == nil || track.ID == "" {
		return nil, nil
	}
	return track, nil
}

func (s *httpSession) Close() {}

type likedPage struct {
	Tracks []LibTrack `json:"tracks"`
}

var _ Library = (*HTTPLibrary)(nil)

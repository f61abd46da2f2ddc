package gazette

import (
	"net/http"
	"time"
)

// Listing is a single posting as scraped from the listing page.
type Listing struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Post is a persisted posting. ID is assigned by the storage backend and is
// opaque to everything else.
type Post struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Notified  bool      `json:"notified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Listing returns the scrape-level view of the post.
func (p Post) Listing() Listing {
	return Listing{Title: p.Title, URL: p.URL}
}

// FetchRequest captures everything needed to fetch the listing page.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation. Non-2xx
// statuses are reported here rather than as errors so callers can classify them.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// NewPostEvent is published once for every post a fetch cycle inserts.
type NewPostEvent struct {
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	ObservedAt time.Time `json:"observed_at"`
}

// EventKey identifies the post an event describes.
func (e NewPostEvent) EventKey() string {
	return e.URL
}

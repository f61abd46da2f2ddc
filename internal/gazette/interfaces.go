package gazette

import (
	"context"
	"io"
	"time"
)

// PostStore persists posts keyed by their URL.
type PostStore interface {
	// ListExistingURLs returns the URL of every stored post.
	ListExistingURLs(ctx context.Context) (map[string]struct{}, error)
	// InsertIfNew stores every listing whose URL was not present when the call
	// started and returns the inserted subset in input order.
	InsertIfNew(ctx context.Context, listings []Listing) ([]Listing, error)
	// ListUnnotified returns up to limit unnotified posts, newest first.
	ListUnnotified(ctx context.Context, limit int) ([]Post, error)
	// ListPosts returns up to limit posts, newest first.
	ListPosts(ctx context.Context, limit int) ([]Post, error)
	// MarkNotified flags the post as delivered and stamps its update time.
	MarkNotified(ctx context.Context, id string) error
	Close(ctx context.Context) error
}

// ListingSource produces the current set of postings.
type ListingSource interface {
	FetchPosts(ctx context.Context) ([]Listing, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Notifier delivers a text message to a chat. Failures are reported as false.
type Notifier interface {
	Send(ctx context.Context, botToken, chatID, text string) bool
}

// Publisher pushes new-post events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces storage ids.
type IDGenerator interface {
	NewID() (string, error)
}

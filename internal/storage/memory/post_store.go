// Package memory provides in-memory storage backends for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/gazette-watcher/internal/gazette"
)

type postRecord struct {
	post gazette.Post
	seq  int64
}

// PostStore keeps posts in process memory.
type PostStore struct {
	mu     sync.RWMutex
	posts  map[string]*postRecord
	seq    int64
	idGen  gazette.IDGenerator
	clock  gazette.Clock
	closed bool
}

// NewPostStore constructs a PostStore.
func NewPostStore(idGen gazette.IDGenerator, clock gazette.Clock) *PostStore {
	return &PostStore{
		posts: make(map[string]*postRecord),
		idGen: idGen,
		clock: clock,
	}
}

// ListExistingURLs returns the URL of every stored post.
func (s *PostStore) ListExistingURLs(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, gazette.ErrStorageUnavailable
	}
	return s.urlSetLocked(), nil
}

// InsertIfNew stores listings whose URL is not yet known.
func (s *PostStore) InsertIfNew(ctx context.Context, listings []gazette.Listing) ([]gazette.Listing, error) {
	existing, err := s.ListExistingURLs(ctx)
	if err != nil {
		return nil, err
	}

	inserted := make([]gazette.Listing, 0, len(listings))
	for _, l := range listings {
		if _, ok := existing[l.URL]; ok {
			continue
		}
		if err := s.insert(l); err != nil {
			return inserted, err
		}
		existing[l.URL] = struct{}{}
		inserted = append(inserted, l)
	}
	return inserted, nil
}

func (s *PostStore) insert(l gazette.Listing) error {
	id, err := s.idGen.NewID()
	if err != nil {
		return fmt.Errorf("generate post id: %w", err)
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gazette.ErrStorageUnavailable
	}
	if _, exists := s.posts[id]; exists {
		return errors.New("post id already exists")
	}
	s.seq++
	s.posts[id] = &postRecord{
		post: gazette.Post{
			ID:        id,
			Title:     l.Title,
			URL:       l.URL,
			CreatedAt: now,
			UpdatedAt: now,
		},
		seq: s.seq,
	}
	return nil
}

// ListUnnotified returns up to limit unnotified posts, newest first.
func (s *PostStore) ListUnnotified(_ context.Context, limit int) ([]gazette.Post, error) {
	return s.list(limit, func(p gazette.Post) bool { return !p.Notified })
}

// ListPosts returns up to limit posts, newest first. A non-positive limit
// returns everything.
func (s *PostStore) ListPosts(_ context.Context, limit int) ([]gazette.Post, error) {
	return s.list(limit, func(gazette.Post) bool { return true })
}

func (s *PostStore) list(limit int, keep func(gazette.Post) bool) ([]gazette.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, gazette.ErrStorageUnavailable
	}

	records := make([]*postRecord, 0, len(s.posts))
	for _, rec := range s.posts {
		if keep(rec.post) {
			records = append(records, rec)
		}
	}
	// Insertion sequence breaks ties between posts created in the same instant.
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.post.CreatedAt.Equal(b.post.CreatedAt) {
			return a.post.CreatedAt.After(b.post.CreatedAt)
		}
		return a.seq > b.seq
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	out := make([]gazette.Post, len(records))
	for i, rec := range records {
		out[i] = rec.post
	}
	return out, nil
}

// MarkNotified flags a post as delivered.
func (s *PostStore) MarkNotified(_ context.Context, id string) error {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gazette.ErrStorageUnavailable
	}
	rec, ok := s.posts[id]
	if !ok {
		return fmt.Errorf("post %q not found", id)
	}
	rec.post.Notified = true
	rec.post.UpdatedAt = now
	return nil
}

// Close marks the store unavailable.
func (s *PostStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *PostStore) urlSetLocked() map[string]struct{} {
	urls := make(map[string]struct{}, len(s.posts))
	for _, rec := range s.posts {
		urls[rec.post.URL] = struct{}{}
	}
	return urls
}

// Package mongo persists posts in a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/gazette-watcher/internal/gazette"
)

// DefaultCollection is the collection posts are written to when none is configured.
const DefaultCollection = "gazettepost"

// Config controls the MongoDB connection.
type Config struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

type postDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Title     string             `bson:"title"`
	URL       string             `bson:"url"`
	Notified  bool               `bson:"notified"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func (d postDocument) toPost() gazette.Post {
	return gazette.Post{
		ID:        d.ID.Hex(),
		Title:     d.Title,
		URL:       d.URL,
		Notified:  d.Notified,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// PostStore implements gazette.PostStore on a MongoDB collection.
type PostStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	clock  gazette.Clock
}

// NewPostStore connects to MongoDB, verifies the connection, and ensures the
// collection indexes exist.
func NewPostStore(ctx context.Context, cfg Config, clock gazette.Clock) (*PostStore, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("storage.mongo.uri is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, fmt.Errorf("storage.mongo.database is required")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := NewPostStoreWithCollection(client.Database(cfg.Database).Collection(collection), clock)
	store.client = client
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// NewPostStoreWithCollection wraps an existing collection. The caller keeps
// ownership of the underlying client.
func NewPostStoreWithCollection(coll *mongo.Collection, clock gazette.Clock) *PostStore {
	return &PostStore{coll: coll, clock: clock}
}

// EnsureIndexes creates the unique url index and the created_at sort index.
func (s *PostStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "url", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("url_unique"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("created_at_desc"),
		},
	})
	if err != nil {
		return unavailable("ensure indexes", err)
	}
	return nil
}

// ListExistingURLs returns the URL of every stored post.
func (s *PostStore) ListExistingURLs(ctx context.Context) (map[string]struct{}, error) {
	opts := options.Find().SetProjection(bson.D{{Key: "url", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, unavailable("list urls", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	urls := make(map[string]struct{})
	for cur.Next(ctx) {
		var doc struct {
			URL string `bson:"url"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode url: %w", err)
		}
		urls[doc.URL] = struct{}{}
	}
	if err := cur.Err(); err != nil {
		return nil, unavailable("list urls", err)
	}
	return urls, nil
}

// InsertIfNew stores listings whose URL is not yet known. A duplicate-key
// rejection from the unique index counts as already present.
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
		now := s.clock.Now()
		doc := postDocument{
			ID:        primitive.NewObjectID(),
			Title:     l.Title,
			URL:       l.URL,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := s.coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				existing[l.URL] = struct{}{}
				continue
			}
			return inserted, unavailable("insert post", err)
		}
		existing[l.URL] = struct{}{}
		inserted = append(inserted, l)
	}
	return inserted, nil
}

// ListUnnotified returns up to limit unnotified posts, newest first.
func (s *PostStore) ListUnnotified(ctx context.Context, limit int) ([]gazette.Post, error) {
	return s.find(ctx, bson.D{{Key: "notified", Value: false}}, limit)
}

// ListPosts returns up to limit posts, newest first.
func (s *PostStore) ListPosts(ctx context.Context, limit int) ([]gazette.Post, error) {
	return s.find(ctx, bson.D{}, limit)
}

func (s *PostStore) find(ctx context.Context, filter bson.D, limit int) ([]gazette.Post, error) {
	// ObjectIDs grow monotonically, so _id breaks created_at ties by insertion order.
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable("find posts", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	posts := make([]gazette.Post, 0)
	for cur.Next(ctx) {
		var doc postDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		posts = append(posts, doc.toPost())
	}
	if err := cur.Err(); err != nil {
		return nil, unavailable("find posts", err)
	}
	return posts, nil
}

// MarkNotified flags a post as delivered.
func (s *PostStore) MarkNotified(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid post id %q: %w", id, err)
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "notified", Value: true},
		{Key: "updated_at", Value: s.clock.Now()},
	}}}
	res, err := s.coll.UpdateByID(ctx, oid, update)
	if err != nil {
		return unavailable("mark notified", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("post %q not found", id)
	}
	return nil
}

// Close disconnects the client when the store dialed it.
func (s *PostStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, gazette.ErrStorageUnavailable, err)
}

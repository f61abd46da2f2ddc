// Package watcher composes the gazette client, post store, notifier and
// publisher into the fetch, notify and list use cases shared by the HTTP API,
// the scheduler and the CLI.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watcher/internal/gazette"
	"github.com/JakeFAU/gazette-watcher/internal/metrics"
)

const (
	// DefaultNotifyBatchSize caps how many posts one Notify call considers.
	DefaultNotifyBatchSize = 20
	// DefaultTitle replaces empty post titles in outbound messages.
	DefaultTitle = "New Gazette Post"
)

// Config controls Watcher behavior.
type Config struct {
	NotifyBatchSize int
	// Topic receives a NewPostEvent per inserted post. Empty lets the
	// publisher pick its default topic.
	Topic string
}

// Credentials identify the bot and chat a Notify call delivers to.
type Credentials struct {
	BotToken string
	ChatID   string
}

// FetchResult summarizes one fetch cycle.
type FetchResult struct {
	Fetched  int               `json:"fetched"`
	New      int               `json:"new"`
	NewPosts []gazette.Listing `json:"new_posts"`
}

// Watcher runs the gazette use cases.
type Watcher struct {
	source    gazette.ListingSource
	store     gazette.PostStore
	notifier  gazette.Notifier
	publisher gazette.Publisher
	clock     gazette.Clock
	cfg       Config
	logger    *zap.Logger

	fetchMu  sync.Mutex
	notifyMu sync.Mutex
}

// New constructs a Watcher. store may be nil, in which case every operation
// that touches storage fails with gazette.ErrStorageUnavailable. publisher may
// be nil to skip event publishing.
func New(
	source gazette.ListingSource,
	store gazette.PostStore,
	notifier gazette.Notifier,
	publisher gazette.Publisher,
	clock gazette.Clock,
	cfg Config,
	logger *zap.Logger,
) *Watcher {
	if cfg.NotifyBatchSize <= 0 {
		cfg.NotifyBatchSize = DefaultNotifyBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		source:    source,
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// FetchAndStore scrapes the listing page and persists every posting whose
// URL is not stored yet. Cycles are serialized so two triggers never race
// between reading the known URLs and inserting.
func (w *Watcher) FetchAndStore(ctx context.Context, trigger string) (FetchResult, error) {
	w.fetchMu.Lock()
	defer w.fetchMu.Unlock()

	start := time.Now()
	res, err := w.fetchAndStore(ctx)
	metrics.ObserveFetchCycle(trigger, cycleOutcome(err), time.Since(start))
	if err != nil {
		return FetchResult{}, err
	}
	w.logger.Info("fetch cycle complete",
		zap.String("trigger", trigger),
		zap.Int("fetched", res.Fetched),
		zap.Int("new", res.New),
	)
	return res, nil
}

func (w *Watcher) fetchAndStore(ctx context.Context) (FetchResult, error) {
	listings, err := w.source.FetchPosts(ctx)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch posts: %w", err)
	}
	if w.store == nil {
		return FetchResult{}, gazette.ErrStorageUnavailable
	}
	inserted, err := w.store.InsertIfNew(ctx, listings)
	if err != nil {
		return FetchResult{}, fmt.Errorf("store posts: %w", err)
	}
	if inserted == nil {
		inserted = []gazette.Listing{}
	}
	metrics.ObservePostsStored(len(inserted))
	w.publishNew(ctx, inserted)

	return FetchResult{
		Fetched:  len(listings),
		New:      len(inserted),
		NewPosts: inserted,
	}, nil
}

func (w *Watcher) publishNew(ctx context.Context, inserted []gazette.Listing) {
	if w.publisher == nil || len(inserted) == 0 {
		return
	}
	observed := w.clock.Now()
	for _, l := range inserted {
		event := gazette.NewPostEvent{Title: l.Title, URL: l.URL, ObservedAt: observed}
		if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
			w.logger.Warn("publish new post event failed", zap.String("url", l.URL), zap.Error(err))
		}
	}
}

// Notify relays up to the configured batch of unnotified posts, oldest
// first, and stops at the first delivery failure. It returns how many posts
// were delivered and marked.
func (w *Watcher) Notify(ctx context.Context, creds Credentials) (int, error) {
	if w.store == nil {
		return 0, gazette.ErrStorageUnavailable
	}
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	posts, err := w.store.ListUnnotified(ctx, w.cfg.NotifyBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list unnotified: %w", err)
	}

	sent := 0
	// The store returns newest first; deliver in publication order.
	for i := len(posts) - 1; i >= 0; i-- {
		p := posts[i]
		if !w.notifier.Send(ctx, creds.BotToken, creds.ChatID, MessageText(p)) {
			w.logger.Warn("notification failed, stopping batch",
				zap.String("url", p.URL),
				zap.Int("sent", sent),
			)
			break
		}
		if err := w.store.MarkNotified(ctx, p.ID); err != nil {
			return sent, fmt.Errorf("mark notified: %w", err)
		}
		sent++
	}
	w.logger.Info("notify complete", zap.Int("candidates", len(posts)), zap.Int("sent", sent))
	return sent, nil
}

// ListPosts returns up to limit stored posts, newest first.
func (w *Watcher) ListPosts(ctx context.Context, limit int) ([]gazette.Post, error) {
	if w.store == nil {
		return nil, gazette.ErrStorageUnavailable
	}
	posts, err := w.store.ListPosts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// MessageText renders the notification body for a post.
func MessageText(p gazette.Post) string {
	title := p.Title
	if title == "" {
		title = DefaultTitle
	}
	return title + "\n" + p.URL
}

func cycleOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, gazette.ErrRemoteService):
		return metrics.OutcomeRemoteError
	case errors.Is(err, gazette.ErrStorageUnavailable):
		return metrics.OutcomeStoreError
	default:
		return metrics.OutcomeError
	}
}

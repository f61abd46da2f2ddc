package watcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watcher/internal/clock/system"
	collyfetcher "github.com/JakeFAU/gazette-watcher/internal/fetcher/colly"
	"github.com/JakeFAU/gazette-watcher/internal/gazette"
	"github.com/JakeFAU/gazette-watcher/internal/id/uuid"
	"github.com/JakeFAU/gazette-watcher/internal/metrics"
	memorypublisher "github.com/JakeFAU/gazette-watcher/internal/publisher/memory"
	"github.com/JakeFAU/gazette-watcher/internal/storage/memory"
)

type fakeSource struct {
	mu       sync.Mutex
	listings []gazette.Listing
	err      error
	calls    int
}

func (f *fakeSource) FetchPosts(context.Context) ([]gazette.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]gazette.Listing(nil), f.listings...), nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	texts  []string
	failAt int // 1-based send index that fails; 0 never fails
}

func (f *fakeNotifier) Send(_ context.Context, _, _, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.texts)+1 == f.failAt {
		return false
	}
	f.texts = append(f.texts, text)
	return true
}

func listings(n int) []gazette.Listing {
	out := make([]gazette.Listing, n)
	for i := range out {
		out[i] = gazette.Listing{
			Title: fmt.Sprintf("Post %d", i+1),
			URL:   fmt.Sprintf("https://gazette.gov.mv/iulaan/view/%d", i+1),
		}
	}
	return out
}

func newWatcher(t *testing.T, src gazette.ListingSource, n gazette.Notifier) (*Watcher, *memory.PostStore, *memorypublisher.Publisher) {
	t.Helper()
	store := memory.NewPostStore(uuid.New(), system.New())
	pub := memorypublisher.New()
	w := New(src, store, n, pub, system.New(), Config{Topic: "gazette-posts"}, zap.NewNop())
	return w, store, pub
}

func TestFetchAndStoreIsIdempotent(t *testing.T) {
	t.Parallel()

	src := &fakeSource{listings: listings(2)}
	w, _, pub := newWatcher(t, src, &fakeNotifier{})

	first, err := w.FetchAndStore(context.Background(), metrics.TriggerAPI)
	require.NoError(t, err)
	require.Equal(t, 2, first.Fetched)
	require.Equal(t, 2, first.New)
	require.Equal(t, src.listings, first.NewPosts)

	second, err := w.FetchAndStore(context.Background(), metrics.TriggerAPI)
	require.NoError(t, err)
	require.Equal(t, 2, second.Fetched)
	require.Equal(t, 0, second.New)
	require.NotNil(t, second.NewPosts)
	require.Empty(t, second.NewPosts)

	events := pub.Topic("gazette-posts")
	require.Len(t, events, 2)
	ev, ok := events[0].(gazette.NewPostEvent)
	require.True(t, ok)
	require.Equal(t, "https://gazette.gov.mv/iulaan/view/1", ev.URL)
}

func TestFetchAndStoreOnlyInsertsUnseen(t *testing.T) {
	t.Parallel()

	src := &fakeSource{listings: listings(1)}
	w, _, _ := newWatcher(t, src, &fakeNotifier{})
	_, err := w.FetchAndStore(context.Background(), metrics.TriggerScheduler)
	require.NoError(t, err)

	src.listings = listings(3)
	res, err := w.FetchAndStore(context.Background(), metrics.TriggerScheduler)
	require.NoError(t, err)
	require.Equal(t, 3, res.Fetched)
	require.Equal(t, listings(3)[1:], res.NewPosts)
}

func TestFetchAndStoreRemoteError(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: &gazette.RemoteServiceError{StatusCode: http.StatusServiceUnavailable}}
	w, store, _ := newWatcher(t, src, &fakeNotifier{})

	_, err := w.FetchAndStore(context.Background(), metrics.TriggerAPI)
	require.ErrorIs(t, err, gazette.ErrRemoteService)

	posts, err := store.ListPosts(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, posts)
}

func TestOperationsWithoutStore(t *testing.T) {
	t.Parallel()

	src := &fakeSource{listings: listings(1)}
	w := New(src, nil, &fakeNotifier{}, nil, system.New(), Config{}, nil)

	_, err := w.FetchAndStore(context.Background(), metrics.TriggerAPI)
	require.ErrorIs(t, err, gazette.ErrStorageUnavailable)
	require.Equal(t, 1, src.calls)

	_, err = w.Notify(context.Background(), Credentials{BotToken: "t", ChatID: "c"})
	require.ErrorIs(t, err, gazette.ErrStorageUnavailable)

	_, err = w.ListPosts(context.Background(), 10)
	require.ErrorIs(t, err, gazette.ErrStorageUnavailable)
}

func TestNotifySendsOldestFirstAndMarks(t *testing.T) {
	t.Parallel()

	src := &fakeSource{listings: listings(3)}
	n := &fakeNotifier{}
	w, store, _ := newWatcher(t, src, n)
	_, err := w.FetchAndStore(context.Background(), metrics.TriggerAPI)
	require.NoError(t, err)

	sent, err := w.Notify(context.Background(), Credentials{BotToken: "t", ChatID: "c"})
	require.NoError(t, err)
	require.Equal(t, 3, sent)
	require.Equal(t, []string{
		"Post 1\nhttps://gazette.gov.mv/iulaan/view/1",
		"Post 2\nhttps://gazette.gov.mv/iulaan/view/2",
		"Post 3\nhttps://gazette.gov.mv/iulaan/view/3",
	}, n.texts)

	pending, err := store.ListUnnotified(context.Background(), 20)
	require.NoError(t, err)
	require.Empty(t, pending)

	again, err := w.Notify(context.Background(), Credentials{BotToken: "t", ChatID: "c"})
	require.NoError(t, err)
	require.Zero(t, again)
}

func TestNotifyStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	src := &fakeSource{listings: listings(3)}
	n := &fakeNotifier{failAt: 2}
	w, store, _ := newWatcher(t, src, n)
	_, err := w.FetchAndStore(context.Background(), metrics.TriggerAPI)
	require.NoError(t, err)

	sent, err := w.Notify(context.Background(), Credentials{BotToken: "t", ChatID: "c"})
	require.NoError(t, err)
	require.Equal(t, 1, sent)

	pending, err := store.ListUnnotified(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, p := range pending {
		require.NotEqual(t, "https://gazette.gov.mv/iulaan/view/1", p.URL)
	}
}

func TestNotifyHonorsBatchSize(t *testing.T) {
	t.Parallel()

	src := &fakeSource{listings: listings(25)}
	n := &fakeNotifier{}
	w, _, _ := newWatcher(t, src, n)
	_, err := w.FetchAndStore(context.Background(), metrics.TriggerAPI)
	require.NoError(t, err)

	sent, err := w.Notify(context.Background(), Credentials{BotToken: "t", ChatID: "c"})
	require.NoError(t, err)
	require.Equal(t, DefaultNotifyBatchSize, sent)
	// The 20 newest are picked, then delivered oldest first.
	require.Equal(t, "Post 6\nhttps://gazette.gov.mv/iulaan/view/6", n.texts[0])
	require.Equal(t, "Post 25\nhttps://gazette.gov.mv/iulaan/view/25", n.texts[19])
}

func TestMessageTextFallsBackOnEmptyTitle(t *testing.T) {
	t.Parallel()

	require.Equal(t, "New Gazette Post\nhttps://x/iulaan/view/1",
		MessageText(gazette.Post{URL: "https://x/iulaan/view/1"}))
	require.Equal(t, "Notice\nhttps://x/iulaan/view/2",
		MessageText(gazette.Post{Title: "Notice", URL: "https://x/iulaan/view/2"}))
}

func TestCycleOutcome(t *testing.T) {
	t.Parallel()

	require.Equal(t, metrics.OutcomeSuccess, cycleOutcome(nil))
	require.Equal(t, metrics.OutcomeRemoteError, cycleOutcome(fmt.Errorf("x: %w", &gazette.RemoteServiceError{StatusCode: 500})))
	require.Equal(t, metrics.OutcomeStoreError, cycleOutcome(gazette.ErrStorageUnavailable))
	require.Equal(t, metrics.OutcomeError, cycleOutcome(errors.New("boom")))
}

const listingPage = `<html><body><ul>
<li><a href="/iulaan/view/101">Vacancy: Accountant</a></li>
<li><a href="/iulaan/view/102">Tender: Office supplies</a></li>
<li><a href="/iulaan/view/101">Vacancy: Accountant</a></li>
<li><a href="/about">About</a></li>
</ul></body></html>`

func TestEndToEndAgainstListingServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listingPage))
	}))
	t.Cleanup(srv.Close)

	fetcher := collyfetcher.New(collyfetcher.Config{UserAgent: gazette.DefaultUserAgent, Timeout: 5 * time.Second})
	client := gazette.NewClient(fetcher, gazette.ClientConfig{
		ListingURL: srv.URL + "/iulaan",
		Origin:     "https://gazette.gov.mv",
	}, zap.NewNop())
	n := &fakeNotifier{}
	w, _, _ := newWatcher(t, client, n)

	res, err := w.FetchAndStore(context.Background(), metrics.TriggerCLI)
	require.NoError(t, err)
	require.Equal(t, 2, res.Fetched)
	require.Equal(t, []gazette.Listing{
		{Title: "Vacancy: Accountant", URL: "https://gazette.gov.mv/iulaan/view/101"},
		{Title: "Tender: Office supplies", URL: "https://gazette.gov.mv/iulaan/view/102"},
	}, res.NewPosts)

	sent, err := w.Notify(context.Background(), Credentials{BotToken: "t", ChatID: "c"})
	require.NoError(t, err)
	require.Equal(t, 2, sent)
	require.Equal(t, "Vacancy: Accountant\nhttps://gazette.gov.mv/iulaan/view/101", n.texts[0])

	posts, err := w.ListPosts(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, "https://gazette.gov.mv/iulaan/view/102", posts[0].URL)
	require.True(t, posts[0].Notified)
}

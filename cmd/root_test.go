package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watcher/internal/clock/system"
	"github.com/JakeFAU/gazette-watcher/internal/gazette"
	"github.com/JakeFAU/gazette-watcher/internal/id/uuid"
	"github.com/JakeFAU/gazette-watcher/internal/storage/memory"
	"github.com/JakeFAU/gazette-watcher/internal/watcher"
)

type staticSource []gazette.Listing

func (s staticSource) FetchPosts(context.Context) ([]gazette.Listing, error) {
	return s, nil
}

type okNotifier struct{ texts []string }

func (n *okNotifier) Send(_ context.Context, _, _, text string) bool {
	n.texts = append(n.texts, text)
	return true
}

type fakeApp struct {
	w      *watcher.Watcher
	ran    bool
	closed bool
}

func (a *fakeApp) Run(context.Context) error { a.ran = true; return nil }
func (a *fakeApp) Close(context.Context) error { a.closed = true; return nil }
func (a *fakeApp) Logger() *zap.Logger { return zap.NewNop() }
func (a *fakeApp) Watcher() *watcher.Watcher { return a.w }

func useFakeApp(t *testing.T, n gazette.Notifier) *fakeApp {
	t.Helper()
	src := staticSource{
		{Title: "Vacancy", URL: "https://gazette.gov.mv/iulaan/view/1"},
		{Title: "Tender", URL: "https://gazette.gov.mv/iulaan/view/2"},
	}
	store := memory.NewPostStore(uuid.New(), system.New())
	app := &fakeApp{w: watcher.New(src, store, n, nil, system.New(), watcher.Config{}, nil)}

	orig := newApp
	newApp = func(context.Context, string) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = orig })
	return app
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFetchCommandPrintsResult(t *testing.T) {
	app := useFakeApp(t, &okNotifier{})

	out, err := run(t, "fetch")
	require.NoError(t, err)

	var res watcher.FetchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, 2, res.Fetched)
	require.Equal(t, 2, res.New)
	require.True(t, app.closed)
}

func TestNotifyCommand(t *testing.T) {
	n := &okNotifier{}
	app := useFakeApp(t, n)
	_, err := app.w.FetchAndStore(context.Background(), "test")
	require.NoError(t, err)

	out, err := run(t, "notify", "--bot-token", "t", "--chat-id", "c")
	require.NoError(t, err)
	require.Equal(t, "sent 2\n", out)
	require.Equal(t, "Vacancy\nhttps://gazette.gov.mv/iulaan/view/1", n.texts[0])
}

func TestNotifyCommandRequiresCredentials(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	useFakeApp(t, &okNotifier{})

	_, err := run(t, "notify", "--bot-token", "t")
	require.Error(t, err)
}

func TestServeCommandRunsApp(t *testing.T) {
	app := useFakeApp(t, &okNotifier{})

	_, err := run(t, "serve")
	require.NoError(t, err)
	require.True(t, app.ran)
}

func TestAppFactoryError(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("bad config") }
	t.Cleanup(func() { newApp = orig })

	_, err := run(t, "fetch")
	require.ErrorContains(t, err, "bad config")
}

func TestNotifyCommandReadsEnvFile(t *testing.T) {
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	envFile := filepath.Join(t.TempDir(), "watch.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TELEGRAM_BOT_TOKEN=from-file\nTELEGRAM_CHAT_ID=42\n"), 0o600))

	n := &okNotifier{}
	app := useFakeApp(t, n)
	_, err := app.w.FetchAndStore(context.Background(), "test")
	require.NoError(t, err)

	out, err := run(t, "notify", "--env-file", envFile)
	require.NoError(t, err)
	require.Equal(t, "sent 2\n", out)
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	useFakeApp(t, &okNotifier{})

	_, err := run(t, "fetch", "--env-file", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

package gcs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{Bucket: "  "})
	require.Error(t, err)
}

func TestPutObjectUploadsSnapshot(t *testing.T) {
	t.Parallel()

	var uploads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/b/gazette-bucket/o")
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "<html>listing</html>")
		uploads.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"snapshots/2024/03/09/abc.html","bucket":"gazette-bucket"}`))
	}))
	t.Cleanup(server.Close)

	store, err := NewWithOptions(context.Background(), Config{Bucket: "gazette-bucket"},
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
		option.WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	uri, err := store.PutObject(context.Background(), "snapshots/2024/03/09/abc.html", "text/html",
		strings.NewReader("<html>listing</html>"))
	require.NoError(t, err)
	require.Equal(t, "gs://gazette-bucket/snapshots/2024/03/09/abc.html", uri)
	require.EqualValues(t, 1, uploads.Load())
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := NewWithOptions(context.Background(), Config{Bucket: "gazette-bucket"}, option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.PutObject(context.Background(), " ", "text/html", strings.NewReader("x"))
	require.Error(t, err)
}

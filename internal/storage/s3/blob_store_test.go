package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Region: "us-east-1"})
	require.Error(t, err)
}

func TestPutObjectUploadsSnapshot(t *testing.T) {
	t.Parallel()

	var uploads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/gazette-bucket/snapshots/2024/03/09/abc.html", r.URL.Path)
		assert.Equal(t, "text/html", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "<html>listing</html>", string(body))
		uploads.Add(1)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	store, err := New(Config{
		Bucket:    "gazette-bucket",
		Region:    "us-east-1",
		Endpoint:  server.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "snapshots/2024/03/09/abc.html", "text/html",
		strings.NewReader("<html>listing</html>"))
	require.NoError(t, err)
	require.Equal(t, "s3://gazette-bucket/snapshots/2024/03/09/abc.html", uri)
	require.EqualValues(t, 1, uploads.Load())
}

func TestPutObjectSurfacesServiceError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
	}))
	t.Cleanup(server.Close)

	store, err := New(Config{
		Bucket:    "gazette-bucket",
		Region:    "us-east-1",
		Endpoint:  server.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "snapshots/x.html", "", strings.NewReader("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "put object")
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(Config{Bucket: "gazette-bucket", Region: "us-east-1"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "", "text/html", strings.NewReader("x"))
	require.Error(t, err)
}

package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	errs "eaafetch/pkg/errors"
	"eaafetch/pkg/logger"
	"eaafetch/pkg/ratelimit"
	"eaafetch/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(opts ...Option) *Client {
	return NewClient(5*time.Second, ratelimit.Unlimited{}, logger.NewTestLogger(), opts...)
}

func TestDocument(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`<html><body><div class="view-content"><a href="/a">A</a></div></body></html>`))
	}))
	defer server.Close()

	client := newTestClient(WithUserAgent("test-agent"))
	doc, err := client.Document(context.Background(), server.URL+"/page")
	require.NoError(t, err)

	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, 1, doc.Find(".view-content a").Length())
	require.NotNil(t, doc.Url)
	assert.Equal(t, "/page", doc.Url.Path)
}

func TestDocumentNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient().Document(context.Background(), server.URL)
	require.Error(t, err)

	var fe *errs.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errs.ErrorTypeFetch, fe.Type)
	assert.Equal(t, http.StatusNotFound, fe.Code)
}

func TestDocumentRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`<p>ok</p>`))
	}))
	defer server.Close()

	client := newTestClient(WithRetry(&retry.Config{
		MaxAttempts: 3,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
	}))

	doc, err := client.Document(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", doc.Find("p").Text())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestOpenStreamsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("zip-bytes"))
	}))
	defer server.Close()

	body, err := newTestClient().Open(context.Background(), server.URL)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))
}

func TestOpenNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestClient().Open(context.Background(), url)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeFetch))
	assert.True(t, errs.IsRetryable(err))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient().Document(ctx, "http://127.0.0.1:1/")
	assert.ErrorIs(t, err, context.Canceled)
}

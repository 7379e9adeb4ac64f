package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(maxAttempts int) *Client {
	return New(Config{
		Timeout:     20 * time.Millisecond,
		MaxAttempts: maxAttempts,
		RateLimit:   1000,
		Burst:       100,
		UserAgent:   "TestAgent/1.0",
	}, nil)
}

// stall blocks until the client gives up on the request.
func stall(r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(500 * time.Millisecond):
	}
}

func TestClient_Get(t *testing.T) {
	t.Run("gives up after exactly max attempts on timeout", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			stall(r)
		}))
		defer server.Close()

		_, err := testClient(DefaultMaxAttempts).Get(context.Background(), server.URL)

		require.Error(t, err)
		assert.True(t, isTimeout(err))
		assert.Equal(t, int32(10), attempts.Load())
	})

	t.Run("returns body as soon as an attempt succeeds", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				stall(r)
				return
			}
			w.Write([]byte(`{"title":"ok"}`))
		}))
		defer server.Close()

		body, err := testClient(DefaultMaxAttempts).Get(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, `{"title":"ok"}`, body)
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("does not retry non-2xx responses", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := testClient(DefaultMaxAttempts).Get(context.Background(), server.URL)

		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("does not retry connection errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := testClient(DefaultMaxAttempts).Get(context.Background(), url)
		require.Error(t, err)
		assert.False(t, isTimeout(err))
	})

	t.Run("sends user agent and request options", func(t *testing.T) {
		var userAgent, user, pass string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userAgent = r.Header.Get("User-Agent")
			user, pass, _ = r.BasicAuth()
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		_, err := testClient(1).Get(context.Background(), server.URL, WithBasicAuth("svc", "pw"))
		require.NoError(t, err)
		assert.Equal(t, "TestAgent/1.0", userAgent)
		assert.Equal(t, "svc", user)
		assert.Equal(t, "pw", pass)
	})
}

func TestClient_Head(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/moved":
			http.Redirect(w, r, "/missing", http.StatusFound)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	client := testClient(1)

	status, err := client.Head(context.Background(), server.URL+"/article")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	status, err = client.Head(context.Background(), server.URL+"/moved")
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, status, "redirects must not be followed")

	status, err = client.Head(context.Background(), server.URL+"/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestClient_Backoff(t *testing.T) {
	c := New(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}, nil)
	assert.Equal(t, 100*time.Millisecond, c.backoff(1))
	assert.Equal(t, 200*time.Millisecond, c.backoff(2))
	assert.Equal(t, 800*time.Millisecond, c.backoff(4))
	assert.Equal(t, time.Second, c.backoff(5))
	assert.Equal(t, time.Second, c.backoff(60))
}

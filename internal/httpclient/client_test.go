package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("creates client with default config", func(t *testing.T) {
		client := NewClient(DefaultClientConfig())

		assert.NotNil(t, client)
		assert.Equal(t, 5*time.Second, client.GetTimeout())
		assert.Equal(t, 1, client.GetMaxRetries())
	})

	t.Run("uses defaults for zero values", func(t *testing.T) {
		client := NewClient(ClientConfig{})

		assert.Equal(t, 5*time.Second, client.GetTimeout())
		assert.Equal(t, 1, client.GetMaxRetries())
	})

	t.Run("negative retries disable retrying", func(t *testing.T) {
		client := NewClient(ClientConfig{MaxRetries: -1})

		assert.Equal(t, 0, client.GetMaxRetries())
	})
}

func TestClient_Head(t *testing.T) {
	t.Run("successful HEAD request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodHead, r.Method)
			assert.Equal(t, "/abc/play_720p.mp4", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(DefaultClientConfig())
		resp, err := client.Head(context.Background(), server.URL+"/abc/play_720p.mp4", nil)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
	})

	t.Run("HEAD request with custom headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "https://guide.example", r.Header.Get("Referer"))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(DefaultClientConfig())
		_, err := client.Head(context.Background(), server.URL, map[string]string{"Referer": "https://guide.example"})

		require.NoError(t, err)
	})
}

func TestClient_Exists(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    bool
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK, want: true},
		{name: "partial content", status: http.StatusPartialContent, want: true},
		{name: "not found", status: http.StatusNotFound, want: false},
		{name: "gone", status: http.StatusGone, want: false},
		{name: "forbidden", status: http.StatusForbidden, want: false},
		{name: "bad request is an error", status: http.StatusBadRequest, want: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(ClientConfig{MaxRetries: -1})
			got, err := client.Exists(context.Background(), server.URL)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("retries server errors", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts < 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(ClientConfig{MaxRetries: 2})
		ok, err := client.Exists(context.Background(), server.URL)

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2, attempts)
	})

	t.Run("handles context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(ClientConfig{Timeout: 10 * time.Second, MaxRetries: -1})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ok, err := client.Exists(ctx, server.URL)

		require.Error(t, err)
		assert.False(t, ok)
	})
}

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "vguide/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{MaxRetries: -1})

	resp, err := client.Get(context.Background(), server.URL+"/page", nil)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", resp.String())

	resp, err = client.Get(context.Background(), server.URL+"/missing", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
}

package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiowebux/halcrud/internal/types"
)

type recorded struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// recordingServer answers through handler and keeps every request it saw
func recordingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, func() []recorded) {
	t.Helper()
	var mu sync.Mutex
	var seen []recorded

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, recorded{Method: r.Method, Path: r.URL.RequestURI(), Header: r.Header.Clone(), Body: string(body)})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return server, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recorded, len(seen))
		copy(out, seen)
		return out
	}
}

func newClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(context.Background(), Options{API: types.APIConfig{
		BaseURL: baseURL,
		Headers: map[string]string{"X-Tenant": "acme"},
	}})
	require.NoError(t, err)
	return c
}

func TestGetSendsHALHeaders(t *testing.T) {
	server, requests := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/hal+json")
		_, _ = w.Write([]byte(`{"_embedded":{"widgets":[]}}`))
	})

	c := newClient(t, server.URL)
	resp, err := c.Get(context.Background(), "/widgets")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.NotNil(t, resp.Data)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "application/hal+json, application/json", reqs[0].Header.Get("Accept"))
	assert.Equal(t, "acme", reqs[0].Header.Get("X-Tenant"))
	assert.NotEmpty(t, reqs[0].Header.Get(HeaderRequestID))
	assert.Empty(t, reqs[0].Header.Get("Content-Type"))
	assert.Empty(t, reqs[0].Header.Get("Cache-Control"))
}

func TestFetchFresh(t *testing.T) {
	t.Run("returns entity and tag without caching", func(t *testing.T) {
		server, requests := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte(`{"name":"A","_links":{"self":{"href":"/widgets/1"}}}`))
		})

		fresh, err := newClient(t, server.URL).FetchFresh(context.Background(), "/widgets/1")
		require.NoError(t, err)
		require.NotNil(t, fresh)
		assert.Equal(t, `"v1"`, fresh.ETag)
		assert.Equal(t, "A", fresh.Entity.Attr("name"))

		h := requests()[0].Header
		assert.Equal(t, "no-cache", h.Get("Cache-Control"))
		assert.Equal(t, "no-cache", h.Get("Pragma"))
	})

	t.Run("missing tag is empty", func(t *testing.T) {
		server, _ := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"name":"A"}`))
		})

		fresh, err := newClient(t, server.URL).FetchFresh(context.Background(), "/widgets/1")
		require.NoError(t, err)
		assert.Equal(t, "", fresh.ETag)
	})

	t.Run("not found is nil without error", func(t *testing.T) {
		server, _ := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})

		fresh, err := newClient(t, server.URL).FetchFresh(context.Background(), "/widgets/1")
		require.NoError(t, err)
		assert.Nil(t, fresh)
	})

	t.Run("other failures propagate", func(t *testing.T) {
		server, _ := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
		})

		fresh, err := newClient(t, server.URL).FetchFresh(context.Background(), "/widgets/1")
		assert.Nil(t, fresh)
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
		assert.Equal(t, map[string]interface{}{"error": "boom"}, apiErr.Data)
	})
}

func TestWriteWithFallback(t *testing.T) {
	t.Run("patch succeeds", func(t *testing.T) {
		server, requests := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"name":"B"}`))
		})

		resp, err := newClient(t, server.URL).WriteWithFallback(context.Background(), "/widgets/1",
			map[string]interface{}{"name": "B"}, map[string]string{HeaderIfMatch: `"v1"`})
		require.NoError(t, err)
		assert.Equal(t, http.MethodPatch, resp.Method)

		reqs := requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
		assert.Equal(t, `"v1"`, reqs[0].Header.Get(HeaderIfMatch))
	})

	t.Run("405 retries as put with same body and headers", func(t *testing.T) {
		server, requests := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPatch {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		resp, err := newClient(t, server.URL).WriteWithFallback(context.Background(), "/widgets/1",
			map[string]interface{}{"name": "B", "color": nil}, map[string]string{HeaderIfMatch: `"v1"`})
		require.NoError(t, err)
		assert.Equal(t, http.MethodPut, resp.Method)
		assert.Nil(t, resp.Payload())

		reqs := requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, http.MethodPatch, reqs[0].Method)
		assert.Equal(t, http.MethodPut, reqs[1].Method)
		assert.Equal(t, reqs[0].Body, reqs[1].Body)
		assert.Equal(t, `"v1"`, reqs[1].Header.Get(HeaderIfMatch))

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(reqs[1].Body), &body))
		assert.Contains(t, body, "color")
		assert.Nil(t, body["color"])
	})

	t.Run("other failures are not retried", func(t *testing.T) {
		server, requests := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPreconditionFailed)
		})

		_, err := newClient(t, server.URL).WriteWithFallback(context.Background(), "/widgets/1",
			map[string]interface{}{"name": "B"}, nil)
		assert.True(t, IsConflict(err))
		assert.Len(t, requests(), 1)
	})
}

func TestDeleteWithoutBody(t *testing.T) {
	server, requests := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := newClient(t, server.URL).Delete(context.Background(), "/widgets/1", map[string]string{HeaderIfMatch: `"v2"`})
	require.NoError(t, err)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodDelete, reqs[0].Method)
	assert.Empty(t, reqs[0].Body)
	assert.Empty(t, reqs[0].Header.Get("Content-Type"))
	assert.Equal(t, `"v2"`, reqs[0].Header.Get(HeaderIfMatch))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status     int
		notFound   bool
		conflict   bool
		notAllowed bool
	}{
		{http.StatusNotFound, true, false, false},
		{http.StatusConflict, false, true, false},
		{http.StatusPreconditionFailed, false, true, false},
		{http.StatusMethodNotAllowed, false, false, true},
		{http.StatusInternalServerError, false, false, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := &APIError{Method: "GET", URL: "/x", Status: tt.status, StatusText: http.StatusText(tt.status)}
			assert.Equal(t, tt.notFound, IsNotFound(err))
			assert.Equal(t, tt.conflict, IsConflict(err))
			assert.Equal(t, tt.notAllowed, IsMethodNotAllowed(err))
		})
	}

	assert.Equal(t, 0, StatusOf(io.EOF))
}

func TestResolve(t *testing.T) {
	c := newClient(t, "http://api.example.com/v1/")

	got, err := c.Resolve("/widgets/1")
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.com/widgets/1", got)

	got, err = c.Resolve("widgets?q=a")
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.com/v1/widgets?q=a", got)

	got, err = c.Resolve("https://other.example.com/widgets/2")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/widgets/2", got)
}

func TestNonJSONErrorBody(t *testing.T) {
	server, _ := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down\n"))
	})

	_, err := newClient(t, server.URL).Get(context.Background(), "/widgets")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream down", apiErr.Data)
	assert.Contains(t, apiErr.Error(), "502")
}

func TestBuildHTTPClientDefaults(t *testing.T) {
	client, err := buildHTTPClient(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, client.Timeout)

	client, err = buildHTTPClient(&types.TLSConfig{InsecureSkipVerify: true}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, client.Timeout)

	_, err = buildHTTPClient(&types.TLSConfig{CAFile: "/does/not/exist.pem"}, 0)
	assert.Error(t, err)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250))
	assert.Equal(t, "1.50s", FormatDuration(1500))
	assert.Equal(t, "512B", FormatSize(512))
	assert.Equal(t, "2.00KB", FormatSize(2048))
	assert.Equal(t, "1.00MB", FormatSize(1024*1024))
}

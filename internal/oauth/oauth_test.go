package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiowebux/halcrud/internal/types"
)

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(&types.OAuthConfig{ClientID: "id"}), types.ErrInvalidConfig)
	assert.ErrorIs(t, Validate(&types.OAuthConfig{TokenURL: "http://x/token"}), types.ErrInvalidConfig)
	assert.NoError(t, Validate(&types.OAuthConfig{TokenURL: "http://x/token", ClientID: "id"}))
}

func TestClientAddsBearerToken(t *testing.T) {
	var tokenCalls int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	client, err := Client(context.Background(), &types.OAuthConfig{
		TokenURL:     tokenServer.URL,
		ClientID:     "halcrud",
		ClientSecret: "secret",
		Scopes:       []string{"widgets"},
	}, &http.Client{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(api.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

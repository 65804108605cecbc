// Package oauth authenticates API calls with the OAuth 2.0 client-credentials grant.
package oauth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/studiowebux/halcrud/internal/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Validate checks that cfg carries what the token endpoint needs
func Validate(cfg *types.OAuthConfig) error {
	if cfg.TokenURL == "" {
		return fmt.Errorf("%w: oauth tokenUrl is required", types.ErrInvalidConfig)
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("%w: oauth clientId is required", types.ErrInvalidConfig)
	}
	return nil
}

// Client wraps base so that every request carries a bearer token.
// Tokens are fetched through base and cached until they expire.
func Client(ctx context.Context, cfg *types.OAuthConfig, base *http.Client) (*http.Client, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}

	if base == nil {
		base = http.DefaultClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	client := cc.Client(ctx)
	client.Timeout = base.Timeout
	return client, nil
}

// Package oidc builds the outbound authorization redirect to the identity
// provider.
package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/ojt-portal/portal-session/internal/config"
)

// Provider holds the provider's authorization endpoint and the scopes to
// request. It keeps no per-login state.
type Provider struct {
	endpoint oauth2.Endpoint
	scopes   []string
}

// NewProvider creates a provider from the OAuth config. With an issuer set it
// performs OIDC discovery via /.well-known/openid-configuration; otherwise the
// static authorization URL is used.
func NewProvider(ctx context.Context, cfg *config.OAuthConfig) (*Provider, error) {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	if cfg.Issuer == "" {
		return &Provider{
			endpoint: oauth2.Endpoint{AuthURL: cfg.AuthURL},
			scopes:   scopes,
		}, nil
	}

	// Discover the endpoint from the issuer
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &Provider{
		endpoint: provider.Endpoint(),
		scopes:   scopes,
	}, nil
}

// AuthURL returns the authorization endpoint in use.
func (p *Provider) AuthURL() string {
	return p.endpoint.AuthURL
}

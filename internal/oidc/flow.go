package oidc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/ojt-portal/portal-session/internal/autherr"
	"github.com/ojt-portal/portal-session/internal/config"
)

// AuthFlowData contains the data needed to send the user to the provider.
type AuthFlowData struct {
	// State is the random nonce sent as the state parameter
	State string

	// AuthURL is the complete authorization URL to redirect the user to
	AuthURL string
}

// AuthorizationURL builds the redirect for one login attempt. The code is
// exchanged by the backend behind the redirect URI, which then forwards the
// token bundle to the login surface.
func (p *Provider) AuthorizationURL(settings config.OAuthSettings) (*AuthFlowData, error) {
	if settings.ClientID == "" {
		return nil, autherr.ErrMissingClientID
	}

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	oauth2Config := &oauth2.Config{
		ClientID:    settings.ClientID,
		RedirectURL: settings.RedirectURI,
		Endpoint:    p.endpoint,
		Scopes:      p.scopes,
	}

	authURL := oauth2Config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)

	return &AuthFlowData{
		State:   state,
		AuthURL: authURL,
	}, nil
}

// generateState creates a random state parameter for CSRF protection.
// The state is 16 random bytes encoded as hex (32 characters).
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

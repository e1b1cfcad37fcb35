// Package sso implements OIDC-based single sign-on. The provider
// exchanges the authorization code, verifies the ID token and maps its
// claims to an external identity that the identity store resolves to a
// local user.
package sso

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/sentinel/pkg/config"
)

// ExternalIdentity is the verified identity returned by the provider.
type ExternalIdentity struct {
	Provider      string
	Subject       string
	Email         string
	FullName      string
	EmailVerified bool
}

// OIDCProvider implements OpenID Connect sign-in.
type OIDCProvider struct {
	name         string
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider discovers the issuer and builds the token verifier.
func NewOIDCProvider(ctx context.Context, cfg config.OAuthConfig) (*OIDCProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC client credentials are required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("OIDC redirect URL is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	return &OIDCProvider{
		name:         cfg.Provider,
		provider:     provider,
		verifier:     verifier,
		oauth2Config: oauth2Config,
	}, nil
}

// Name returns the configured provider name.
func (p *OIDCProvider) Name() string {
	return p.name
}

// AuthCodeURL builds the authorization redirect URL for a state token.
func (p *OIDCProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// HandleCallback exchanges the authorization code and verifies the ID
// token, returning the external identity carried in its claims.
func (p *OIDCProvider) HandleCallback(ctx context.Context, code string) (*ExternalIdentity, error) {
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	identity := &ExternalIdentity{
		Provider:      p.name,
		Subject:       idToken.Subject,
		Email:         claims.Email,
		FullName:      claims.Name,
		EmailVerified: claims.EmailVerified,
	}

	if identity.Subject == "" {
		return nil, fmt.Errorf("missing subject in OIDC token")
	}
	if identity.Email == "" {
		return nil, fmt.Errorf("missing email in OIDC token")
	}

	return identity, nil
}

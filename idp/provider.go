// Package idp wraps the external OIDC identity provider: discovery, the
// authorization-code exchange, and ID-token verification. The session core
// consumes only the verified identity and raw token pair produced here.
package idp

import (
	"context"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/nauthd/nauth/internal/config"
	ierrors "github.com/nauthd/nauth/internal/errors"
	"github.com/nauthd/nauth/pendinglogin"
	"golang.org/x/oauth2"
)

// LoginResult is a completed, verified code exchange.
type LoginResult struct {
	Identity pendinglogin.Identity
	Tokens   pendinglogin.TokenPair
	Nonce    string
}

type Provider struct {
	provider *oidc.Provider
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	audience string
	timeout  time.Duration
}

// New discovers the provider's endpoints from the configured issuer.
// redirectURL is where the provider sends the user back after consent.
func New(ctx context.Context, cfg config.OIDCConfig, redirectURL string) (*Provider, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.GetExternalCallTimeout())
	defer cancel()

	provider, err := oidc.NewProvider(ctx, cfg.GetIssuer())
	if err != nil {
		return nil, ierrors.Wrapf(err, "[idp.New] discovery for %q", cfg.GetIssuer())
	}

	return &Provider{
		provider: provider,
		oauth: &oauth2.Config{
			ClientID:     cfg.GetClientID(),
			ClientSecret: cfg.GetClientSecret(),
			Endpoint:     provider.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.GetClientID()}),
		audience: cfg.GetAudience(),
		timeout:  cfg.GetExternalCallTimeout(),
	}, nil
}

// AuthCodeURL builds the provider's authorize URL for a login redirect.
func (p *Provider) AuthCodeURL(state, nonce string) string {
	return p.oauth.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("audience", p.audience),
	)
}

// Exchange trades an authorization code for tokens and verifies the ID
// token's signature and claims. The caller still has to match the returned
// nonce against the one it issued.
func (p *Provider) Exchange(ctx context.Context, code string) (*LoginResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	oauthToken, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, ierrors.Wrapf(err, "[Provider.Exchange] code exchange")
	}

	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok {
		return nil, ierrors.Wrapf(ierrors.ErrUnauthenticated, "[Provider.Exchange] no id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, ierrors.Wrapf(ierrors.ErrUnauthenticated, "[Provider.Exchange] id token verification: %v", err)
	}

	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Nonce string `json:"nonce"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, ierrors.Wrapf(err, "[Provider.Exchange] extract claims")
	}

	return &LoginResult{
		Identity: pendinglogin.Identity{
			Subject:     claims.Sub,
			Email:       claims.Email,
			DisplayName: claims.Name,
		},
		Tokens: pendinglogin.TokenPair{
			AccessToken:  oauthToken.AccessToken,
			RefreshToken: oauthToken.RefreshToken,
			IDToken:      rawIDToken,
		},
		Nonce: claims.Nonce,
	}, nil
}

// OAuth exposes the oauth2 configuration for the refresh coordinator.
func (p *Provider) OAuth() *oauth2.Config {
	return p.oauth
}

package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig configures the client side of a single external OIDC provider.
// spec.md §6 scopes "OAuth provider HTTP flows" out (the provider's
// consent-screen UI), but client-side callback verification — exchanging an
// authorization code and validating the resulting ID token — produces a
// litebase User the same way a password login does, so it stays in scope.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// AllowedSubject, if set, is the only OIDC `sub` claim permitted to log
	// in as the repository's single admin user. Since this repository has
	// exactly one account (the `_users` CHECK (id = 1) row), OIDC here
	// authenticates "is this the operator" rather than provisioning
	// multiple accounts.
	AllowedSubject string
}

// OIDCProvider wraps the discovered provider metadata, an oauth2.Config for
// the authorization-code flow, and an ID token verifier.
type OIDCProvider struct {
	cfg      OIDCConfig
	provider *oidc.Provider
	oauth2   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider performs OIDC discovery against cfg.IssuerURL and builds
// the oauth2.Config + ID token verifier needed for the callback path.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("auth: oidc discovery against %s: %w", cfg.IssuerURL, err)
	}

	return &OIDCProvider{
		cfg:      cfg,
		provider: provider,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthCodeURL returns the URL the browser is redirected to for login,
// embedding state for CSRF protection. Serving the redirect itself is an
// internal/api handler's job; this package only builds the URL.
func (p *OIDCProvider) AuthCodeURL(state string) string {
	return p.oauth2.AuthCodeURL(state)
}

// OIDCClaims is the subset of ID token claims this package cares about.
type OIDCClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// ExchangeAndVerify exchanges an authorization code for tokens, verifies
// the ID token's signature/issuer/audience, and returns its claims. It does
// not itself decide whether the caller may log in — see
// Service.LoginWithOIDC for the AllowedSubject check.
func (p *OIDCProvider) ExchangeAndVerify(ctx context.Context, code string) (OIDCClaims, error) {
	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return OIDCClaims{}, fmt.Errorf("auth: oidc code exchange: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return OIDCClaims{}, fmt.Errorf("auth: oidc token response missing id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return OIDCClaims{}, fmt.Errorf("auth: oidc id token verification: %w", err)
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return OIDCClaims{}, fmt.Errorf("auth: oidc id token claims: %w", err)
	}
	return claims, nil
}

// LoginWithOIDC validates claims against p.cfg.AllowedSubject and, on
// success, returns the repository's single admin User the same way Login
// does for a password-based session.
func (s *Service) LoginWithOIDC(ctx context.Context, p *OIDCProvider, claims OIDCClaims) (User, error) {
	if p.cfg.AllowedSubject == "" || claims.Subject != p.cfg.AllowedSubject {
		return User{}, ErrInvalidCredentials
	}

	complete, err := s.IsSetupComplete(ctx)
	if err != nil {
		return User{}, err
	}
	if !complete {
		return User{}, ErrNotSetup
	}

	row, err := s.eng.ReadQueryRow(ctx, `SELECT username, created_at, updated_at FROM _users WHERE id = 1`)
	if err != nil {
		return User{}, fmt.Errorf("auth: load user: %w", err)
	}
	if len(row.Values) == 0 {
		return User{}, ErrInvalidCredentials
	}
	return userFromRow(row.Values[0]), nil
}

// Copyright 2024 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tokensource exposes an installation's cached access token as an
// oauth2.TokenSource, for use with clients such as go-github.
package tokensource

import (
	"context"
	"net/http"

	"github.com/chainguard-dev/clog"
	"github.com/octo-sts/ghapp/pkg/credential"
	"golang.org/x/oauth2"
)

// TokenType is the authorization scheme GitHub expects for installation
// tokens.
const TokenType = "token"

// CredentialSource yields a valid credential, renewing it as needed.
// *ghapp.Installation satisfies it.
type CredentialSource interface {
	Credential(ctx context.Context) (credential.Credential, error)
}

type TokenSource struct {
	ctx context.Context
	src CredentialSource
}

var _ oauth2.TokenSource = (*TokenSource)(nil)

// New returns a TokenSource backed by src. Every call consults src, whose
// cache decides when a new token is needed.
func New(ctx context.Context, src CredentialSource) *TokenSource {
	return &TokenSource{ctx: ctx, src: src}
}

// Token returns the current installation token.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	cred, err := ts.src.Credential(ts.ctx)
	if err != nil {
		return nil, err
	}
	clog.FromContext(ts.ctx).Debugf("using installation token expiring at %s", cred.ExpiresAt)
	return &oauth2.Token{
		TokenType:   TokenType,
		AccessToken: cred.Value,
		Expiry:      cred.ExpiresAt,
	}, nil
}

// NewClient returns an HTTP client that authenticates every request with the
// token from src. Tokens are never held past src's own cache.
func NewClient(ctx context.Context, src CredentialSource) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: New(ctx, src),
			Base:   http.DefaultTransport,
		},
	}
}

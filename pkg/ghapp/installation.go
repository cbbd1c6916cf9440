// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package ghapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/octo-sts/ghapp/pkg/credential"
	"github.com/octo-sts/ghapp/pkg/ghclient"
)

// Installation is one account's installation of the App. It owns the access
// token for that installation; every accessor resolves its token through the
// installation handle rather than carrying a copy on the record.
type Installation struct {
	*github.Installation

	app   *App
	token *credential.Cache
}

func (a *App) newInstallation(in *github.Installation) *Installation {
	inst := &Installation{
		Installation: in,
		app:          a,
	}
	// A token stays usable up to and including its declared expiry; only
	// once that instant has passed is a new one requested.
	inst.token = credential.New(inst.mint,
		credential.WithClock(a.clock),
		credential.WithInclusiveExpiry(),
		credential.WithName(fmt.Sprintf("installation/%d", in.GetID())),
	)
	return inst
}

// App returns the App this installation belongs to.
func (i *Installation) App() *App {
	return i.app
}

// Token returns an access token for the installation, exchanging a fresh App
// assertion for one when none is cached or the cached one has expired.
func (i *Installation) Token(ctx context.Context) (string, error) {
	return i.token.Get(ctx)
}

// Credential is like Token but also reports the token's expiry.
func (i *Installation) Credential(ctx context.Context) (credential.Credential, error) {
	return i.token.GetCredential(ctx)
}

func (i *Installation) accessTokensURL() string {
	if u := i.GetAccessTokensURL(); u != "" {
		return u
	}
	return fmt.Sprintf("/app/installations/%d/access_tokens", i.GetID())
}

func (i *Installation) mint(ctx context.Context) (_ credential.Credential, err error) {
	log := clog.FromContext(ctx).With("github/installation", i.GetID())
	log.Infof("renewing token for installation %d", i.GetID())

	e := TokenEvent{
		AppID:          i.app.id,
		InstallationID: i.GetID(),
	}
	defer func() {
		if err != nil {
			e.Error = err.Error()
		}
		i.app.emit(ctx, e)
	}()

	assertion, err := i.app.Token(ctx)
	if err != nil {
		return credential.Credential{}, err
	}
	data, err := i.app.client.Post(ctx, i.accessTokensURL(), ghclient.Bearer(assertion), nil)
	if err != nil {
		return credential.Credential{}, &AuthError{InstallationID: i.GetID(), Err: err}
	}

	tok := &github.InstallationToken{}
	if err := decode(data, "installation token", tok); err != nil {
		return credential.Credential{}, &AuthError{InstallationID: i.GetID(), Err: err}
	}
	if tok.GetToken() == "" || tok.ExpiresAt == nil {
		return credential.Credential{}, &AuthError{
			InstallationID: i.GetID(),
			Err:            &DecodeError{What: "installation token", Err: errors.New("missing token or expires_at")},
		}
	}

	expiresAt := tok.GetExpiresAt().Time
	e.ExpiresAt = &expiresAt
	e.TokenSHA256 = tokenDigest(tok.GetToken())
	log.Debugf("installation token expires at %s", expiresAt)

	return credential.Credential{
		Value:     tok.GetToken(),
		ExpiresAt: expiresAt,
	}, nil
}

// RevokeToken revokes the cached access token, if any, and forgets it. The
// next call needing a token mints a new one.
func (i *Installation) RevokeToken(ctx context.Context) error {
	cred, ok := i.token.Peek()
	if !ok {
		return nil
	}
	defer i.token.InvalidateIf(cred.Value)

	if cred.ExpiresAt.Before(i.app.clock.Now()) {
		return nil
	}
	if _, err := i.app.client.Delete(ctx, "/installation/token", ghclient.Token(cred.Value)); err != nil {
		return fmt.Errorf("revoking token for installation %d: %w", i.GetID(), err)
	}
	clog.FromContext(ctx).Infof("revoked token for installation %d", i.GetID())
	return nil
}

func (i *Installation) get(ctx context.Context, url string) ([]byte, error) {
	tok, err := i.Token(ctx)
	if err != nil {
		return nil, err
	}
	return i.app.client.Get(ctx, url, ghclient.Token(tok))
}

func (i *Installation) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	tok, err := i.Token(ctx)
	if err != nil {
		return nil, err
	}
	return i.app.client.Post(ctx, url, ghclient.Token(tok), body)
}

// Repos lists the repositories the installation can access.
func (i *Installation) Repos(ctx context.Context) ([]*Repo, error) {
	url := i.GetRepositoriesURL()
	if url == "" {
		url = "/installation/repositories"
	}
	data, err := i.get(ctx, url)
	if err != nil {
		return nil, err
	}
	result := &github.ListRepositories{}
	if err := decode(data, "repositories", result); err != nil {
		return nil, err
	}
	repos := make([]*Repo, 0, len(result.Repositories))
	for _, r := range result.Repositories {
		repos = append(repos, &Repo{Repository: r, InstallationID: i.GetID()})
	}
	return repos, nil
}

// PullRequest fetches a pull request by path, in the form
// "owner/repo/pulls/number".
func (i *Installation) PullRequest(ctx context.Context, path string) (*PullRequest, error) {
	data, err := i.get(ctx, "/repos/"+strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, err
	}
	pr := &github.PullRequest{}
	if err := decode(data, "pull request", pr); err != nil {
		return nil, err
	}
	return &PullRequest{PullRequest: pr, InstallationID: i.GetID()}, nil
}

// owns reports whether i can act on a record attributed to installationID.
func (i *Installation) owns(what string, installationID int64) error {
	if i == nil {
		return &MissingTokenError{What: what, InstallationID: installationID}
	}
	if installationID != 0 && installationID != i.GetID() {
		return &MissingTokenError{What: what, InstallationID: installationID, Got: i.GetID()}
	}
	return nil
}

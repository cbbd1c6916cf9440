// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package ghapp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/chainguard-dev/clog"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/go-github/v75/github"
	"github.com/hashicorp/go-multierror"
	"github.com/octo-sts/ghapp/pkg/appjwt"
	"github.com/octo-sts/ghapp/pkg/ghclient"
	"github.com/octo-sts/ghapp/pkg/nopceclient"
	"k8s.io/utils/clock"
)

// DefaultEventSource is the CloudEvent source attribute used unless
// WithEventClient says otherwise.
const DefaultEventSource = "https://octo-sts.dev"

// Option configures an App.
type Option func(*App)

// WithClient sets the request facade, and with it the API host, User-Agent
// and Accept headers.
func WithClient(c *ghclient.Client) Option {
	return func(a *App) {
		a.client = c
	}
}

// WithClock sets the time source used to stamp assertions and to decide
// whether cached credentials have expired.
func WithClock(clk clock.PassiveClock) Option {
	return func(a *App) {
		a.clock = clk
	}
}

// WithEventClient reports every installation token request to ceclient.
func WithEventClient(ceclient cloudevents.Client, source string) Option {
	return func(a *App) {
		a.ceclient = ceclient
		if source != "" {
			a.eventSource = source
		}
	}
}

// App acts as a single GitHub App identity. It is safe for concurrent use; its
// assertion cache is shared by every Installation obtained from it.
type App struct {
	id          string
	client      *ghclient.Client
	clock       clock.PassiveClock
	ceclient    cloudevents.Client
	eventSource string

	assertions *appjwt.Source
}

// New returns an App identified by appID that signs with privateKey, a PEM or
// DER encoded RSA key. An unusable key fails here with a *KeyError.
func New(privateKey []byte, appID string, opts ...Option) (*App, error) {
	gen, err := appjwt.NewRSAGenerator(privateKey, appID)
	if err != nil {
		return nil, err
	}
	return newApp(gen, opts), nil
}

// NewWithSigner returns an App that signs its assertions with signer, such as
// one backed by a KMS.
func NewWithSigner(signer ghinstallation.Signer, appID string, opts ...Option) *App {
	return newApp(appjwt.NewGenerator(signer, appID), opts)
}

// FromPrivateKeyFile reads the private key at path in full and calls New.
func FromPrivateKeyFile(path string, appID string, opts ...Option) (*App, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return New(key, appID, opts...)
}

func newApp(gen *appjwt.Generator, opts []Option) *App {
	a := &App{
		id:          gen.Issuer(),
		clock:       clock.RealClock{},
		ceclient:    nopceclient.Client{},
		eventSource: DefaultEventSource,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.client == nil {
		a.client = ghclient.New()
	}
	a.assertions = appjwt.NewSource(gen, a.clock)
	return a
}

// ID returns the App ID.
func (a *App) ID() string {
	return a.id
}

// Token returns a valid assertion for authenticating as the App.
func (a *App) Token(ctx context.Context) (string, error) {
	return a.assertions.Token(ctx)
}

func (a *App) get(ctx context.Context, url string) ([]byte, error) {
	tok, err := a.Token(ctx)
	if err != nil {
		return nil, err
	}
	return a.client.Get(ctx, url, ghclient.Bearer(tok))
}

// Installations lists the installations visible to the App.
func (a *App) Installations(ctx context.Context) ([]*Installation, error) {
	data, err := a.get(ctx, "/app/installations")
	if err != nil {
		return nil, err
	}
	var raw []*github.Installation
	if err := decode(data, "installations", &raw); err != nil {
		return nil, err
	}
	installs := make([]*Installation, 0, len(raw))
	for _, in := range raw {
		installs = append(installs, a.newInstallation(in))
	}
	clog.FromContext(ctx).Debugf("app %s has %d installations", a.id, len(installs))
	return installs, nil
}

// Installation fetches a single installation by id.
func (a *App) Installation(ctx context.Context, id int64) (*Installation, error) {
	data, err := a.get(ctx, fmt.Sprintf("/app/installations/%d", id))
	if err != nil {
		return nil, err
	}
	raw := &github.Installation{}
	if err := decode(data, "installation", raw); err != nil {
		return nil, err
	}
	return a.newInstallation(raw), nil
}

// PullRequests lists pull requests in the given state across every repository
// of every installation. A failure on one installation or repository is
// logged and collected, and the walk continues; the pull requests gathered so
// far are returned together with the combined error.
func (a *App) PullRequests(ctx context.Context, state PullRequestState) ([]*PullRequest, error) {
	installs, err := a.Installations(ctx)
	if err != nil {
		return nil, err
	}

	var merr error
	var prs []*PullRequest
	for _, inst := range installs {
		log := clog.FromContext(ctx).With("github/installation", inst.GetID())

		repos, err := inst.Repos(ctx)
		if err != nil {
			log.Warnf("failed to list repositories: %v", err)
			merr = multierror.Append(merr, fmt.Errorf("installation %d: %w", inst.GetID(), err))
			continue
		}
		for _, repo := range repos {
			pulls, err := repo.PullRequests(ctx, inst, state)
			if err != nil {
				log.Warnf("failed to list pull requests for %s: %v", repo.GetFullName(), err)
				merr = multierror.Append(merr, fmt.Errorf("%s: %w", repo.GetFullName(), err))
				continue
			}
			prs = append(prs, pulls...)
		}
	}
	return prs, merr
}

func decode(data []byte, what string, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{What: what, Err: err}
	}
	return nil
}

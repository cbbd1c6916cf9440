/*
Copyright 2024 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prober checks end to end that the configured App can mint an
// installation token and read through it.
package prober

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/octo-sts/ghapp/pkg/appsetup"
	envConfig "github.com/octo-sts/ghapp/pkg/envconfig"
	"github.com/octo-sts/ghapp/pkg/ghapp"
	"github.com/octo-sts/ghapp/pkg/tokensource"
)

type probeTarget struct {
	app    *ghapp.App
	apiURL string
}

var target = sync.OnceValues(func() (*probeTarget, error) {
	cfg, err := envConfig.Process()
	if err != nil {
		return nil, err
	}
	app, err := appsetup.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &probeTarget{app: app, apiURL: cfg.APIURL}, nil
})

// Func probes the App described by the environment. The App is built once
// and reused across probes.
func Func(ctx context.Context) error {
	t, err := target()
	if err != nil {
		return fmt.Errorf("configuring app: %w", err)
	}
	return Probe(ctx, t.app, t.apiURL)
}

// Probe mints a token for the App's first installation, lists one of its
// repositories with a go-github client authenticated by that token, and
// revokes the token.
func Probe(ctx context.Context, app *ghapp.App, apiURL string) error {
	installs, err := app.Installations(ctx)
	if err != nil {
		return fmt.Errorf("listing installations: %w", err)
	}
	if len(installs) == 0 {
		return errors.New("app has no installations")
	}
	inst := installs[0]
	log := clog.FromContext(ctx).With("github/installation", inst.GetID())

	ghc := github.NewClient(tokensource.NewClient(ctx, inst))
	base, err := url.Parse(strings.TrimSuffix(apiURL, "/") + "/")
	if err != nil {
		return fmt.Errorf("parsing api url: %w", err)
	}
	ghc.BaseURL = base

	repos, _, err := ghc.Apps.ListRepos(ctx, &github.ListOptions{PerPage: 1})
	if err != nil {
		return fmt.Errorf("listing repositories of installation %d: %w", inst.GetID(), err)
	}
	log.Infof("installation %d can see %d repositories", inst.GetID(), repos.GetTotalCount())

	if err := inst.RevokeToken(ctx); err != nil {
		return err
	}
	return nil
}

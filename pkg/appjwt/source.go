// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package appjwt

import (
	"context"

	"github.com/chainguard-dev/clog"
	"github.com/octo-sts/ghapp/pkg/credential"
	"k8s.io/utils/clock"
)

// Source hands out the App's current assertion, minting a new one once the
// previous one has expired. A Source is safe for concurrent use and should be
// shared by everything acting as the same App.
type Source struct {
	gen   *Generator
	clock clock.PassiveClock
	cache *credential.Cache
}

// NewSource returns a Source backed by gen. A nil clk uses the wall clock.
func NewSource(gen *Generator, clk clock.PassiveClock) *Source {
	if clk == nil {
		clk = clock.RealClock{}
	}
	s := &Source{
		gen:   gen,
		clock: clk,
	}
	s.cache = credential.New(s.mint,
		credential.WithClock(clk),
		credential.WithName("app/"+gen.Issuer()),
	)
	return s
}

// Token returns an assertion that has not expired at the time of the call.
func (s *Source) Token(ctx context.Context) (string, error) {
	return s.cache.Get(ctx)
}

func (s *Source) mint(ctx context.Context) (credential.Credential, error) {
	clog.FromContext(ctx).Infof("minting assertion for app %s", s.gen.Issuer())
	token, expiresAt, err := s.gen.Generate(s.clock.Now())
	if err != nil {
		return credential.Credential{}, err
	}
	return credential.Credential{
		Value:     token,
		ExpiresAt: expiresAt,
	}, nil
}

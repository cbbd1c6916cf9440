// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package credential holds a single short-lived credential and refreshes it
// on demand once it has expired.
//
// Readers share a read lock and never wait on a refresh performed by another
// caller. Two callers that observe an expired credential at the same time may
// both refresh; the last one to store wins.
package credential

import (
	"context"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"k8s.io/utils/clock"
)

// Credential is an opaque secret with an absolute expiry.
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// RefreshFunc mints a replacement credential.
type RefreshFunc func(ctx context.Context) (Credential, error)

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source used for expiry checks.
func WithClock(clk clock.PassiveClock) Option {
	return func(c *Cache) {
		c.clock = clk
	}
}

// WithInclusiveExpiry treats a credential whose expiry equals the check time
// as still usable. Only a deadline strictly in the past triggers a refresh.
func WithInclusiveExpiry() Option {
	return func(c *Cache) {
		c.inclusive = true
	}
}

// WithName sets the label attached to log lines.
func WithName(name string) Option {
	return func(c *Cache) {
		c.name = name
	}
}

// Cache is a lazily populated, read-mostly credential slot.
type Cache struct {
	refresh   RefreshFunc
	clock     clock.PassiveClock
	inclusive bool
	name      string

	mu   sync.RWMutex
	cred *Credential
}

// New returns an empty Cache that mints credentials with refresh.
func New(refresh RefreshFunc, opts ...Option) *Cache {
	c := &Cache{
		refresh: refresh,
		clock:   clock.RealClock{},
		name:    "credential",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value when it is still valid, refreshing it first
// otherwise.
func (c *Cache) Get(ctx context.Context) (string, error) {
	cred, err := c.GetCredential(ctx)
	if err != nil {
		return "", err
	}
	return cred.Value, nil
}

// GetCredential is like Get but also returns the expiry.
func (c *Cache) GetCredential(ctx context.Context) (Credential, error) {
	log := clog.FromContext(ctx).With("credential", c.name)

	if cred, ok := c.Peek(); ok {
		if c.valid(cred, c.clock.Now()) {
			log.Debugf("using cached credential, expires at %s", cred.ExpiresAt)
			return cred, nil
		}
		log.Debugf("credential expired at %s", cred.ExpiresAt)
	} else {
		log.Debug("no credential present")
	}

	// No lock is held while refreshing.
	fresh, err := c.refresh(ctx)
	if err != nil {
		return Credential{}, err
	}

	c.mu.Lock()
	c.cred = &fresh
	c.mu.Unlock()

	log.Debugf("stored credential, expires at %s", fresh.ExpiresAt)
	return fresh, nil
}

// Peek returns the stored credential without checking or refreshing it.
func (c *Cache) Peek() (Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cred == nil {
		return Credential{}, false
	}
	return *c.cred, true
}

// Invalidate drops the stored credential so the next Get refreshes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.cred = nil
	c.mu.Unlock()
}

// InvalidateIf drops the stored credential only while it still holds value.
// It reports whether anything was dropped.
func (c *Cache) InvalidateIf(value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred == nil || c.cred.Value != value {
		return false
	}
	c.cred = nil
	return true
}

func (c *Cache) valid(cred Credential, now time.Time) bool {
	if c.inclusive {
		return !cred.ExpiresAt.Before(now)
	}
	return cred.ExpiresAt.After(now)
}

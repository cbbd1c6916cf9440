// Copyright 2024 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package ghinstall

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/chainguard-dev/clog"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/octo-sts/ghapp/pkg/ghapp"
)

// ErrNotFound is returned when the App has no installation for an owner.
var ErrNotFound = errors.New("installation not found")

// ErrNoManagers is returned by NewRoundRobin when it has nothing to rotate over.
var ErrNoManagers = errors.New("round robin needs at least one manager")

const (
	ownerCacheSize        = 200
	installationCacheSize = 200
)

// Manager looks up GitHub App installations.
type Manager interface {
	// Get returns the installation on the account owner.
	Get(ctx context.Context, owner string) (*ghapp.Installation, error)
	// ByID returns the installation with the given id.
	ByID(ctx context.Context, id int64) (*ghapp.Installation, error)
}

type manager struct {
	app      *ghapp.App
	owners   *lru.TwoQueueCache[string, int64]
	installs *lru.Cache[int64, *ghapp.Installation]
}

// New creates a Manager for the installations of app.
func New(app *ghapp.App) (Manager, error) {
	owners, err := lru.New2Q[string, int64](ownerCacheSize)
	if err != nil {
		return nil, err
	}
	installs, err := lru.New[int64, *ghapp.Installation](installationCacheSize)
	if err != nil {
		return nil, err
	}
	return &manager{
		app:      app,
		owners:   owners,
		installs: installs,
	}, nil
}

// Get returns the installation for the given owner.
func (m *manager) Get(ctx context.Context, owner string) (*ghapp.Installation, error) {
	key := strings.ToLower(owner)
	if id, ok := m.owners.Get(key); ok {
		clog.InfoContextf(ctx, "found installation in cache for %s", owner)
		return m.ByID(ctx, id)
	}

	installs, err := m.app.Installations(ctx)
	if err != nil {
		return nil, err
	}
	var found *ghapp.Installation
	for _, install := range installs {
		install = m.share(install)
		login := strings.ToLower(install.GetAccount().GetLogin())
		if login != "" {
			m.owners.Add(login, install.GetID())
		}
		if login == key {
			found = install
		}
	}
	if found == nil {
		return nil, fmt.Errorf("no installation found for %q: %w", owner, ErrNotFound)
	}
	return found, nil
}

// ByID returns the installation with the given id, fetching it on first use.
func (m *manager) ByID(ctx context.Context, id int64) (*ghapp.Installation, error) {
	if install, ok := m.installs.Get(id); ok {
		return install, nil
	}
	install, err := m.app.Installation(ctx, id)
	if err != nil {
		var serr *ghapp.StatusError
		if errors.As(err, &serr) && serr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("installation %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return m.share(install), nil
}

// share returns the handle already held for install's id, or keeps install as
// that handle. Cached handles keep their tokens across lookups.
func (m *manager) share(install *ghapp.Installation) *ghapp.Installation {
	if prev, ok, _ := m.installs.PeekOrAdd(install.GetID(), install); ok {
		return prev
	}
	return install
}

type roundRobin struct {
	managers []Manager
	counter  atomic.Uint64
}

// NewRoundRobin creates a Manager that distributes requests across the given managers.
func NewRoundRobin(managers []Manager) (Manager, error) {
	if len(managers) == 0 {
		return nil, ErrNoManagers
	}
	for i, m := range managers {
		if m == nil {
			return nil, fmt.Errorf("manager %d is nil: %w", i, ErrNoManagers)
		}
	}
	return &roundRobin{managers: managers}, nil
}

func (rr *roundRobin) next() Manager {
	idx := rr.counter.Add(1) % uint64(len(rr.managers))
	return rr.managers[idx]
}

func (rr *roundRobin) Get(ctx context.Context, owner string) (*ghapp.Installation, error) {
	return rr.next().Get(ctx, owner)
}

// ByID asks each App in turn, since an installation id belongs to exactly one
// of them.
func (rr *roundRobin) ByID(ctx context.Context, id int64) (*ghapp.Installation, error) {
	start := rr.counter.Add(1)
	for i := range uint64(len(rr.managers)) {
		install, err := rr.managers[(start+i)%uint64(len(rr.managers))].ByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return install, err
	}
	return nil, fmt.Errorf("installation %d: %w", id, ErrNotFound)
}

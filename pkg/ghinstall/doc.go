// Copyright 2024 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ghinstall provides a Manager abstraction for looking up GitHub App
// installations by owner or id. It keeps one [ghapp.Installation] handle per
// installation for the life of the Manager, so every caller shares that
// installation's access token cache, and remembers owner names in an LRU.
//
// Construct a Manager with [New] and inject it into consumers that need to
// resolve an owner name to a GitHub App installation.
package ghinstall

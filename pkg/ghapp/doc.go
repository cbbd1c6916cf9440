// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ghapp is a client for acting as a GitHub App.
//
// An [App] authenticates with short-lived assertions signed by its private
// key. Each [Installation] exchanges those assertions for its own access
// token, caches it until GitHub's declared expiry, and uses it for every data
// call: listing repositories, listing and fetching pull requests, and reading
// or writing commit statuses.
//
// Records returned by the accessors remember the installation they were
// fetched through, but never a token. Follow-up calls such as
// [PullRequest.SetStatus] take the owning installation so the token is always
// resolved from its single cache.
package ghapp

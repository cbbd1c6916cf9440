// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package ghapp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v75/github"
)

// PullRequestState filters pull request listings.
type PullRequestState string

const (
	PullRequestOpen   PullRequestState = "open"
	PullRequestClosed PullRequestState = "closed"
	PullRequestAll    PullRequestState = "all"
)

// Repo is a repository as seen through one installation.
type Repo struct {
	*github.Repository

	// InstallationID is the installation the repository was listed through.
	InstallationID int64
}

func (r *Repo) pullsURL() string {
	if u := r.GetPullsURL(); u != "" {
		return strings.Replace(u, "{/number}", "", 1)
	}
	return fmt.Sprintf("/repos/%s/pulls", r.GetFullName())
}

// PullRequests lists the repository's pull requests in state, using inst's
// token. An empty state lists all of them.
func (r *Repo) PullRequests(ctx context.Context, inst *Installation, state PullRequestState) ([]*PullRequest, error) {
	if err := inst.owns("repository "+r.GetFullName(), r.InstallationID); err != nil {
		return nil, err
	}
	if state == "" {
		state = PullRequestAll
	}

	data, err := inst.get(ctx, r.pullsURL()+"?state="+string(state))
	if err != nil {
		return nil, err
	}
	var raw []*github.PullRequest
	if err := decode(data, "pull requests", &raw); err != nil {
		return nil, err
	}
	prs := make([]*PullRequest, 0, len(raw))
	for _, pr := range raw {
		prs = append(prs, &PullRequest{PullRequest: pr, InstallationID: inst.GetID()})
	}
	return prs, nil
}

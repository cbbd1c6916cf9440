// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package ghapp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/go-github/v75/github"
)

// DefaultStatusContext labels statuses created without an explicit context.
const DefaultStatusContext = "default"

// State is the state of a commit status.
type State string

const (
	StateError   State = "error"
	StateFailure State = "failure"
	StatePending State = "pending"
	StateSuccess State = "success"
)

// Valid reports whether s is one of the states GitHub accepts.
func (s State) Valid() bool {
	switch s {
	case StateError, StateFailure, StatePending, StateSuccess:
		return true
	}
	return false
}

// Status is a commit status on a pull request's head commit.
type Status struct {
	State       State  `json:"state"`
	TargetURL   string `json:"target_url,omitempty"`
	Description string `json:"description,omitempty"`
	Context     string `json:"context,omitempty"`

	// Set by GitHub.
	ID        int64      `json:"id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// statusRequest is the body accepted by the statuses endpoint.
type statusRequest struct {
	State       State  `json:"state"`
	TargetURL   string `json:"target_url,omitempty"`
	Description string `json:"description,omitempty"`
	Context     string `json:"context"`
}

// PullRequest is a pull request as seen through one installation.
type PullRequest struct {
	*github.PullRequest

	// InstallationID is the installation the pull request was fetched through.
	InstallationID int64
}

func (pr *PullRequest) statusesURL() string {
	if u := pr.GetStatusesURL(); u != "" {
		return u
	}
	return fmt.Sprintf("/repos/%s/statuses/%s", pr.GetBase().GetRepo().GetFullName(), pr.GetHead().GetSHA())
}

func (pr *PullRequest) what() string {
	return fmt.Sprintf("pull request %s", pr.GetHTMLURL())
}

// Statuses lists the statuses of the pull request's head commit, most recent
// first.
func (pr *PullRequest) Statuses(ctx context.Context, inst *Installation) ([]Status, error) {
	if err := inst.owns(pr.what(), pr.InstallationID); err != nil {
		return nil, err
	}
	data, err := inst.get(ctx, pr.statusesURL())
	if err != nil {
		return nil, err
	}
	var statuses []Status
	if err := decode(data, "statuses", &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// LastStatusForContext returns the most recent status reported under
// statusContext, or nil when there is none.
func (pr *PullRequest) LastStatusForContext(ctx context.Context, inst *Installation, statusContext string) (*Status, error) {
	statuses, err := pr.Statuses(ctx, inst)
	if err != nil {
		return nil, err
	}
	for _, s := range statuses {
		if s.Context == statusContext {
			return &s, nil
		}
	}
	return nil, nil
}

// SetStatus reports a status on the pull request's head commit and returns the
// status as recorded by GitHub. An empty context becomes DefaultStatusContext.
func (pr *PullRequest) SetStatus(ctx context.Context, inst *Installation, status Status) (*Status, error) {
	if !status.State.Valid() {
		return nil, fmt.Errorf("invalid status state %q", status.State)
	}
	if err := inst.owns(pr.what(), pr.InstallationID); err != nil {
		return nil, err
	}
	req := statusRequest{
		State:       status.State,
		TargetURL:   status.TargetURL,
		Description: status.Description,
		Context:     status.Context,
	}
	if req.Context == "" {
		req.Context = DefaultStatusContext
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	data, err := inst.post(ctx, pr.statusesURL(), body)
	if err != nil {
		return nil, err
	}
	created := &Status{}
	if err := decode(data, "status", created); err != nil {
		return nil, err
	}
	return created, nil
}

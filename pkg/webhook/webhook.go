// Copyright 2024 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package webhook marks pull requests as pending when GitHub reports that
// they were opened or received new commits.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/octo-sts/ghapp/pkg/ghapp"
	"github.com/octo-sts/ghapp/pkg/ghinstall"
	"k8s.io/apimachinery/pkg/util/sets"
)

const (
	// See https://docs.github.com/en/developers/webhooks-and-events/webhooks/webhook-events-and-payloads#delivery-headers for list of available headers

	// HeaderDelivery is the GUID of the webhook event.
	HeaderDelivery = "X-GitHub-Delivery"
	// HeaderEvent is the event name of the webhook.
	HeaderEvent = "X-GitHub-Event"
)

// markActions are the pull_request actions that move the head commit.
var markActions = sets.New("opened", "reopened", "synchronize")

type StatusMarker struct {
	Installations ghinstall.Manager
	// Store multiple secrets to allow for rolling updates.
	// Only one needs to match for the event to be considered valid.
	WebhookSecret [][]byte

	Organizations []string

	// Status is reported on each pull request. Its State is ignored; marked
	// pull requests are always pending.
	Status ghapp.Status
}

func (e *StatusMarker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := clog.FromContext(r.Context()).With(
		HeaderDelivery, r.Header.Get(HeaderDelivery),
		HeaderEvent, r.Header.Get(HeaderEvent),
	)
	ctx := clog.WithLogger(r.Context(), log)

	payload, err := e.validatePayload(r)
	if err != nil {
		log.Errorf("error validating payload: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	eventType := github.WebHookType(r)
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		log.Errorf("error parsing webhook: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var status *ghapp.Status
	switch event := event.(type) {
	case *github.PullRequestEvent:
		status, err = e.handlePullRequest(ctx, event)
	case *github.PingEvent:
		log.Infof("ping from hook %d", event.GetHookID())
	default:
		log.Infof("unsupported event type: %s", eventType)
		// Use accepted as "we got it but didn't do anything"
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err != nil {
		log.Errorf("error handling event %T: %v", event, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if status != nil {
		log.Info("created status", "status_id", status.ID, "status_context", status.Context)
	}
	w.WriteHeader(http.StatusOK)
}

func (e *StatusMarker) validatePayload(r *http.Request) ([]byte, error) {
	// Taken from github.ValidatePayload - we can't use this directly since the body is consumed.
	signature := r.Header.Get(github.SHA256SignatureHeader)
	if signature == "" {
		signature = r.Header.Get(github.SHA1SignatureHeader)
	}
	contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	for _, s := range e.WebhookSecret {
		payload, err := github.ValidatePayloadFromBody(contentType, bytes.NewBuffer(body), signature, s)
		if err == nil {
			return payload, nil
		}
	}
	return nil, errors.New("no matching secrets")
}

func (e *StatusMarker) handlePullRequest(ctx context.Context, pr *github.PullRequestEvent) (*ghapp.Status, error) {
	log := clog.FromContext(ctx).With(
		"github/repo", pr.GetRepo().GetFullName(),
		"github/installation", pr.GetInstallation().GetID(),
		"github/action", pr.GetAction(),
		"github/pull_request", pr.GetNumber(),
		"git/commit", pr.GetPullRequest().GetHead().GetSHA(),
		"github/user", pr.GetSender().GetLogin(),
	)
	ctx = clog.WithLogger(ctx, log)

	if !markActions.Has(pr.GetAction()) {
		log.Debugf("ignoring action %s", pr.GetAction())
		return nil, nil
	}

	owner := pr.GetRepo().GetOwner().GetLogin()
	repo := pr.GetRepo().GetName()

	// Skip if the organization is not in the list of organizations to mark.
	if e.shouldSkipOrganization(owner) {
		log.Infof("skipping organization %s", owner)
		return nil, nil
	}

	inst, err := e.installation(ctx, pr.GetInstallation().GetID(), owner)
	if err != nil {
		return nil, err
	}
	return e.markPending(ctx, inst, fmt.Sprintf("%s/%s/pulls/%d", owner, repo, pr.GetNumber()))
}

func (e *StatusMarker) installation(ctx context.Context, id int64, owner string) (*ghapp.Installation, error) {
	if id != 0 {
		return e.Installations.ByID(ctx, id)
	}
	return e.Installations.Get(ctx, owner)
}

// markPending sets the configured status on the pull request at path to
// pending, unless its latest status in that context already is.
func (e *StatusMarker) markPending(ctx context.Context, inst *ghapp.Installation, path string) (*ghapp.Status, error) {
	log := clog.FromContext(ctx)

	pr, err := inst.PullRequest(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}

	statusContext := e.Status.Context
	if statusContext == "" {
		statusContext = ghapp.DefaultStatusContext
	}
	last, err := pr.LastStatusForContext(ctx, inst, statusContext)
	if err != nil {
		return nil, fmt.Errorf("reading statuses of %s: %w", path, err)
	}
	if last != nil && last.State == ghapp.StatePending {
		log.Infof("%s is already pending in context %s", path, statusContext)
		return nil, nil
	}

	status := e.Status
	status.State = ghapp.StatePending
	status.Context = statusContext
	return pr.SetStatus(ctx, inst, status)
}

func (e *StatusMarker) shouldSkipOrganization(org string) bool {
	if len(e.Organizations) == 0 {
		return false
	}
	allowed := sets.New[string]()
	for _, o := range e.Organizations {
		allowed.Insert(strings.ToLower(o))
	}
	return !allowed.Has(strings.ToLower(org))
}

// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package ghapp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

const (
	// TokenEventType is the CloudEvent type emitted for every installation
	// token request.
	TokenEventType = "dev.octo-sts.ghapp.token"

	retryDelay = 10 * time.Millisecond
	maxRetry   = 3
)

// TokenEvent records an installation token request. The token itself is
// never included, only its digest.
type TokenEvent struct {
	AppID          string     `json:"app_id"`
	InstallationID int64      `json:"installation_id"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	TokenSHA256    string     `json:"token_sha256,omitempty"`
	Error          string     `json:"error,omitempty"`
}

func tokenDigest(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func (a *App) emit(ctx context.Context, e TokenEvent) {
	event := cloudevents.NewEvent()
	event.SetType(TokenEventType)
	event.SetSubject(fmt.Sprintf("%s/%d", e.AppID, e.InstallationID))
	event.SetSource(a.eventSource)
	if err := event.SetData(cloudevents.ApplicationJSON, e); err != nil {
		clog.FromContext(ctx).Infof("Failed to encode event payload: %v", err)
		return
	}
	rctx := cloudevents.ContextWithRetriesExponentialBackoff(context.WithoutCancel(ctx), retryDelay, maxRetry)
	if ceresult := a.ceclient.Send(rctx, event); cloudevents.IsUndelivered(ceresult) || cloudevents.IsNACK(ceresult) {
		clog.FromContext(ctx).Errorf("Failed to deliver event: %v", ceresult)
	}
}

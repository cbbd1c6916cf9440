// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package nopceclient provides a CloudEvents client that drops everything it
// is given. It is the default sink for token events.
package nopceclient

import (
	"context"
	"errors"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/cloudevents/sdk-go/v2/protocol"
)

// ErrUnsupported is returned by the operations a sink cannot perform.
var ErrUnsupported = errors.New("nopceclient: operation not supported")

// Client discards sent events.
type Client struct{}

func (Client) Send(_ context.Context, _ event.Event) protocol.Result {
	return nil
}

func (Client) Request(_ context.Context, _ event.Event) (*event.Event, protocol.Result) {
	return nil, ErrUnsupported
}

func (Client) StartReceiver(_ context.Context, _ interface{}) error {
	return ErrUnsupported
}

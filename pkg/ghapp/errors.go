// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package ghapp

import (
	"fmt"

	"github.com/octo-sts/ghapp/pkg/appjwt"
	"github.com/octo-sts/ghapp/pkg/ghclient"
)

// The lower level failures surface unchanged through this package. They are
// aliased here so callers can match every failure mode from one import.
type (
	KeyError       = appjwt.KeyError
	SigningError   = appjwt.SigningError
	TransportError = ghclient.TransportError
	StatusError    = ghclient.StatusError
)

// AuthError reports a failed exchange of an App assertion for an
// installation access token.
type AuthError struct {
	InstallationID int64
	Err            error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("obtaining token for installation %d: %v", e.InstallationID, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// DecodeError reports a response body that does not match the expected shape.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MissingTokenError reports an accessor called without the installation that
// owns the record, so no token can be resolved for it.
type MissingTokenError struct {
	What string
	// InstallationID is the owner recorded on the record, if any.
	InstallationID int64
	// Got is the id of the installation that was passed instead, if any.
	Got int64
}

func (e *MissingTokenError) Error() string {
	if e.Got != 0 {
		return fmt.Sprintf("%s belongs to installation %d, not %d", e.What, e.InstallationID, e.Got)
	}
	return fmt.Sprintf("%s requires an installation token but no installation was given", e.What)
}

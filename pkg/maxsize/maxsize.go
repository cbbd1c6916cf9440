// Copyright 2024 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package maxsize

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrTooLarge is returned by a limited body once more than the allowed number
// of bytes has been read.
var ErrTooLarge = errors.New("response body too large")

// NewRoundTripper creates a new http.RoundTripper that wraps the given
// http.RoundTripper and refuses response bodies larger than maxSize bytes.
// Unlike a plain io.LimitedReader an oversized body is reported as an error
// rather than silently truncated, so callers never decode a partial document.
func NewRoundTripper(maxSize int64, inner http.RoundTripper) http.RoundTripper {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &ms{
		base:        inner,
		maxBodySize: maxSize,
	}
}

type ms struct {
	base        http.RoundTripper // The underlying RoundTripper
	maxBodySize int64             // Maximum allowed response body size in bytes
}

// RoundTrip implements http.RoundTripper
func (rt *ms) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.ContentLength > rt.maxBodySize {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: content length %d exceeds %d bytes", ErrTooLarge, resp.ContentLength, rt.maxBodySize)
	}

	resp.Body = &lr{
		// Allow one extra byte so an oversized body can be told apart from
		// one that is exactly at the limit.
		r:         io.LimitReader(resp.Body, rt.maxBodySize+1),
		remaining: rt.maxBodySize,
		close:     resp.Body.Close,
	}
	return resp, nil
}

type lr struct {
	r         io.Reader
	remaining int64
	close     func() error
}

// Read implements io.Reader
func (r *lr) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}

// Close implements io.Closer
func (r *lr) Close() error {
	return r.close()
}

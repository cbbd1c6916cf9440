// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ghclient issues authenticated requests against the GitHub REST API
// and returns raw response bodies.
//
// Every request carries the configured User-Agent and Accept headers plus an
// Authorization header in one of the two schemes GitHub Apps use: "Bearer"
// with an App assertion, or "token" with an installation access token.
//
// Requests are built and sent by a go-github client, so absolute URLs taken
// from API responses are followed as given. Responses outside the 2xx range
// fail with a *StatusError before any decoding is attempted.
package ghclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/octo-sts/ghapp/pkg/maxsize"
)

const (
	// DefaultBaseURL is the public GitHub API host.
	DefaultBaseURL = "https://api.github.com"
	// DefaultUserAgent identifies this client to GitHub.
	DefaultUserAgent = "octo-sts-ghapp"
	// DefaultAccept requests the integrations preview media type.
	DefaultAccept = "application/vnd.github.machine-man-preview+json"
	// DefaultMaxResponseSize bounds how much of a response body is read.
	DefaultMaxResponseSize int64 = 10 << 20

	// errorBodyLimit bounds the body excerpt kept on a StatusError.
	errorBodyLimit = 4096
)

// Scheme is the Authorization header scheme.
type Scheme string

const (
	// SchemeBearer authenticates as the App with a signed assertion.
	SchemeBearer Scheme = "Bearer"
	// SchemeToken authenticates as an installation with its access token.
	SchemeToken Scheme = "token"
)

// Auth is the credential attached to a request.
type Auth struct {
	Scheme Scheme
	Token  string
}

// Bearer returns App-level credentials.
func Bearer(assertion string) Auth {
	return Auth{Scheme: SchemeBearer, Token: assertion}
}

// Token returns installation-level credentials.
func Token(token string) Auth {
	return Auth{Scheme: SchemeToken, Token: token}
}

func (a Auth) header() string {
	return string(a.Scheme) + " " + a.Token
}

// TransportError wraps a failure to complete the HTTP exchange at all.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	// Body holds at most the first few KiB of the response.
	Body []byte
	// Err is the go-github error for the response, usually a
	// *github.ErrorResponse or *github.RateLimitError.
	Err error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, bytes.TrimSpace(e.Body))
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points relative paths at a different API host, such as a GitHub
// Enterprise Server or a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithAccept overrides the Accept header.
func WithAccept(accept string) Option {
	return func(c *Client) {
		c.accept = accept
	}
}

// WithTransport sets the underlying RoundTripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithMaxResponseSize bounds the size of response bodies.
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) {
		c.maxResponseSize = n
	}
}

// Client is safe for concurrent use.
type Client struct {
	baseURL         string
	userAgent       string
	accept          string
	transport       http.RoundTripper
	maxResponseSize int64

	gh  *github.Client
	err error
}

// New returns a Client with the given options applied over the defaults.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:         DefaultBaseURL,
		userAgent:       DefaultUserAgent,
		accept:          DefaultAccept,
		transport:       http.DefaultTransport,
		maxResponseSize: DefaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.gh = github.NewClient(&http.Client{
		Transport: maxsize.NewRoundTripper(c.maxResponseSize, c.transport),
	})
	c.gh.UserAgent = c.userAgent
	// go-github resolves paths against a base URL with a trailing slash.
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		c.err = fmt.Errorf("parsing base url %q: %w", c.baseURL, err)
		return c
	}
	c.gh.BaseURL = base
	return c
}

// BaseURL returns the API host requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves an API path against the base URL. Absolute URLs, such as the
// ones GitHub embeds in its responses, are returned unchanged.
func (c *Client) URL(path string) string {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, auth Auth) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, url, auth, nil)
}

// Post issues a POST request with an optional JSON body.
func (c *Client) Post(ctx context.Context, url string, auth Auth, body []byte) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, url, auth, body)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, auth Auth) ([]byte, error) {
	return c.Do(ctx, http.MethodDelete, url, auth, nil)
}

// Do sends a request and returns the raw response body of a 2xx response.
// A non-nil body must be a JSON document.
func (c *Client) Do(ctx context.Context, method, rawURL string, auth Auth, body []byte) ([]byte, error) {
	target := c.URL(rawURL)
	log := clog.FromContext(ctx).With("method", method, "url", target)

	if c.err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: c.err}
	}
	var payload interface{}
	if body != nil {
		payload = json.RawMessage(body)
	}
	req, err := c.gh.NewRequest(method, target, payload)
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", c.accept)
	if auth.Token != "" {
		req.Header.Set("Authorization", auth.header())
	}

	log.Debugf("sending request")
	// GitHub accounts rate limits per credential, not per client.
	resp, err := c.gh.BareDo(context.WithValue(ctx, github.BypassRateLimitCheck, true), req)
	if err != nil {
		var accepted *github.AcceptedError
		if errors.As(err, &accepted) {
			log.Debugf("accepted, received %d bytes", len(accepted.Raw))
			return accepted.Raw, nil
		}
		if resp == nil || resp.Response == nil {
			return nil, &TransportError{Method: method, URL: target, Err: err}
		}
		log.Warnf("unexpected status %d", resp.StatusCode)
		return nil, &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       errorBody(resp.Response, err),
			Err:        err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: fmt.Errorf("reading body: %w", err)}
	}
	log.Debugf("received %d bytes", len(data))
	return data, nil
}

// errorBody returns the start of a failed response's body. go-github has
// already consumed it and left a copy behind; when that copy is unavailable
// the error message stands in.
func errorBody(resp *http.Response, err error) []byte {
	var data []byte
	if resp.Body != nil {
		data, _ = io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	}
	if len(data) == 0 {
		var gherr *github.ErrorResponse
		if errors.As(err, &gherr) && gherr.Message != "" {
			return []byte(gherr.Message)
		}
		return []byte(err.Error())
	}
	return data
}

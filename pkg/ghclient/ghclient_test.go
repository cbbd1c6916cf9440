// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package ghclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v75/github"
	"github.com/octo-sts/ghapp/pkg/maxsize"
)

type seen struct {
	method, path, auth, ua, accept, contentType, body string
}

func newServer(t *testing.T, status int, reply string, got *seen) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*got = seen{
			method:      r.Method,
			path:        r.URL.Path,
			auth:        r.Header.Get("Authorization"),
			ua:          r.Header.Get("User-Agent"),
			accept:      r.Header.Get("Accept"),
			contentType: r.Header.Get("Content-Type"),
			body:        strings.TrimSpace(string(b)),
		}
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDoHeaders(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func(c *Client) ([]byte, error)
		want   seen
		client []Option
	}{{
		name: "GET as app",
		call: func(c *Client) ([]byte, error) {
			return c.Get(ctx, "/app/installations", Bearer("jwt"))
		},
		want: seen{
			method: http.MethodGet,
			path:   "/app/installations",
			auth:   "Bearer jwt",
			ua:     DefaultUserAgent,
			accept: DefaultAccept,
		},
	}, {
		name: "POST as installation",
		call: func(c *Client) ([]byte, error) {
			return c.Post(ctx, "repos/o/r/statuses/abc", Token("ghs_123"), []byte(`{"state":"pending"}`))
		},
		want: seen{
			method:      http.MethodPost,
			path:        "/repos/o/r/statuses/abc",
			auth:        "token ghs_123",
			ua:          DefaultUserAgent,
			accept:      DefaultAccept,
			contentType: "application/json",
			body:        `{"state":"pending"}`,
		},
	}, {
		name: "custom headers",
		call: func(c *Client) ([]byte, error) {
			return c.Delete(ctx, "/installation/token", Token("t"))
		},
		client: []Option{WithUserAgent("my-app/1.0"), WithAccept("application/vnd.github+json")},
		want: seen{
			method: http.MethodDelete,
			path:   "/installation/token",
			auth:   "token t",
			ua:     "my-app/1.0",
			accept: "application/vnd.github+json",
		},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got seen
			srv := newServer(t, http.StatusOK, `{"ok":true}`, &got)
			c := New(append([]Option{WithBaseURL(srv.URL + "/")}, tt.client...)...)

			body, err := tt.call(c)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if string(body) != `{"ok":true}` {
				t.Errorf("body: got = %q, wanted = %q", body, `{"ok":true}`)
			}
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(seen{})); diff != "" {
				t.Errorf("request (-want +got):\n%s", diff)
			}
		})
	}
}

func TestURL(t *testing.T) {
	c := New(WithBaseURL("https://ghe.example.com/api/v3/"))
	tests := map[string]string{
		"/app/installations":                 "https://ghe.example.com/api/v3/app/installations",
		"installation/repositories":          "https://ghe.example.com/api/v3/installation/repositories",
		"https://api.github.com/repos/o/r/1": "https://api.github.com/repos/o/r/1",
	}
	for in, want := range tests {
		if got := c.URL(in); got != want {
			t.Errorf("URL(%q): got = %q, wanted = %q", in, got, want)
		}
	}
}

func TestStatusError(t *testing.T) {
	var got seen
	srv := newServer(t, http.StatusUnauthorized, `{"message":"Bad credentials"}`, &got)
	c := New(WithBaseURL(srv.URL))

	_, err := c.Get(context.Background(), "/app/installations", Bearer("expired"))
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("Get(): got = %v, wanted StatusError", err)
	}
	if serr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status: got = %d, wanted = %d", serr.StatusCode, http.StatusUnauthorized)
	}
	if !strings.Contains(serr.Error(), "Bad credentials") {
		t.Errorf("Error() = %q, wanted the response message", serr.Error())
	}
	var gherr *github.ErrorResponse
	if !errors.As(err, &gherr) {
		t.Fatalf("Get(): got = %v, wanted it to wrap a github.ErrorResponse", err)
	}
	if gherr.Message != "Bad credentials" {
		t.Errorf("message: got = %q, wanted = %q", gherr.Message, "Bad credentials")
	}
	if got.auth != "Bearer expired" {
		t.Errorf("auth: got = %q, wanted = %q", got.auth, "Bearer expired")
	}
}

func TestStatusErrorCodes(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var got seen
			srv := newServer(t, status, `{"message":"nope"}`, &got)
			c := New(WithBaseURL(srv.URL))

			body, err := c.Post(context.Background(), "/repos/o/r/statuses/abc", Token("t"), []byte(`{"state":"pending"}`))
			if body != nil {
				t.Errorf("body: got = %q, wanted none", body)
			}
			var serr *StatusError
			if !errors.As(err, &serr) {
				t.Fatalf("Post(): got = %v, wanted StatusError", err)
			}
			if serr.StatusCode != status {
				t.Errorf("status: got = %d, wanted = %d", serr.StatusCode, status)
			}
		})
	}
}

func TestAccepted(t *testing.T) {
	var got seen
	srv := newServer(t, http.StatusAccepted, `{"queued":true}`, &got)
	c := New(WithBaseURL(srv.URL))

	body, err := c.Get(context.Background(), "/repos/o/r/stats/contributors", Token("t"))
	if err != nil {
		t.Fatalf("Get(): %v", err)
	}
	if string(body) != `{"queued":true}` {
		t.Errorf("body: got = %q, wanted = %q", body, `{"queued":true}`)
	}
}

func TestAbsoluteURL(t *testing.T) {
	var got seen
	srv := newServer(t, http.StatusOK, `[]`, &got)
	c := New(WithBaseURL("https://api.github.invalid"))

	if _, err := c.Get(context.Background(), srv.URL+"/repos/o/r/pulls?state=open", Token("t")); err != nil {
		t.Fatalf("Get(): %v", err)
	}
	if got.path != "/repos/o/r/pulls" {
		t.Errorf("path: got = %q, wanted = %q", got.path, "/repos/o/r/pulls")
	}
}

func TestTransportError(t *testing.T) {
	// Grab a free port and close it so the connection is refused.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	c := New(WithBaseURL("http://" + addr))
	_, err = c.Get(context.Background(), "/app/installations", Bearer("jwt"))
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Get(): got = %v, wanted TransportError", err)
	}
}

func TestMaxResponseSize(t *testing.T) {
	var got seen
	srv := newServer(t, http.StatusOK, strings.Repeat("a", 100), &got)
	c := New(WithBaseURL(srv.URL), WithMaxResponseSize(10))

	_, err := c.Get(context.Background(), "/big", Token("t"))
	if !errors.Is(err, maxsize.ErrTooLarge) {
		t.Errorf("Get(): got = %v, wanted ErrTooLarge", err)
	}
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Errorf("Get(): got = %T, wanted TransportError", err)
	}
}

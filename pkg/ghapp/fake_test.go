// Copyright 2025 Chainguard, Inc.
// SPDX-License-Identifier: Apache-2.0

package ghapp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/cloudevents/sdk-go/v2/protocol"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/go-github/v75/github"
	"github.com/octo-sts/ghapp/pkg/ghclient"
	testingclock "k8s.io/utils/clock/testing"
)

const (
	testAppID   = "26261"
	testInstall = int64(42)
	testToken   = "abc"
)

var epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// fakeGitHub serves the subset of the REST API the accessors use. Tokens it
// hands out expire at whatever expiresAt returns.
type fakeGitHub struct {
	t   *testing.T
	mux *http.ServeMux
	srv *httptest.Server
	pub *rsa.PublicKey

	mu         sync.Mutex
	tokenPosts int
	revoked    int
	expiresAt  func() time.Time
	tokenReply func(w http.ResponseWriter)
	onRevoke   func()
	failRepos  map[string]bool
	statuses   []Status
}

func newFakeGitHub(t *testing.T, pub *rsa.PublicKey, expiresAt func() time.Time) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{
		t:         t,
		mux:       http.NewServeMux(),
		pub:       pub,
		expiresAt: expiresAt,
		failRepos: map[string]bool{},
	}
	f.srv = httptest.NewServer(f.mux)
	t.Cleanup(f.srv.Close)

	f.mux.HandleFunc("GET /app/installations", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkAssertion(w, r) {
			return
		}
		json.NewEncoder(w).Encode([]*github.Installation{f.installation()})
	})
	f.mux.HandleFunc("GET /app/installations/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkAssertion(w, r) {
			return
		}
		if r.PathValue("id") != strconv.FormatInt(testInstall, 10) {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(f.installation())
	})
	f.mux.HandleFunc("POST /app/installations/{id}/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkAssertion(w, r) {
			return
		}
		f.mu.Lock()
		f.tokenPosts++
		reply := f.tokenReply
		f.mu.Unlock()
		if reply != nil {
			reply(w)
			return
		}
		json.NewEncoder(w).Encode(github.InstallationToken{
			Token:     github.Ptr(testToken),
			ExpiresAt: &github.Timestamp{Time: f.expiresAt()},
		})
	})
	f.mux.HandleFunc("DELETE /installation/token", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkToken(w, r) {
			return
		}
		f.mu.Lock()
		f.revoked++
		hook := f.onRevoke
		f.mu.Unlock()
		if hook != nil {
			hook()
		}
		w.WriteHeader(http.StatusNoContent)
	})
	f.mux.HandleFunc("GET /installation/repositories", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkToken(w, r) {
			return
		}
		json.NewEncoder(w).Encode(github.ListRepositories{
			TotalCount:   github.Ptr(2),
			Repositories: []*github.Repository{f.repo("org", "one"), f.repo("org", "two")},
		})
	})
	f.mux.HandleFunc("GET /repos/{owner}/{repo}/pulls", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkToken(w, r) {
			return
		}
		f.mu.Lock()
		fail := f.failRepos[r.PathValue("repo")]
		f.mu.Unlock()
		if fail {
			http.Error(w, `{"message":"Server Error"}`, http.StatusInternalServerError)
			return
		}
		if got := r.URL.Query().Get("state"); got != "open" && got != "closed" && got != "all" {
			http.Error(w, "bad state "+got, http.StatusUnprocessableEntity)
			return
		}
		json.NewEncoder(w).Encode([]*github.PullRequest{f.pull(r.PathValue("owner"), r.PathValue("repo"), 1)})
	})
	f.mux.HandleFunc("GET /repos/{owner}/{repo}/pulls/{number}", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkToken(w, r) {
			return
		}
		n, err := strconv.Atoi(r.PathValue("number"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(f.pull(r.PathValue("owner"), r.PathValue("repo"), n))
	})
	f.mux.HandleFunc("GET /repos/{owner}/{repo}/statuses/{sha}", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkToken(w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		// Most recent first, like GitHub.
		out := make([]Status, 0, len(f.statuses))
		for i := len(f.statuses) - 1; i >= 0; i-- {
			out = append(out, f.statuses[i])
		}
		json.NewEncoder(w).Encode(out)
	})
	f.mux.HandleFunc("POST /repos/{owner}/{repo}/statuses/{sha}", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkToken(w, r) {
			return
		}
		var req statusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		created := Status{
			ID:          int64(len(f.statuses) + 1),
			State:       req.State,
			TargetURL:   req.TargetURL,
			Description: req.Description,
			Context:     req.Context,
		}
		f.statuses = append(f.statuses, created)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(created)
	})
	f.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
		fmt.Fprintf(w, "%s %s not implemented\n", r.Method, r.URL.Path)
	})
	return f
}

func (f *fakeGitHub) installation() *github.Installation {
	return &github.Installation{
		ID:              github.Ptr(testInstall),
		Account:         &github.User{Login: github.Ptr("org")},
		AccessTokensURL: github.Ptr(fmt.Sprintf("%s/app/installations/%d/access_tokens", f.srv.URL, testInstall)),
		RepositoriesURL: github.Ptr(f.srv.URL + "/installation/repositories"),
	}
}

func (f *fakeGitHub) repo(owner, name string) *github.Repository {
	return &github.Repository{
		Name:     github.Ptr(name),
		FullName: github.Ptr(owner + "/" + name),
		PullsURL: github.Ptr(fmt.Sprintf("%s/repos/%s/%s/pulls{/number}", f.srv.URL, owner, name)),
	}
}

func (f *fakeGitHub) pull(owner, repo string, n int) *github.PullRequest {
	return &github.PullRequest{
		Number:      github.Ptr(n),
		Title:       github.Ptr("Add feature"),
		HTMLURL:     github.Ptr(fmt.Sprintf("https://github.com/%s/%s/pull/%d", owner, repo, n)),
		StatusesURL: github.Ptr(fmt.Sprintf("%s/repos/%s/%s/statuses/deadbeef", f.srv.URL, owner, repo)),
		Head:        &github.PullRequestBranch{SHA: github.Ptr("deadbeef")},
	}
}

// checkAssertion verifies that the request carries an App assertion signed by
// the expected key for the expected App.
func (f *fakeGitHub) checkAssertion(w http.ResponseWriter, r *http.Request) bool {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		http.Error(w, `{"message":"A JSON web token could not be decoded"}`, http.StatusUnauthorized)
		return false
	}
	claims := &jwt.RegisteredClaims{}
	p := &jwt.Parser{ValidMethods: []string{"RS256"}, SkipClaimsValidation: true}
	if _, err := p.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return f.pub, nil
	}); err != nil || claims.Issuer != testAppID {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
		return false
	}
	return true
}

func (f *fakeGitHub) checkToken(w http.ResponseWriter, r *http.Request) bool {
	if got := r.Header.Get("Authorization"); got != "token "+testToken {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
		return false
	}
	return true
}

func (f *fakeGitHub) posts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenPosts
}

type recordingCE struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recordingCE) Send(_ context.Context, e event.Event) protocol.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingCE) Request(_ context.Context, _ event.Event) (*event.Event, protocol.Result) {
	return nil, nil
}

func (r *recordingCE) StartReceiver(_ context.Context, _ interface{}) error {
	return nil
}

type fixture struct {
	app *App
	gh  *fakeGitHub
	clk *testingclock.FakePassiveClock
	ce  *recordingCE
}

// newFixture writes a fresh key to disk, loads the App from it and points it
// at a fake GitHub whose tokens expire at expiresAt(clock now).
func newFixture(t *testing.T, expiresAt func(now time.Time) time.Time) *fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "private-key.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0o600); err != nil {
		t.Fatal(err)
	}

	clk := testingclock.NewFakePassiveClock(epoch)
	gh := newFakeGitHub(t, &key.PublicKey, func() time.Time { return expiresAt(clk.Now()) })
	ce := &recordingCE{}
	app, err := FromPrivateKeyFile(path, testAppID,
		WithClient(ghclient.New(ghclient.WithBaseURL(gh.srv.URL))),
		WithClock(clk),
		WithEventClient(ce, ""),
	)
	if err != nil {
		t.Fatalf("FromPrivateKeyFile() = %v", err)
	}
	return &fixture{app: app, gh: gh, clk: clk, ce: ce}
}

func inAnHour(now time.Time) time.Time {
	return now.Add(time.Hour)
}

func (fx *fixture) installation(t *testing.T) *Installation {
	t.Helper()
	inst, err := fx.app.Installation(context.Background(), testInstall)
	if err != nil {
		t.Fatalf("Installation() = %v", err)
	}
	return inst
}

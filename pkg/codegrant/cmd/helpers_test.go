package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nativeoauth/codegrant/pkg/system"
)

const (
	testAppKey    = "abc"
	testAppSecret = "s3cr3t-value"
	testCode      = "ABC123"
)

// fakeProvider serves the authorization, token and profile endpoints of the
// provider. The token endpoint answers 201 like the real one.
type fakeProvider struct {
	server      *httptest.Server
	tokenCalls  atomic.Int32
	tokenStatus int
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{tokenStatus: http.StatusCreated}
	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login?requestId="+testCode, http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("login"))
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("client_id") != testAppKey || r.PostForm.Get("client_secret") != testAppSecret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != testCode {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
		case "refresh_token":
			if r.PostForm.Get("refresh_token") == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		default:
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n := p.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.tokenStatus)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  fmt.Sprintf("access-%d", n),
			"refresh_token": fmt.Sprintf("refresh-%d", n),
			"token_type":    "Bearer",
			"expires_in":    1200,
		})
	})
	mux.HandleFunc("/openapi/port/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"UserId": "12345", "Name": "Demo User", "ClientKey": "ck"})
	})
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

// writeCredentials writes a credentials file with one "demo" app whose
// redirect URL points at a free loopback port.
func (p *fakeProvider) writeCredentials(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	entries := []map[string]any{{
		"AppName":               "demo",
		"AppKey":                testAppKey,
		"AppSecret":             testAppSecret,
		"RedirectUrls":          []string{"http://" + addr + "/redirect"},
		"AuthorizationEndpoint": p.server.URL + "/authorize",
		"TokenEndpoint":         p.server.URL + "/token",
		"OpenApiBaseUrl":        p.server.URL + "/openapi/",
	}}
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "cred.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// redirectingBrowser plays the user's browser: it follows the authorization
// URL straight to the redirect URI with code and the given state.
func redirectingBrowser(state func(sent string) string) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		callback := q.Get("redirect_uri") + "?" + url.Values{
			"code":  {testCode},
			"state": {state(q.Get("state"))},
		}.Encode()
		go func() {
			resp, err := http.Get(callback)
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}
}

func echoState(sent string) string { return sent }

type result struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, ctx context.Context, browser func(string) error, args ...string) result {
	t.Helper()
	if ctx == nil {
		ctx = context.Background()
	}
	var stdout, stderr bytes.Buffer
	root := NewRootCommand(Config{
		ConfigPath:   filepath.Join(t.TempDir(), "missing.yaml"),
		OutputWriter: &stdout,
		Context:      ctx,
		Logger:       system.NewTestLogger(),
		OpenBrowser:  browser,
	})
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// freeAddress reserves an ephemeral loopback port and releases it again.
func freeAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func testConfig(t *testing.T, tokenURL string) *OAuthConfig {
	t.Helper()
	cfg, err := NewOAuthConfig(OAuthParams{
		ClientID:         "abc",
		ClientSecret:     "s3cr3t-value",
		RedirectURI:      fmt.Sprintf("http://%s/redirect", freeAddress(t)),
		AuthorizationURL: "http://127.0.0.1:1/authorize",
		TokenURL:         tokenURL,
		State:            "XYZ-state-token",
	})
	require.NoError(t, err)
	return cfg
}

func callbackURL(cfg *OAuthConfig, query url.Values) string {
	u := cfg.RedirectURI()
	u.RawQuery = query.Encode()
	return u.String()
}

func get(t *testing.T, rawURL string) *http.Response {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// browserSending returns an OpenBrowser replacement that delivers query to
// the callback listener the way a redirected browser tab would.
func browserSending(cfg *OAuthConfig, query url.Values) func(string) error {
	return func(string) error {
		go func() {
			resp, err := http.Get(callbackURL(cfg, query))
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}
}

type exchangeCall struct {
	grantType string
	value     string
}

type fakeExchanger struct {
	mu     sync.Mutex
	calls  []exchangeCall
	record *TokenRecord
	err    error
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, _ *OAuthConfig, code string) (*TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, exchangeCall{grantType: GrantTypeAuthorizationCode, value: code})
	return f.record, f.err
}

func (f *fakeExchanger) ExchangeRefresh(_ context.Context, _ *OAuthConfig, refreshToken string) (*TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, exchangeCall{grantType: GrantTypeRefreshToken, value: refreshToken})
	return f.record, f.err
}

func (f *fakeExchanger) Calls() []exchangeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]exchangeCall(nil), f.calls...)
}

type fakeAuthorizer struct {
	resp *AuthorizationResponse
	err  error
}

func (f *fakeAuthorizer) RequestAuthorization(context.Context, *OAuthConfig) (*AuthorizationResponse, error) {
	return f.resp, f.err
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nativeoauth/codegrant/pkg/system"
)

// tokenServer mimics a provider token endpoint that answers with status on
// success and rotates access tokens on every call.
func tokenServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("client_id") != "abc" || r.PostForm.Get("client_secret") != "s3cr3t-value" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		n := calls.Add(1)
		switch r.PostForm.Get("grant_type") {
		case GrantTypeAuthorizationCode:
			if r.PostForm.Get("code") != "ABC123" || r.PostForm.Get("redirect_uri") == "" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
		case GrantTypeRefreshToken:
			if r.PostForm.Get("refresh_token") == "" || r.PostForm.Get("redirect_uri") == "" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unsupported_grant_type"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":             fmt.Sprintf("access-%d", n),
			"refresh_token":            fmt.Sprintf("refresh-%d", n),
			"token_type":               "Bearer",
			"expires_in":               1200,
			"refresh_token_expires_in": 3600,
			"base_uri":                 nil,
		})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestExchangeCode(t *testing.T) {
	t.Run("configured success status yields token", func(t *testing.T) {
		server, _ := tokenServer(t, http.StatusCreated)
		cfg := testConfig(t, server.URL+"/token")
		client := NewTokenClient(WithSuccessStatus(http.StatusCreated), WithLogger(system.NewTestLogger()))

		record, err := client.ExchangeCode(context.Background(), cfg, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, "access-1", record.AccessToken)
		assert.Equal(t, "refresh-1", record.RefreshToken)
		assert.Equal(t, "Bearer", record.TokenType)
		assert.Equal(t, int64(1200), record.ExpiresIn)
		assert.Equal(t, float64(3600), record.Extra["refresh_token_expires_in"])
		assert.False(t, record.Expiry().IsZero())
	})

	t.Run("default success status is 200", func(t *testing.T) {
		server, _ := tokenServer(t, http.StatusOK)
		cfg := testConfig(t, server.URL+"/token")
		client := NewTokenClient()
		assert.Equal(t, http.StatusOK, client.SuccessStatus())

		record, err := client.ExchangeCode(context.Background(), cfg, "ABC123")
		require.NoError(t, err)
		assert.NotEmpty(t, record.AccessToken)
	})

	t.Run("other 2xx status is an error", func(t *testing.T) {
		server, _ := tokenServer(t, http.StatusOK)
		cfg := testConfig(t, server.URL+"/token")
		client := NewTokenClient(WithSuccessStatus(http.StatusCreated))

		_, err := client.ExchangeCode(context.Background(), cfg, "ABC123")
		require.Error(t, err)
		var exErr *TokenExchangeError
		require.ErrorAs(t, err, &exErr)
		assert.Equal(t, http.StatusOK, exErr.StatusCode)
	})

	t.Run("invalid grant carries body", func(t *testing.T) {
		server, _ := tokenServer(t, http.StatusCreated)
		cfg := testConfig(t, server.URL+"/token")
		client := NewTokenClient(WithSuccessStatus(http.StatusCreated))

		_, err := client.ExchangeCode(context.Background(), cfg, "WRONG")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTokenExchange))
		var exErr *TokenExchangeError
		require.ErrorAs(t, err, &exErr)
		assert.Equal(t, http.StatusBadRequest, exErr.StatusCode)
		assert.Equal(t, GrantTypeAuthorizationCode, exErr.GrantType)
		assert.JSONEq(t, `{"error":"invalid_grant"}`, string(exErr.Body))
	})

	t.Run("missing access token is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
		}))
		defer server.Close()
		cfg := testConfig(t, server.URL)
		client := NewTokenClient(WithSuccessStatus(http.StatusCreated))

		_, err := client.ExchangeCode(context.Background(), cfg, "ABC123")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTokenExchange))
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		cfg := testConfig(t, "http://"+freeAddress(t)+"/token")
		client := NewTokenClient()

		_, err := client.ExchangeCode(context.Background(), cfg, "ABC123")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTokenExchange))
	})

	t.Run("empty code", func(t *testing.T) {
		cfg := testConfig(t, "http://127.0.0.1:1/token")
		_, err := NewTokenClient().ExchangeCode(context.Background(), cfg, "")
		assert.True(t, errors.Is(err, ErrMissingCallbackParameter))
	})
}

func TestExchangeRefresh(t *testing.T) {
	server, calls := tokenServer(t, http.StatusCreated)
	cfg := testConfig(t, server.URL+"/token")
	client := NewTokenClient(WithSuccessStatus(http.StatusCreated))

	first, err := client.ExchangeCode(context.Background(), cfg, "ABC123")
	require.NoError(t, err)

	second, err := client.ExchangeRefresh(context.Background(), cfg, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, "access-1", first.AccessToken, "refresh must not modify the previous record")
	assert.Equal(t, int32(2), calls.Load())

	_, err = client.ExchangeRefresh(context.Background(), cfg, "")
	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExchangeDoesNotLogSecrets(t *testing.T) {
	server, _ := tokenServer(t, http.StatusCreated)
	cfg := testConfig(t, server.URL+"/token")
	logger, recorded := system.NewObservedLogger()
	client := NewTokenClient(WithSuccessStatus(http.StatusCreated), WithLogger(logger))

	record, err := client.ExchangeCode(context.Background(), cfg, "ABC123")
	require.NoError(t, err)
	_, err = client.ExchangeCode(context.Background(), cfg, "WRONG")
	require.Error(t, err)

	require.NotZero(t, recorded.Len())
	for _, entry := range recorded.All() {
		text := entry.Message + fmt.Sprint(entry.ContextMap())
		assert.NotContains(t, text, "s3cr3t-value")
		assert.NotContains(t, text, record.AccessToken)
		assert.NotContains(t, text, record.RefreshToken)
	}
}

func TestRequestAuthorization(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/authorize":
			q := r.URL.Query()
			if q.Get("response_type") != "code" || q.Get("client_id") != "abc" || q.Get("state") == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			http.Redirect(w, r, server.URL+"/login?requestId=REQ-42", http.StatusFound)
		case "/login":
			_, _ = w.Write([]byte("login page"))
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		}
	}))
	defer server.Close()

	t.Run("follows redirect and extracts requestId", func(t *testing.T) {
		cfg, err := NewOAuthConfig(OAuthParams{
			ClientID:         "abc",
			ClientSecret:     "s3cr3t-value",
			RedirectURI:      "http://127.0.0.1:49999/redirect",
			AuthorizationURL: server.URL + "/authorize",
			TokenURL:         server.URL + "/token",
		})
		require.NoError(t, err)

		resp, err := NewTokenClient().RequestAuthorization(context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, "REQ-42", resp.RequestID)
		assert.Equal(t, server.URL+"/login?requestId=REQ-42", resp.URL)
	})

	t.Run("non 2xx fails", func(t *testing.T) {
		cfg, err := NewOAuthConfig(OAuthParams{
			ClientID:         "abc",
			RedirectURI:      "http://127.0.0.1:49999/redirect",
			AuthorizationURL: server.URL + "/broken",
			TokenURL:         server.URL + "/token",
		})
		require.NoError(t, err)

		_, err = NewTokenClient().RequestAuthorization(context.Background(), cfg)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrAuthorizationRequest))
		var reqErr *AuthorizationRequestError
		require.ErrorAs(t, err, &reqErr)
		assert.Equal(t, http.StatusInternalServerError, reqErr.StatusCode)
	})
}

func TestRequestAuthorizationErrorRedactsSecret(t *testing.T) {
	addr := freeAddress(t)
	cfg, err := NewOAuthConfig(OAuthParams{
		ClientID:         "abc",
		ClientSecret:     "s3cr3t-value",
		RedirectURI:      "http://127.0.0.1:49999/redirect",
		AuthorizationURL: "http://" + addr + "/authorize",
		TokenURL:         "http://" + addr + "/token",
	})
	require.NoError(t, err)

	_, err = NewTokenClient().RequestAuthorization(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthorizationRequest))
	assert.NotContains(t, err.Error(), "s3cr3t-value")
}

func TestRestyLoggerRedactsQuerySecrets(t *testing.T) {
	logger, recorded := system.NewObservedLogger()
	restyLogger{log: logger}.Errorf("Get %q: dial tcp: refused", "http://127.0.0.1:1/authorize?client_id=abc&client_secret=s3cr3t-value&response_type=code")

	require.Equal(t, 1, recorded.Len())
	msg := recorded.All()[0].Message
	assert.NotContains(t, msg, "s3cr3t-value")
	assert.Contains(t, msg, "client_id=abc")
	assert.Contains(t, msg, "response_type=code")
}

func TestExchangeUnexpectedStatusDoesNotLeakTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"access_token":"leaked-access","refresh_token":"leaked-refresh","id_token":"leaked-id","token_type":"Bearer"}`))
	}))
	defer server.Close()
	cfg := testConfig(t, server.URL+"/token")
	logger, recorded := system.NewObservedLogger()
	client := NewTokenClient(WithSuccessStatus(http.StatusCreated), WithLogger(logger))

	_, err := client.ExchangeCode(context.Background(), cfg, "ABC123")
	require.Error(t, err)
	var exErr *TokenExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, http.StatusOK, exErr.StatusCode)
	assert.Contains(t, string(exErr.Body), "leaked-access", "raw body stays available to callers")

	for _, leaked := range []string{"leaked-access", "leaked-refresh", "leaked-id"} {
		assert.NotContains(t, err.Error(), leaked)
		for _, entry := range recorded.All() {
			assert.NotContains(t, entry.Message+fmt.Sprint(entry.ContextMap()), leaked)
		}
	}
	assert.Contains(t, err.Error(), `"token_type":"Bearer"`)
}

func TestRedactBody(t *testing.T) {
	body := []byte(`{"access_token" : "a\"b", "refresh_token":"r", "error":"invalid_grant"}`)
	got := redactBody(body)
	assert.NotContains(t, got, `a\"b`)
	assert.NotContains(t, got, `"r"`)
	assert.Contains(t, got, `"error":"invalid_grant"`)
	assert.Equal(t, "plain text", redactBody([]byte("plain text")))
}

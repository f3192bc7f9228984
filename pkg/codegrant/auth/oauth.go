package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap/zapcore"
)

const (
	// DefaultCallbackPath is used when the redirect URI carries no path.
	DefaultCallbackPath = "/redirect"

	stateBytes     = 16
	minStateLength = 10
	redacted       = "[REDACTED]"
)

// Secret holds a credential that must never reach logs or printed output.
// Every formatting path renders it as [REDACTED]; Reveal is reserved for
// outbound request bodies.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return s.String() }

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s Secret) Reveal() string { return string(s) }

// OAuthParams is the input to NewOAuthConfig. An empty State is replaced by a
// freshly generated one.
type OAuthParams struct {
	ClientID         string
	ClientSecret     Secret
	RedirectURI      string
	AuthorizationURL string
	TokenURL         string
	State            string
}

// OAuthConfig is the immutable configuration of a single authorization flow.
type OAuthConfig struct {
	clientID         string
	clientSecret     Secret
	redirectURI      *url.URL
	authorizationURL string
	tokenURL         string
	state            string
}

func NewOAuthConfig(p OAuthParams) (*OAuthConfig, error) {
	if strings.TrimSpace(p.ClientID) == "" {
		return nil, errors.New("client-id is required")
	}
	if strings.TrimSpace(p.AuthorizationURL) == "" || strings.TrimSpace(p.TokenURL) == "" {
		return nil, errors.New("authorization and token urls are required")
	}
	redirect, err := parseRedirectURI(p.RedirectURI)
	if err != nil {
		return nil, err
	}
	state := p.State
	if state == "" {
		state, err = NewState()
		if err != nil {
			return nil, err
		}
	} else if len(state) < minStateLength {
		return nil, fmt.Errorf("state must be at least %d characters", minStateLength)
	}
	return &OAuthConfig{
		clientID:         p.ClientID,
		clientSecret:     p.ClientSecret,
		redirectURI:      redirect,
		authorizationURL: p.AuthorizationURL,
		tokenURL:         p.TokenURL,
		state:            state,
	}, nil
}

func parseRedirectURI(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("redirect-uri is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect-uri: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect-uri must use http, got %q", u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("redirect-uri must carry host and port: %s", raw)
	}
	return u, nil
}

// NewState returns a URL-safe random token suitable as OAuth state.
func NewState() (string, error) {
	return randomToken(stateBytes)
}

func randomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func (c *OAuthConfig) ClientID() string         { return c.clientID }
func (c *OAuthConfig) ClientSecret() Secret     { return c.clientSecret }
func (c *OAuthConfig) AuthorizationURL() string { return c.authorizationURL }
func (c *OAuthConfig) TokenURL() string         { return c.tokenURL }
func (c *OAuthConfig) State() string            { return c.state }

func (c *OAuthConfig) RedirectURI() *url.URL {
	u := *c.redirectURI
	return &u
}

// BindAddress is the host:port the callback listener binds to.
func (c *OAuthConfig) BindAddress() string {
	return net.JoinHostPort(c.redirectURI.Hostname(), c.redirectURI.Port())
}

func (c *OAuthConfig) CallbackPath() string {
	if c.redirectURI.Path == "" || c.redirectURI.Path == "/" {
		return DefaultCallbackPath
	}
	return c.redirectURI.Path
}

// AuthCodeURL builds the authorization request URL. It contains the client
// secret and must be passed through RedactURL before being shown.
func (c *OAuthConfig) AuthCodeURL() (string, error) {
	u, err := url.Parse(c.authorizationURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorization url: %w", err)
	}
	q := u.Query()
	for k, v := range c.authorizationParams() {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *OAuthConfig) authorizationParams() map[string]string {
	params := map[string]string{
		"response_type": "code",
		"client_id":     c.clientID,
		"state":         c.state,
		"redirect_uri":  c.redirectURI.String(),
	}
	if c.clientSecret != "" {
		params["client_secret"] = c.clientSecret.Reveal()
	}
	return params
}

func (c *OAuthConfig) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("clientID", c.clientID)
	enc.AddString("redirectURI", c.redirectURI.String())
	enc.AddString("authorizationURL", c.authorizationURL)
	enc.AddString("tokenURL", c.tokenURL)
	return nil
}

// requestId is the authorization code in headless responses.
var sensitiveQueryParams = []string{"client_secret", "code", "requestId", "refresh_token", "access_token"}

// RedactURL masks credential-bearing query parameters.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	q := u.Query()
	changed := false
	for _, key := range sensitiveQueryParams {
		if q.Has(key) {
			q.Set(key, redacted)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

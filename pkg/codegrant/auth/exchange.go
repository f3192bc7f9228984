package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/nativeoauth/codegrant/pkg/metrics"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"

	maxErrorBody = 1 << 20
)

// TokenExchanger performs the two token endpoint interactions.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, cfg *OAuthConfig, code string) (*TokenRecord, error)
	ExchangeRefresh(ctx context.Context, cfg *OAuthConfig, refreshToken string) (*TokenRecord, error)
}

// AuthorizationRequester issues the authorization request without a browser.
type AuthorizationRequester interface {
	RequestAuthorization(ctx context.Context, cfg *OAuthConfig) (*AuthorizationResponse, error)
}

// AuthorizationResponse is where the authorization request ended up after
// redirects. RequestID is empty when the final URL carries no requestId.
type AuthorizationResponse struct {
	URL       string
	RequestID string
}

// TokenClient talks to the provider's authorization and token endpoints. It
// holds no per-flow state and is safe for concurrent use.
type TokenClient struct {
	http          *resty.Client
	successStatus int
	log           *zap.SugaredLogger
	now           func() time.Time
}

type TokenClientOption func(*TokenClient)

// WithSuccessStatus sets the status the token endpoint answers a successful
// exchange with. Most providers use 200; some document 201.
func WithSuccessStatus(status int) TokenClientOption {
	return func(c *TokenClient) {
		if status > 0 {
			c.successStatus = status
		}
	}
}

func WithHTTPClient(hc *http.Client) TokenClientOption {
	return func(c *TokenClient) {
		if hc != nil {
			c.http = resty.NewWithClient(hc)
		}
	}
}

func WithLogger(log *zap.SugaredLogger) TokenClientOption {
	return func(c *TokenClient) {
		if log != nil {
			c.log = log
		}
	}
}

func WithTimeout(timeout time.Duration) TokenClientOption {
	return func(c *TokenClient) {
		if timeout > 0 {
			c.http.SetTimeout(timeout)
		}
	}
}

func WithUserAgent(userAgent string) TokenClientOption {
	return func(c *TokenClient) {
		if userAgent != "" {
			c.http.SetHeader("User-Agent", userAgent)
		}
	}
}

func NewTokenClient(opts ...TokenClientOption) *TokenClient {
	c := &TokenClient{
		http:          resty.New().SetTimeout(30 * time.Second),
		successStatus: http.StatusOK,
		log:           zap.NewNop().Sugar(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetLogger(restyLogger{log: c.log})
	return c
}

func (c *TokenClient) SuccessStatus() int { return c.successStatus }

func (c *TokenClient) ExchangeCode(ctx context.Context, cfg *OAuthConfig, code string) (*TokenRecord, error) {
	if code == "" {
		return nil, &MissingCallbackParameterError{Param: "code"}
	}
	return c.exchange(ctx, cfg, GrantTypeAuthorizationCode, map[string]string{
		"grant_type":   GrantTypeAuthorizationCode,
		"code":         code,
		"redirect_uri": cfg.RedirectURI().String(),
	})
}

func (c *TokenClient) ExchangeRefresh(ctx context.Context, cfg *OAuthConfig, refreshToken string) (*TokenRecord, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	return c.exchange(ctx, cfg, GrantTypeRefreshToken, map[string]string{
		"grant_type":    GrantTypeRefreshToken,
		"refresh_token": refreshToken,
		"redirect_uri":  cfg.RedirectURI().String(),
	})
}

func (c *TokenClient) exchange(ctx context.Context, cfg *OAuthConfig, grantType string, form map[string]string) (*TokenRecord, error) {
	form["client_id"] = cfg.ClientID()
	if secret := cfg.ClientSecret(); secret != "" {
		form["client_secret"] = secret.Reveal()
	}

	start := c.now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFormData(form).
		Post(cfg.TokenURL())
	metrics.TokenExchangeDuration.WithLabelValues(grantType).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TokenExchanges.WithLabelValues(grantType, "error").Inc()
		c.log.Warnw("Token request failed", "grantType", grantType, "error", err)
		return nil, &TokenExchangeError{GrantType: grantType, Err: err}
	}

	status := resp.StatusCode()
	metrics.TokenExchanges.WithLabelValues(grantType, strconv.Itoa(status)).Inc()
	body := truncate(resp.Body(), maxErrorBody)
	if status != c.successStatus {
		c.log.Warnw("Token endpoint returned unexpected status", "grantType", grantType, "status", status, "expected", c.successStatus)
		return nil, &TokenExchangeError{GrantType: grantType, StatusCode: status, Body: body}
	}

	record, err := newTokenRecord(resp.Body(), c.now())
	if err != nil {
		return nil, &TokenExchangeError{GrantType: grantType, StatusCode: status, Err: err}
	}
	c.log.Infow("Token exchange succeeded", "grantType", grantType, "token", record, "duration", time.Since(start).String())
	return record, nil
}

// RequestAuthorization GETs the authorization URL and reports the URL the
// provider finally resolved to. Providers that resolve the request without
// user interaction put the authorization code in its requestId parameter.
func (c *TokenClient) RequestAuthorization(ctx context.Context, cfg *OAuthConfig) (*AuthorizationResponse, error) {
	authURL, err := cfg.AuthCodeURL()
	if err != nil {
		return nil, err
	}
	c.log.Infow("Requesting authorization URL", "url", RedactURL(authURL))
	resp, err := c.http.R().SetContext(ctx).Get(authURL)
	if err != nil {
		return nil, &AuthorizationRequestError{Err: redactURLError(err)}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, &AuthorizationRequestError{StatusCode: resp.StatusCode(), Body: truncate(resp.Body(), maxErrorBody)}
	}
	final := authURL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		final = raw.Request.URL.String()
	}
	parsed, err := url.Parse(final)
	if err != nil {
		return nil, &AuthorizationRequestError{Err: fmt.Errorf("invalid final url: %w", err)}
	}
	return &AuthorizationResponse{URL: final, RequestID: parsed.Query().Get("requestId")}, nil
}

// redactURLError masks the credentials net/http echoes back in the request
// URL of a transport error.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = RedactURL(urlErr.URL)
	}
	return err
}

var (
	secretQueryValue = regexp.MustCompile(`\b((?:client_secret|code|requestId|refresh_token|access_token)=)[^&\s"]+`)
	secretJSONValue  = regexp.MustCompile(`("(?:access_token|refresh_token|id_token)"\s*:\s*)"(?:[^"\\]|\\.)*"`)
)

// restyLogger sends resty's diagnostics to zap with credential query values
// masked.
type restyLogger struct {
	log *zap.SugaredLogger
}

func (l restyLogger) Errorf(format string, v ...any) { l.log.Error(redactText(format, v...)) }
func (l restyLogger) Warnf(format string, v ...any)  { l.log.Warn(redactText(format, v...)) }
func (l restyLogger) Debugf(format string, v ...any) { l.log.Debug(redactText(format, v...)) }

func redactText(format string, v ...any) string {
	return secretQueryValue.ReplaceAllString(fmt.Sprintf(format, v...), "${1}"+redacted)
}

// redactBody masks token values in a response body kept for error messages.
func redactBody(body []byte) string {
	return secretJSONValue.ReplaceAllString(string(body), `${1}"`+redacted+`"`)
}

func truncate(body []byte, limit int) []byte {
	if len(body) <= limit {
		return body
	}
	return body[:limit]
}

var _ TokenExchanger = (*TokenClient)(nil)
var _ AuthorizationRequester = (*TokenClient)(nil)


package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap/zapcore"
	"golang.org/x/oauth2"
)

// TokenRecord is the result of a token exchange. A refresh produces a new
// record; existing records are never modified.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        string
	ObtainedAt   time.Time
	// Extra holds the complete decoded provider response.
	Extra map[string]any
}

// TokenSummary is a token-free view of a TokenRecord for display.
type TokenSummary struct {
	TokenType       string    `json:"tokenType,omitempty" yaml:"tokenType,omitempty"`
	ExpiresAt       time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	Scope           string    `json:"scope,omitempty" yaml:"scope,omitempty"`
	HasRefreshToken bool      `json:"hasRefreshToken" yaml:"hasRefreshToken"`
	Subject         string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	AccessToken     string    `json:"accessToken,omitempty" yaml:"accessToken,omitempty"`
	RefreshToken    string    `json:"refreshToken,omitempty" yaml:"refreshToken,omitempty"`
}

func newTokenRecord(body []byte, now time.Time) (*TokenRecord, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	record := &TokenRecord{
		AccessToken:  stringValue(raw["access_token"]),
		RefreshToken: stringValue(raw["refresh_token"]),
		TokenType:    stringValue(raw["token_type"]),
		Scope:        stringValue(raw["scope"]),
		ExpiresIn:    int64Value(raw["expires_in"]),
		ObtainedAt:   now,
		Extra:        raw,
	}
	if record.AccessToken == "" {
		return nil, errors.New("token response carries no access_token")
	}
	return record, nil
}

// Expiry is zero when the provider did not report expires_in.
func (t *TokenRecord) Expiry() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return t.ObtainedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

func (t *TokenRecord) OAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry(),
		ExpiresIn:    t.ExpiresIn,
	}
	if len(t.Extra) > 0 {
		token = token.WithExtra(t.Extra)
	}
	return token
}

// Claims decodes the access token as a JWT without verifying its signature.
// Only meant for display.
func (t *TokenRecord) Claims() (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(t.AccessToken, claims); err != nil {
		return nil, fmt.Errorf("access token is not a JWT: %w", err)
	}
	return claims, nil
}

func (t *TokenRecord) Summary(includeTokens bool) TokenSummary {
	summary := TokenSummary{
		TokenType:       t.TokenType,
		ExpiresAt:       t.Expiry(),
		Scope:           t.Scope,
		HasRefreshToken: t.RefreshToken != "",
	}
	if claims, err := t.Claims(); err == nil {
		summary.Subject = subjectFromClaims(claims)
	}
	if includeTokens {
		summary.AccessToken = t.AccessToken
		summary.RefreshToken = t.RefreshToken
	}
	return summary
}

func subjectFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"email", "preferred_username", "uid", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func (t *TokenRecord) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("tokenType", t.TokenType)
	enc.AddInt64("expiresIn", t.ExpiresIn)
	enc.AddBool("hasRefreshToken", t.RefreshToken != "")
	return nil
}

func (t *TokenRecord) String() string {
	return fmt.Sprintf("TokenRecord{type=%s expiresIn=%d refresh=%t}", t.TokenType, t.ExpiresIn, t.RefreshToken != "")
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		var n int64
		_, _ = fmt.Sscan(v, &n)
		return n
	default:
		return 0
	}
}

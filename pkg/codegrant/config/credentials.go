package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/nativeoauth/codegrant/pkg/codegrant/auth"
)

// DefaultOpenAPIBaseURL is used for profile requests when an app does not
// name its own API base.
const DefaultOpenAPIBaseURL = "https://gateway.saxobank.com/sim/openapi/"

// Credential is one application entry of the provider's credentials export.
type Credential struct {
	AppName               string      `json:"AppName"`
	AppKey                string      `json:"AppKey"`
	AppSecret             auth.Secret `json:"AppSecret"`
	RedirectUrls          []string    `json:"RedirectUrls"`
	AuthorizationEndpoint string      `json:"AuthorizationEndpoint"`
	TokenEndpoint         string      `json:"TokenEndpoint"`
	OpenAPIBaseURL        string      `json:"OpenApiBaseUrl,omitempty"`
}

type Credentials struct {
	apps map[string]Credential
}

func LoadCredentials(path string) (*Credentials, error) {
	if path == "" {
		return nil, errors.New("credentials path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Credential
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	creds := &Credentials{apps: make(map[string]Credential, len(entries))}
	for _, entry := range entries {
		if strings.TrimSpace(entry.AppName) == "" {
			return nil, errors.New("credential entry without AppName")
		}
		creds.apps[entry.AppName] = entry
	}
	return creds, nil
}

func (c *Credentials) Find(name string) (*Credential, error) {
	entry, ok := c.apps[name]
	if !ok {
		return nil, fmt.Errorf("app not found in credentials: %s", name)
	}
	return &entry, nil
}

func (c *Credentials) Names() []string {
	names := make([]string, 0, len(c.apps))
	for name := range c.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RedirectURI is the first registered redirect URL; the callback listener
// binds its host and port.
func (c Credential) RedirectURI() (string, error) {
	if len(c.RedirectUrls) == 0 || strings.TrimSpace(c.RedirectUrls[0]) == "" {
		return "", fmt.Errorf("app %s has no redirect url", c.AppName)
	}
	return c.RedirectUrls[0], nil
}

func (c Credential) APIBaseURL() string {
	if c.OpenAPIBaseURL != "" {
		return c.OpenAPIBaseURL
	}
	return DefaultOpenAPIBaseURL
}

// OAuthConfig maps the provider's credential naming onto a flow config with a
// freshly generated state.
func (c Credential) OAuthConfig() (*auth.OAuthConfig, error) {
	redirect, err := c.RedirectURI()
	if err != nil {
		return nil, err
	}
	cfg, err := auth.NewOAuthConfig(auth.OAuthParams{
		ClientID:         c.AppKey,
		ClientSecret:     c.AppSecret,
		RedirectURI:      redirect,
		AuthorizationURL: c.AuthorizationEndpoint,
		TokenURL:         c.TokenEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid credentials for %s: %w", c.AppName, err)
	}
	return cfg, nil
}

package client

import (
	"context"
	"net/http"
)

const usersMePath = "port/v1/users/me"

// UserProfile is the subset of the signed-in user's profile the CLI shows.
type UserProfile struct {
	UserID     string `json:"UserId" yaml:"userId"`
	UserKey    string `json:"UserKey" yaml:"userKey"`
	ClientKey  string `json:"ClientKey" yaml:"clientKey"`
	Name       string `json:"Name" yaml:"name"`
	Language   string `json:"Language,omitempty" yaml:"language,omitempty"`
	Culture    string `json:"Culture,omitempty" yaml:"culture,omitempty"`
	TimeZoneID string `json:"TimeZoneId,omitempty" yaml:"timeZoneId,omitempty"`
}

// Me fetches the profile of the user the access token was issued to.
func (c *Client) Me(ctx context.Context) (*UserProfile, error) {
	var profile UserProfile
	if err := c.do(ctx, http.MethodGet, usersMePath, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

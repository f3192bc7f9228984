package output

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nativeoauth/codegrant/pkg/codegrant/auth"
	"github.com/nativeoauth/codegrant/pkg/codegrant/client"
	"github.com/nativeoauth/codegrant/pkg/codegrant/config"
)

func TestWriteLoginTable(t *testing.T) {
	expires := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	result := LoginResult{
		App: "demo",
		Token: auth.TokenSummary{
			TokenType:       "Bearer",
			ExpiresAt:       expires,
			HasRefreshToken: true,
			Subject:         "UID42",
		},
	}

	var buf bytes.Buffer
	WriteLoginTable(&buf, result)
	out := buf.String()
	assert.Contains(t, out, "APP")
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "2026-03-04T05:06:07Z")
	assert.Contains(t, out, "UID42")
	assert.NotContains(t, out, "access_token")
	assert.NotContains(t, out, "USER_ID")
}

func TestWriteLoginTableWithProfileAndTokens(t *testing.T) {
	result := LoginResult{
		App:     "demo",
		Token:   auth.TokenSummary{AccessToken: "acc", RefreshToken: "ref"},
		Profile: &client.UserProfile{UserID: "12345", Name: "Demo User", ClientKey: "ck"},
	}

	var buf bytes.Buffer
	WriteLoginTable(&buf, result)
	out := buf.String()
	assert.Contains(t, out, "USER_ID")
	assert.Contains(t, out, "Demo User")
	assert.Contains(t, out, "access_token: acc")
	assert.Contains(t, out, "refresh_token: ref")
}

func TestAppTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cred.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"AppName":"demo","AppKey":"abcdef123","AppSecret":"s3cr3t-value","RedirectUrls":["http://127.0.0.1:49999/redirect"],
		 "AuthorizationEndpoint":"https://sim.example.com/authorize","TokenEndpoint":"https://sim.example.com/token"}
	]`), 0o600))
	creds, err := config.LoadCredentials(path)
	require.NoError(t, err)

	apps := SummarizeApps(creds)
	require.Len(t, apps, 1)
	assert.Equal(t, config.DefaultOpenAPIBaseURL, apps[0].APIBaseURL)

	var buf bytes.Buffer
	WriteAppTable(&buf, apps)
	out := buf.String()
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "abcd****")
	assert.NotContains(t, out, "abcdef123")
	assert.NotContains(t, out, "s3cr3t-value")
}

package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nativeoauth/codegrant/pkg/codegrant/auth"
	"github.com/nativeoauth/codegrant/pkg/codegrant/client"
	"github.com/nativeoauth/codegrant/pkg/codegrant/config"
)

// LoginResult is what login and refresh print: the token summary and, when
// the profile lookup ran, the signed-in user.
type LoginResult struct {
	App     string              `json:"app" yaml:"app"`
	Token   auth.TokenSummary   `json:"token" yaml:"token"`
	Profile *client.UserProfile `json:"profile,omitempty" yaml:"profile,omitempty"`
}

func WriteLoginTable(w io.Writer, result LoginResult) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "APP\tTYPE\tEXPIRES\tREFRESH\tSUBJECT")
	_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
		result.App, dash(result.Token.TokenType), formatTime(result.Token.ExpiresAt),
		yesNo(result.Token.HasRefreshToken), dash(result.Token.Subject))
	_ = tw.Flush()

	if result.Profile != nil {
		_, _ = fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "USER_ID\tNAME\tCLIENT_KEY\tLANGUAGE")
		p := result.Profile
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.UserID, p.Name, p.ClientKey, dash(p.Language))
		_ = tw.Flush()
	}

	if result.Token.AccessToken != "" {
		_, _ = fmt.Fprintf(w, "\naccess_token: %s\n", result.Token.AccessToken)
	}
	if result.Token.RefreshToken != "" {
		_, _ = fmt.Fprintf(w, "refresh_token: %s\n", result.Token.RefreshToken)
	}
}

// AppSummary describes one credentials entry without its secret.
type AppSummary struct {
	Name        string `json:"name" yaml:"name"`
	AppKey      string `json:"appKey" yaml:"appKey"`
	RedirectURL string `json:"redirectUrl" yaml:"redirectUrl"`
	TokenURL    string `json:"tokenUrl" yaml:"tokenUrl"`
	APIBaseURL  string `json:"apiBaseUrl" yaml:"apiBaseUrl"`
}

func SummarizeApps(creds *config.Credentials) []AppSummary {
	names := creds.Names()
	apps := make([]AppSummary, 0, len(names))
	for _, name := range names {
		c, err := creds.Find(name)
		if err != nil {
			continue
		}
		redirect := ""
		if len(c.RedirectUrls) > 0 {
			redirect = c.RedirectUrls[0]
		}
		apps = append(apps, AppSummary{
			Name:        c.AppName,
			AppKey:      c.AppKey,
			RedirectURL: redirect,
			TokenURL:    c.TokenEndpoint,
			APIBaseURL:  c.APIBaseURL(),
		})
	}
	return apps
}

func WriteAppTable(w io.Writer, apps []AppSummary) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tAPP_KEY\tREDIRECT\tTOKEN_ENDPOINT")
	for _, a := range apps {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Name, maskKey(a.AppKey), dash(a.RedirectURL), a.TokenURL)
	}
	_ = tw.Flush()
}

// maskKey keeps the first four characters of an app key.
func maskKey(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[:4] + strings.Repeat("*", 4)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

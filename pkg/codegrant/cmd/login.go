package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nativeoauth/codegrant/pkg/codegrant/auth"
	"github.com/nativeoauth/codegrant/pkg/codegrant/client"
	"github.com/nativeoauth/codegrant/pkg/codegrant/config"
	"github.com/nativeoauth/codegrant/pkg/codegrant/output"
)

var errBrowserDisabled = errors.New("browser disabled")

type loginOptions struct {
	headless       bool
	noBrowser      bool
	resolveAuthURL bool
	timeout        time.Duration
	refresh        bool
	profile        bool
	showTokens     bool
}

func NewLoginCommand() *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:               "login <app>",
		Short:             "Run the authorization code flow for an app",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeApps,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			app, oauthCfg, err := resolveApp(rt, args[0])
			if err != nil {
				return err
			}

			settings := rt.settings()
			tokens := rt.TokenClient()
			flow := &auth.Flow{
				Config:                  oauthCfg,
				Tokens:                  tokens,
				Authorizer:              tokens,
				OpenBrowser:             rt.openBrowser,
				ResolveAuthorizationURL: opts.resolveAuthURL || settings.ResolveAuthURL,
				Logger:                  rt.Logger(),
				Out:                     cmd.ErrOrStderr(),
			}
			if opts.headless {
				flow.Mode = auth.ModeHeadless
			}
			if opts.noBrowser || settings.NoBrowser {
				flow.OpenBrowser = func(string) error { return errBrowserDisabled }
			}

			timeout := settings.CallbackTimeout
			if cmd.Flags().Changed("timeout") {
				timeout = opts.timeout
			}
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			record, err := flow.Run(ctx)
			if err != nil {
				return fmt.Errorf("login %s: %w", app.AppName, err)
			}
			if opts.refresh {
				record, err = flow.Refresh(ctx, record)
				if err != nil {
					return fmt.Errorf("refresh %s: %w", app.AppName, err)
				}
			}
			return writeTokenResult(cmd.Context(), rt, app, record, opts.profile, opts.showTokens)
		},
	}

	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Request the authorization URL directly and use its requestId as the code")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	cmd.Flags().BoolVar(&opts.resolveAuthURL, "resolve-auth-url", false, "Follow the authorization URL redirects before opening it")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Maximum time to wait for the flow (default from settings)")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "Exchange the refresh token once after login")
	cmd.Flags().BoolVar(&opts.profile, "profile", false, "Fetch the signed-in user's profile with the new token")
	cmd.Flags().BoolVar(&opts.showTokens, "show-tokens", false, "Include the raw tokens in the output")

	return cmd
}

func resolveApp(rt *runtimeState, name string) (*config.Credential, *auth.OAuthConfig, error) {
	creds, err := rt.Credentials()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	app, err := creds.Find(name)
	if err != nil {
		return nil, nil, err
	}
	oauthCfg, err := app.OAuthConfig()
	if err != nil {
		return nil, nil, err
	}
	return app, oauthCfg, nil
}

func writeTokenResult(ctx context.Context, rt *runtimeState, app *config.Credential, record *auth.TokenRecord, withProfile, showTokens bool) error {
	format, err := output.ParseFormat(rt.OutputFormat())
	if err != nil {
		return err
	}
	result := output.LoginResult{App: app.AppName, Token: record.Summary(showTokens)}
	if withProfile {
		profile, err := fetchProfile(ctx, rt, app, record)
		if err != nil {
			return fmt.Errorf("failed to fetch profile: %w", err)
		}
		result.Profile = profile
	}
	if format == output.FormatTable {
		output.WriteLoginTable(rt.Writer(), result)
		return nil
	}
	return output.WriteObject(rt.Writer(), format, result)
}

func fetchProfile(ctx context.Context, rt *runtimeState, app *config.Credential, record *auth.TokenRecord) (*client.UserProfile, error) {
	c, err := client.New(
		client.WithServer(app.APIBaseURL()),
		client.WithToken(record.OAuth2Token()),
		client.WithUserAgent(rt.userAgent()),
		client.WithTimeout(rt.httpTimeout()),
	)
	if err != nil {
		return nil, err
	}
	return c.Me(ctx)
}

func completeApps(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	rt, err := getRuntime(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if err := rt.EnsureConfigLoaded(); err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	creds, err := rt.Credentials()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return creds.Names(), cobra.ShellCompDirectiveNoFileComp
}

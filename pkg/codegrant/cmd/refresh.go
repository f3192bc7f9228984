package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nativeoauth/codegrant/pkg/codegrant/auth"
)

func NewRefreshCommand() *cobra.Command {
	var (
		refreshToken string
		profile      bool
		showTokens   bool
	)
	cmd := &cobra.Command{
		Use:               "refresh <app>",
		Short:             "Exchange a refresh token for a new token set",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeApps,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if refreshToken == "" {
				refreshToken = os.Getenv("CODEGRANT_REFRESH_TOKEN")
			}
			if refreshToken == "" {
				return fmt.Errorf("--refresh-token or CODEGRANT_REFRESH_TOKEN is required: %w", auth.ErrNoRefreshToken)
			}
			app, oauthCfg, err := resolveApp(rt, args[0])
			if err != nil {
				return err
			}
			record, err := rt.TokenClient().ExchangeRefresh(cmd.Context(), oauthCfg, refreshToken)
			if err != nil {
				return fmt.Errorf("refresh %s: %w", app.AppName, err)
			}
			return writeTokenResult(cmd.Context(), rt, app, record, profile, showTokens)
		},
	}

	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token to exchange")
	cmd.Flags().BoolVar(&profile, "profile", false, "Fetch the signed-in user's profile with the new token")
	cmd.Flags().BoolVar(&showTokens, "show-tokens", false, "Include the raw tokens in the output")

	return cmd
}

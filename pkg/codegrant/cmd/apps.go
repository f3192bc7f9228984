package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nativeoauth/codegrant/pkg/codegrant/output"
)

func NewAppsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List apps in the credentials file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			creds, err := rt.Credentials()
			if err != nil {
				return fmt.Errorf("failed to load credentials: %w", err)
			}
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			apps := output.SummarizeApps(creds)
			if format == output.FormatTable {
				output.WriteAppTable(rt.Writer(), apps)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, apps)
		},
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nativeoauth/codegrant/pkg/codegrant/output"
	"github.com/nativeoauth/codegrant/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show codegrant version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetBuildInfo()

			// Works without a runtime so the command can be tested standalone.
			rt, _ := getRuntime(cmd)
			writer := cmd.OutOrStdout()
			if rt != nil {
				writer = rt.Writer()
				if outputFormat == "" {
					outputFormat = rt.outputFormat
				}
			}

			switch output.Format(outputFormat) {
			case output.FormatJSON, output.FormatYAML:
				return output.WriteObject(writer, output.Format(outputFormat), info)
			default:
				_, _ = fmt.Fprintln(writer, info.String())
				return nil
			}
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: json, yaml")

	return cmd
}

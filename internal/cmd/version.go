package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func versionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "metrink %s (built %s)\n", info.Version, info.BuildDate)
			return err
		},
	}
}

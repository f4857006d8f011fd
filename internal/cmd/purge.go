package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metrink/metrink-go/internal/app"
)

func purgeCommand(loader *settingsLoader, info BuildInfo) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete samples and alert history past retention",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loader.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("days") {
				settings.Retention.Days = days
			}
			// purge only needs storage
			settings.HTTP.Enabled = false
			settings.MQTT.Enabled = false

			a, err := app.New(cmd.Context(), settings, info.Version)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.WithoutCancel(cmd.Context())) }()

			res, err := a.Purge(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d samples and %d history entries\n", res.Samples, res.History)
			return err
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "override retention.days for this run")
	return cmd
}

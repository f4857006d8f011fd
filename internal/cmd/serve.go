package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/metrink/metrink-go/internal/app"
)

func serveCommand(loader *settingsLoader, info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run ingest, alerting and the background tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loader.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, settings, info.Version)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()
			return a.Run(ctx)
		},
	}
}

// Package cmd defines the metrink command line.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/metrink/metrink-go/internal/conf"
)

// BuildInfo identifies the binary.
type BuildInfo struct {
	Version   string
	BuildDate string
}

// settingsLoader loads configuration once the --config flag is parsed.
type settingsLoader struct {
	v          *viper.Viper
	configFile string
	settings   *conf.Settings
}

func (l *settingsLoader) load() (*conf.Settings, error) {
	if l.settings != nil {
		return l.settings, nil
	}
	s, err := conf.Load(l.v, l.configFile)
	if err != nil {
		return nil, err
	}
	conf.SetSettings(s)
	l.settings = s
	return s, nil
}

// RootCommand returns the metrink root command with every subcommand.
func RootCommand(info BuildInfo) *cobra.Command {
	loader := &settingsLoader{v: conf.NewViper()}

	root := &cobra.Command{
		Use:           "metrink",
		Short:         "Metric collection, alerting and forecasting service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&loader.configFile, "config", "c", "", "path to the YAML config file")
	root.PersistentFlags().String("log-level", "", "override log.level")
	_ = loader.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		serveCommand(loader, info),
		purgeCommand(loader, info),
		forecastCommand(),
		versionCommand(info),
	)
	return root
}

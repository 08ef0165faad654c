package main

import (
	"github.com/spf13/cobra"

	"mediagw/internal/app"
	"mediagw/internal/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "mediagw",
		Short:         "Media CRUD gateway over S3-compatible object storage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a config file (yaml, toml or json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newReconcileCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// load reads the configuration and installs the logger.
func (o *rootOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}

	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	if err := app.SetupLogging(cmd.ErrOrStderr(), cfg.LogLevel); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

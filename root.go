package main

import (
	"catalog-sync/pkg/config"
	"catalog-sync/pkg/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// options holds the flags shared by every command.
type options struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "catalog-sync",
		Short:         "Rebuild the media catalog from the wiki timeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "catalog-sync.toml", "Configuration file path")

	rootCmd.AddCommand(newSyncCommand(opts))
	rootCmd.AddCommand(newMirrorCommand(opts))

	return rootCmd
}

func (o *options) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
}

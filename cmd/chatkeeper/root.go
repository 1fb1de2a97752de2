package main

import (
	"github.com/spf13/cobra"

	"github.com/leofalp/chatkeeper/internal/config"
)

type rootFlags struct {
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "chatkeeper",
		Short:         "Conversational session manager for text-generation backends",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "dotenv file to load (default .env when present)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(flags),
		newMigrateCmd(flags),
		newChatCmd(flags),
	)
	return cmd
}

func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

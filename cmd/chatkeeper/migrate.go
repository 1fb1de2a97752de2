package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leofalp/chatkeeper/providers/memory/pgmemory"
)

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if dsn == "" {
				dsn = cfg.Storage.PostgresDSN
			}
			if dsn == "" {
				return errors.New("no database: pass --dsn or set CHATKEEPER_STORAGE_POSTGRES_DSN")
			}
			if err := pgmemory.Migrate(cmd.Context(), dsn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string (overrides storage.postgres_dsn)")
	return cmd
}

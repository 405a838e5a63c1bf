package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/layer-3/anchor/adapters/store"
)

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the transactions table and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := c.cfg, c.log

			if cfg.Postgres.DSN == "" {
				return errors.New("postgres.dsn is required")
			}

			pool, err := newPostgresPool(cmd.Context(), cfg.Postgres)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.NewPostgresStore(pool).Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("schema migrated")
			return nil
		},
	}
}

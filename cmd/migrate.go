package main

import (
	"github.com/spf13/cobra"

	"github.com/verdantlabs/greencoach/config"
	srv "github.com/verdantlabs/greencoach/internal/server"
	"github.com/verdantlabs/greencoach/internal/store"
)

func migrateCMD() *cobra.Command {
	var migDir string
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			dsn := store.DSN(cfg.Storage.Postgres)
			if direction == "down" {
				if steps == 0 {
					steps = 1
				}
				return srv.RollbackMigrations(dsn, migDir, steps)
			}
			return srv.RunMigrations(dsn, migDir)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "migrations", "migrations directory")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps for down (0 = 1)")

	return migrate
}

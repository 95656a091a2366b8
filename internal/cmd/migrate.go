package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/skimmer/internal/database"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs database migrations on the configured database. Will create the database if it does not exist.`,
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "Migrating %s database\n", cfg.Database.Driver)
			return database.Migrate(cfg.Database.Driver, cfg.Database.DSN)
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migration",
		Description: `Rolls back the last database migration`,
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "Rolling back %s database\n", cfg.Database.Driver)
			return database.Rollback(cfg.Database.Driver, cfg.Database.DSN)
		},
	}
}

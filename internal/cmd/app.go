// Package cmd wires the skimmer command line.
package cmd

import (
	"github.com/urfave/cli/v2"
)

// App returns the skimmer command line application.
func App() *cli.App {
	return &cli.App{
		Name:  "skimmer",
		Usage: "A personal RSS/Atom aggregator",
		Description: `Skimmer subscribes to RSS and Atom feeds, fetches them periodically and
stores new entries together with their page preview image and tags.

Flags can generally be set via environment variables, e.g.:

--database-dsn => SKIMMER_DATABASE_DSN=skimmer.db
--log-level => SKIMMER_LOG_LEVEL=debug
`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file",
				EnvVars: []string{"SKIMMER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "database-driver",
				Usage:   "Database driver, sqlite or postgres",
				EnvVars: []string{"SKIMMER_DATABASE_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "database-dsn",
				Usage:   "SQLite file path or PostgreSQL connection URL",
				EnvVars: []string{"SKIMMER_DATABASE_DSN"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"SKIMMER_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			updateCmd(),
			subscribeCmd(),
			importCmd(),
			exportCmd(),
			fixImagesCmd(),
			migrateCmd(),
			rollbackCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return cli.ShowAppHelp(ctx)
		},
	}
}

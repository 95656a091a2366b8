package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/skimmer/internal/config"
	"github.com/bryan-buckman/skimmer/internal/database"
	"github.com/bryan-buckman/skimmer/internal/fetch"
	"github.com/bryan-buckman/skimmer/internal/pageinfo"
	"github.com/bryan-buckman/skimmer/internal/rss"
	"github.com/bryan-buckman/skimmer/internal/subscription"
)

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("database-driver") {
		cfg.Database.Driver = ctx.String("database-driver")
	}
	if ctx.IsSet("database-dsn") {
		cfg.Database.DSN = ctx.String("database-dsn")
	}
	if ctx.IsSet("log-level") {
		cfg.Log.Level = ctx.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// env holds the services shared by commands.
type env struct {
	cfg     *config.Config
	store   *database.DB
	updater *rss.Updater
	subs    *subscription.Manager
}

func newEnv(ctx *cli.Context) (*env, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	store, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"backend":    store.DatabaseType(),
		"concurrent": store.SupportsHighConcurrency(),
	}).Debug("Database ready")

	client := fetch.New(
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
		fetch.WithMaxBodyBytes(cfg.Fetch.MaxBodyBytes),
	)
	return &env{
		cfg:   cfg,
		store: store,
		updater: rss.NewUpdater(store, client, pageinfo.New(client, pageinfo.WithoutFavicon()),
			rss.WithWorkers(cfg.Updater.Workers),
			rss.WithDomainDelay(cfg.Updater.DomainDelay),
		),
		subs: subscription.NewManager(store, client, pageinfo.New(client)),
	}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

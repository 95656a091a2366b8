package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/skimmer/internal/rss"
	"github.com/bryan-buckman/skimmer/internal/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API and update feeds in the background",
		Description: `Starts the HTTP API and a poller that updates every subscription
once per poll interval. Prometheus metrics are served at /metrics.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "HTTP listen address",
				EnvVars: []string{"SKIMMER_HTTP_ADDR"},
			},
			&cli.BoolFlag{
				Name:  "no-poll",
				Usage: "Do not update feeds in the background",
			},
		},
		Action: func(ctx *cli.Context) error {
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			addr := e.cfg.HTTP.Addr
			if ctx.IsSet("addr") {
				addr = ctx.String("addr")
			}
			var poller *rss.Poller
			if !ctx.Bool("no-poll") {
				poller = rss.NewPoller(e.updater, e.cfg.Updater.PollInterval)
			}
			srv := server.New(e.store, e.subs, e.updater, poller)

			sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() { errc <- srv.Start(addr) }()

			select {
			case err := <-errc:
				return err
			case <-sigCtx.Done():
			}

			log.Info("Gracefully shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			log.Info("Done!")
			return nil
		},
	}
}

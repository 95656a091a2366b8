package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func updateCmd() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Fetch new entries for all subscriptions, or one with --feed",
		Description: `Runs one update cycle and exits. Suitable for cron or any other
external scheduler. Feed failures are logged and never abort the run.`,
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "feed",
				Usage: "Only update the subscription with this ID",
			},
		},
		Action: func(ctx *cli.Context) error {
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			if ctx.IsSet("feed") {
				sub, err := e.store.GetSubscription(ctx.Context, ctx.Int64("feed"))
				if err != nil {
					return fmt.Errorf("subscription %d: %w", ctx.Int64("feed"), err)
				}
				n := e.updater.UpdateFeed(ctx.Context, *sub)
				fmt.Fprintf(ctx.App.Writer, "%s: %d new entries\n", sub.Title, n)
				return nil
			}

			summary := e.updater.UpdateAll(ctx.Context)
			fmt.Fprintf(ctx.App.Writer, "Updated %d feeds: %d new entries\n", summary.Feeds, summary.NewEntries)
			return nil
		},
	}
}

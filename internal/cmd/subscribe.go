package cmd

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/bryan-buckman/skimmer/internal/subscription"
)

func ownerFlag() cli.Flag {
	return &cli.Int64Flag{
		Name:     "owner",
		Usage:    "ID of the user owning the subscriptions",
		EnvVars:  []string{"SKIMMER_OWNER"},
		Required: true,
	}
}

func subscribeCmd() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe a user to one or more feed URLs",
		ArgsUsage: "URL...",
		Flags:     []cli.Flag{ownerFlag()},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() == 0 {
				return cli.Exit("at least one feed URL is required", 1)
			}
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			reqs := make([]subscription.Request, 0, ctx.NArg())
			for _, url := range ctx.Args().Slice() {
				reqs = append(reqs, subscription.Request{URL: url})
			}
			return report(ctx, e.subs.SubscribeAll(ctx.Context, ctx.Int64("owner"), reqs))
		},
	}
}

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Subscribe a user to every feed of an OPML file",
		ArgsUsage: "FILE.opml",
		Flags:     []cli.Flag{ownerFlag()},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return cli.Exit("exactly one OPML file is required", 1)
			}
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			f, err := os.Open(ctx.Args().First())
			if err != nil {
				return err
			}
			defer f.Close()

			result, total, err := e.subs.ImportOPML(ctx.Context, ctx.Int64("owner"), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "Found %d feeds\n", total)
			return report(ctx, result)
		},
	}
}

func exportCmd() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a user's subscriptions as OPML to stdout",
		Flags: []cli.Flag{ownerFlag()},
		Action: func(ctx *cli.Context) error {
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			data, err := e.subs.ExportOPML(ctx.Context, ctx.Int64("owner"))
			if err != nil {
				return err
			}
			_, err = ctx.App.Writer.Write(data)
			return err
		},
	}
}

func fixImagesCmd() *cli.Command {
	return &cli.Command{
		Name:  "fix-images",
		Usage: "Set a favicon or preview image on subscriptions that have none",
		Action: func(ctx *cli.Context) error {
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.subs.ResolveMissingImages(ctx.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "Set images on %d subscriptions\n", n)
			return nil
		},
	}
}

// report prints a batch subscribe result. It fails only when nothing was subscribed
// and at least one URL could not be.
func report(ctx *cli.Context, result subscription.BatchResult) error {
	w := ctx.App.Writer
	for _, sub := range result.Created {
		fmt.Fprintf(w, "Subscribed to %s (%s)\n", sub.Title, sub.URL)
	}
	for _, url := range result.Skipped {
		fmt.Fprintf(w, "Already subscribed to %s\n", url)
	}
	for url, err := range result.Failed {
		log.WithError(err).WithField("url", url).Warn("Cannot subscribe")
		fmt.Fprintf(w, "Failed %s: %v\n", url, err)
	}
	if len(result.Created) == 0 && len(result.Failed) > 0 {
		return errors.New("no subscriptions were created")
	}
	return nil
}

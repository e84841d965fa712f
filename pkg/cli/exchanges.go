package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func exchangesCommand() *cli.Command {
	var (
		cfg   config
		sc    serveConfig
		limit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Number of exchanges",
			Value:       20,
			Destination: &limit,
		},
	}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, bigqueryFlags(&sc)...)

	return &cli.Command{
		Name:  "exchanges",
		Usage: "Show the latest recorded exchanges",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}

			log, err := sc.newExchangeLog(ctx)
			if err != nil {
				return err
			}
			if log == nil {
				return goerr.New("bigquery-table is required")
			}
			defer log.Close()

			exchanges, err := log.Recent(ctx, int(limit))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			for _, x := range exchanges {
				status := "replied"
				if !x.Replied {
					status = "silent"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\trounds=%d tools=%d\n",
					x.CreatedAt.UTC().Format("2006-01-02 15:04:05"), status, x.PostURI, x.Rounds, x.ToolCalls)
				fmt.Fprintf(w, "  > %s\n", x.Post)
				if x.Response != "" {
					fmt.Fprintf(w, "  < %s\n", x.Response)
				}
			}
			return nil
		},
	}
}

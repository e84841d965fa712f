package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/aigis/pkg/usecase/agent"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func threadCommand() *cli.Command {
	var (
		cfg       config
		embedding bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "embedding-text",
			Usage:       "Print the embedding input with embed summaries instead of the model message",
			Destination: &embedding,
		},
	}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, blueskyFlags(&cfg)...)

	return &cli.Command{
		Name:      "thread",
		Usage:     "Print the reconstructed thread of a post",
		ArgsUsage: "<at-uri>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uri := c.Args().First()
			if uri == "" {
				return goerr.New("post AT-URI is required")
			}

			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}

			bsky, err := cfg.newBluesky(ctx)
			if err != nil {
				return err
			}

			posts, err := agent.Reconstruct(ctx, bsky, uri)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			for _, post := range posts {
				text := post.Render()
				if embedding {
					text = post.EmbeddingText()
				}
				fmt.Fprintf(w, "[%s] %s\n", post.IndexedAt.UTC().Format("2006-01-02 15:04:05"), text)
			}
			return nil
		},
	}
}

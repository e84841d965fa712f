package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func memoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect the vector memory",
		Commands: []*cli.Command{
			memorySearchCommand(),
			memoryConversationCommand(),
		},
	}
}

func memorySearchCommand() *cli.Command {
	var (
		cfg   config
		tags  []string
		limit int64
	)

	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "tag",
			Aliases:     []string{"t"},
			Usage:       "Required tag, repeatable",
			Value:       []string{model.TagShortTerm},
			Destination: &tags,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Number of entries",
			Value:       5,
			Destination: &limit,
		},
	}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, gatewayFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Print the entries most similar to a text",
		ArgsUsage: "<text>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			text := strings.Join(c.Args().Slice(), " ")
			if text == "" {
				return goerr.New("text is required")
			}

			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}

			embedder, err := cfg.newEmbedder(ctx)
			if err != nil {
				return err
			}
			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			vectors, err := embedder.Embed(ctx, []string{text})
			if err != nil {
				return goerr.Wrap(model.Kind(model.ErrEmbedding, err), "failed to embed query")
			}
			if len(vectors) != 1 {
				return goerr.Wrap(model.ErrEmbedding, "embedding count mismatch", goerr.V("actual", len(vectors)))
			}

			entries, err := store.GetSimilar(ctx, vectors[0], tags, int(limit))
			if err != nil {
				return goerr.Wrap(model.Kind(model.ErrRetrieval, err), "failed to search memory")
			}

			w := c.Root().Writer
			if len(entries) == 0 {
				fmt.Fprintf(w, "No memory found for tags %v\n", tags)
				return nil
			}
			for _, entry := range entries {
				printEntry(w, entry, true)
			}
			return nil
		},
	}
}

func memoryConversationCommand() *cli.Command {
	var (
		cfg     config
		rootURI bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "root-uri",
			Usage:       "Treat the argument as the thread root AT-URI instead of a conversation id",
			Destination: &rootURI,
		},
	}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)

	return &cli.Command{
		Name:      "conversation",
		Usage:     "List the entries of a conversation in time order",
		ArgsUsage: "<conversation-id | root-uri>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			id := c.Args().First()
			if id == "" {
				return goerr.New("conversation id is required")
			}
			if rootURI {
				id = model.NameID(id)
			}

			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}

			entries, err := repository.GetChain(ctx, store, id)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(entries) == 0 {
				fmt.Fprintf(w, "No entries found for conversation %s\n", id)
				return nil
			}
			for _, entry := range entries {
				printEntry(w, entry, false)
			}
			return nil
		},
	}
}

func printEntry(w io.Writer, entry *model.MemoryEntry, withScore bool) {
	ts := time.Unix(entry.Timestamp, 0).UTC().Format("2006-01-02 15:04:05")
	if withScore {
		fmt.Fprintf(w, "%s\t%.4f\t%s\t%s\n", entry.ID, entry.Score, ts, strings.Join(entry.Tags, ","))
	} else {
		fmt.Fprintf(w, "%s\t%s\t%s\n", entry.ID, ts, strings.Join(entry.Tags, ","))
	}
	fmt.Fprintf(w, "  %s\n", entry.Content)
}

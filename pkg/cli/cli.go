package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:      "aigis",
		Usage:     "Conversational agent for Bluesky",
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			serveCommand(),
			chatCommand(),
			memoryCommand(),
			threadCommand(),
			exchangesCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

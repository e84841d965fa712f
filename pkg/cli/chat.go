package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/tool"
	"github.com/m-mizutani/aigis/pkg/usecase/agent"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg      config
		handle   string
		remember bool
		history  string
	)
	tools := builtinTools()

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "handle",
			Usage:       "Handle shown to the model as the author of your messages",
			Value:       "you.bsky.social",
			Destination: &handle,
		},
		&cli.BoolFlag{
			Name:        "remember",
			Usage:       "Commit each exchange to short-term memory",
			Destination: &remember,
		},
		&cli.StringFlag{
			Name:        "history-file",
			Usage:       "Readline history file",
			Sources:     cli.EnvVars("AIGIS_CHAT_HISTORY"),
			Destination: &history,
		},
	}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, gatewayFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)
	flags = append(flags, tool.Flags(tools...)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the agent in the terminal",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}
			w := c.Root().Writer

			gateway, err := cfg.newGateway(ctx)
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
			registry, err := cfg.newTools(ctx, tools)
			if err != nil {
				return err
			}
			defer func() {
				if err := registry.Close(); err != nil {
					logging.From(ctx).Warn("failed to close tools", "error", err)
				}
			}()

			out := &streamWriter{w: w}
			a, err := cfg.newAgent(ctx, agentDeps{
				did:      "did:local:aigis",
				embedder: embedder,
				store:    store,
				gateway:  gateway,
				tools:    registry,
				input:    agent.NewInput{Stream: out.write},
			})
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:      "> ",
				HistoryFile: history,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			session := &chatSession{
				agent:    a,
				handle:   handle,
				remember: remember,
				rootURI:  fmt.Sprintf("chat://%s/%d", handle, time.Now().UnixNano()),
				out:      out,
			}

			fmt.Fprintf(w, "Chat session started with tools %v. Type 'exit' to quit.\n", registry.Names())
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				line = strings.TrimSpace(line)
				if line == "exit" || line == "quit" {
					break
				}
				if line == "" {
					continue
				}

				if err := session.send(ctx, line); err != nil {
					fmt.Fprintf(w, "error: %v\n", err)
				}
			}

			fmt.Fprintf(w, "\nChat session completed\n")
			return nil
		},
	}
}

// chatSession keeps the local conversation as a thread of posts
type chatSession struct {
	agent    *agent.Agent
	handle   string
	remember bool
	rootURI  string
	posts    []*model.Post
	out      *streamWriter
}

func (s *chatSession) send(ctx context.Context, text string) error {
	post := &model.Post{
		URI:       fmt.Sprintf("%s/%d", s.rootURI, len(s.posts)),
		AuthorDID: "did:local:" + s.handle,
		Handle:    s.handle,
		Text:      text,
		IndexedAt: time.Now(),
	}
	posts := append(s.posts, post)

	assembled, err := s.agent.Assemble(ctx, posts)
	if err != nil {
		return err
	}

	s.out.start()
	gen, err := s.agent.Generate(ctx, assembled.Messages)
	s.out.finish()
	if err != nil {
		return err
	}

	if gen.Text == "" {
		fmt.Fprintf(s.out.w, "(no reply after %d rounds)\n", gen.Rounds)
		s.posts = posts
		return nil
	}
	fmt.Fprintf(s.out.w, "\naigis: %s\n", gen.Text)

	s.posts = append(posts, &model.Post{
		URI:       fmt.Sprintf("%s/%d", s.rootURI, len(posts)),
		AuthorDID: s.agent.DID(),
		Handle:    "aigis",
		Text:      gen.Text,
		IndexedAt: time.Now(),
	})

	if s.remember {
		log := model.ChatLog{Post: post.Render(), Response: gen.Text, PosterDID: post.AuthorDID}
		if _, err := s.agent.Commit(ctx, log, s.rootURI); err != nil {
			return err
		}
	}
	return nil
}

// streamWriter prints model increments, hiding the spinner on the first one
type streamWriter struct {
	w       io.Writer
	mu      sync.Mutex
	spin    *spinner.Spinner
	stopped bool
}

func (s *streamWriter) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(s.w))
	s.spin.Suffix = " thinking..."
	s.spin.Start()
	s.stopped = false
}

func (s *streamWriter) write(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped && s.spin != nil {
		s.spin.Stop()
		s.stopped = true
	}
	fmt.Fprint(s.w, chunk)
}

func (s *streamWriter) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped && s.spin != nil {
		s.spin.Stop()
	}
	s.stopped = true
}

package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/aigis/pkg/adapter"
	"github.com/m-mizutani/aigis/pkg/interfaces"
	"github.com/m-mizutani/aigis/pkg/metrics"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/repository"
	"github.com/m-mizutani/aigis/pkg/tool"
	"github.com/m-mizutani/aigis/pkg/usecase/agent"
	"github.com/m-mizutani/aigis/pkg/usecase/ingest"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// serveConfig holds values only the serve command uses
type serveConfig struct {
	jetstreamURL   string
	workers        int64
	queueSize      int64
	cursorPath     string
	cursorBucket   string
	cursorPrefix   string
	cursorInterval time.Duration
	metricsAddr    string

	bigqueryProject string
	bigqueryDataset string
	bigqueryTable   string
}

func serveFlags(sc *serveConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "jetstream-url",
			Usage:       "Jetstream subscribe endpoint",
			Value:       adapter.DefaultJetstreamURL,
			Sources:     cli.EnvVars("AIGIS_JETSTREAM_URL"),
			Destination: &sc.jetstreamURL,
		},
		&cli.IntFlag{
			Name:        "workers",
			Usage:       "Number of concurrent turns",
			Value:       ingest.DefaultWorkers,
			Sources:     cli.EnvVars("WORKER_COUNT"),
			Destination: &sc.workers,
		},
		&cli.IntFlag{
			Name:        "queue-size",
			Usage:       "Buffered inbound events",
			Value:       256,
			Sources:     cli.EnvVars("AIGIS_QUEUE_SIZE"),
			Destination: &sc.queueSize,
		},
		&cli.StringFlag{
			Name:        "cursor-path",
			Usage:       "File keeping the last seen event time",
			Value:       "./" + repository.CursorKey,
			Sources:     cli.EnvVars("AIGIS_CURSOR_PATH"),
			Destination: &sc.cursorPath,
		},
		&cli.StringFlag{
			Name:        "cursor-bucket",
			Usage:       "Cloud Storage bucket keeping the cursor, overrides cursor-path",
			Sources:     cli.EnvVars("AIGIS_CURSOR_BUCKET"),
			Destination: &sc.cursorBucket,
		},
		&cli.StringFlag{
			Name:        "cursor-prefix",
			Usage:       "Object prefix in the cursor bucket",
			Sources:     cli.EnvVars("AIGIS_CURSOR_PREFIX"),
			Destination: &sc.cursorPrefix,
		},
		&cli.DurationFlag{
			Name:        "cursor-interval",
			Usage:       "How often the cursor is persisted",
			Value:       ingest.DefaultCursorInterval,
			Sources:     cli.EnvVars("AIGIS_CURSOR_INTERVAL"),
			Destination: &sc.cursorInterval,
		},
		&cli.StringFlag{
			Name:        "metrics-addr",
			Usage:       "Listen address of /metrics and /healthz, disabled when empty",
			Value:       ":9090",
			Sources:     cli.EnvVars("AIGIS_METRICS_ADDR"),
			Destination: &sc.metricsAddr,
		},
	}
}

func bigqueryFlags(sc *serveConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bigquery-project",
			Usage:       "Google Cloud project of the exchange log",
			Sources:     cli.EnvVars("AIGIS_BIGQUERY_PROJECT"),
			Destination: &sc.bigqueryProject,
		},
		&cli.StringFlag{
			Name:        "bigquery-dataset",
			Usage:       "BigQuery dataset of the exchange log",
			Sources:     cli.EnvVars("AIGIS_BIGQUERY_DATASET"),
			Destination: &sc.bigqueryDataset,
		},
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "BigQuery table of the exchange log, disabled when empty",
			Sources:     cli.EnvVars("AIGIS_BIGQUERY_TABLE"),
			Destination: &sc.bigqueryTable,
		},
	}
}

// newCursorStore picks Cloud Storage when a bucket is set, a local file otherwise
func (sc *serveConfig) newCursorStore(ctx context.Context) (interfaces.CursorStore, error) {
	if sc.cursorBucket != "" {
		storage, err := adapter.NewStorage(ctx, sc.cursorBucket, sc.cursorPrefix)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create storage")
		}
		return repository.NewStorageCursor(storage), nil
	}

	if sc.cursorPath == "" {
		return nil, goerr.New("cursor-path or cursor-bucket is required")
	}
	return repository.NewFileCursor(sc.cursorPath), nil
}

// newExchangeLog returns nil when no table is configured
func (sc *serveConfig) newExchangeLog(ctx context.Context) (*adapter.BigQueryExchangeLog, error) {
	if sc.bigqueryTable == "" {
		return nil, nil
	}
	if sc.bigqueryProject == "" || sc.bigqueryDataset == "" {
		return nil, goerr.New("bigquery-project and bigquery-dataset are required with bigquery-table")
	}
	return adapter.NewBigQueryExchangeLog(ctx, sc.bigqueryProject, sc.bigqueryDataset, sc.bigqueryTable)
}

func serveCommand() *cli.Command {
	var (
		cfg config
		sc  serveConfig
	)
	tools := builtinTools()

	var flags []cli.Flag
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, blueskyFlags(&cfg)...)
	flags = append(flags, gatewayFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)
	flags = append(flags, serveFlags(&sc)...)
	flags = append(flags, bigqueryFlags(&sc)...)
	flags = append(flags, tool.Flags(tools...)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Listen to the network and reply to posts addressing the agent",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}
			logger := logging.From(ctx)

			bsky, err := cfg.newBluesky(ctx)
			if err != nil {
				return err
			}
			logger.Info("logged in", "did", bsky.DID(), "handle", bsky.Handle())

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

			m := metrics.New()
			input := agent.NewInput{Metrics: m}

			exchanges, err := sc.newExchangeLog(ctx)
			if err != nil {
				return err
			}
			if exchanges != nil {
				defer exchanges.Close()
				input.Exchanges = exchanges
			}

			a, err := cfg.newAgent(ctx, agentDeps{
				did:      bsky.DID(),
				fetcher:  bsky,
				replier:  bsky,
				embedder: embedder,
				store:    store,
				gateway:  gateway,
				tools:    registry,
				input:    input,
			})
			if err != nil {
				return err
			}

			cursorStore, err := sc.newCursorStore(ctx)
			if err != nil {
				return err
			}
			tracker := ingest.NewCursorTracker(cursorStore, sc.cursorInterval)
			cursor, err := tracker.Load(ctx)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("starting agent",
				"tools", registry.Names(),
				"workers", sc.workers,
				"cursor", cursor,
				"store", cfg.store,
				"gateway", cfg.gateway)

			return serve(ctx, serveDeps{
				agent:       a,
				jetstream:   adapter.NewJetstream(sc.jetstreamURL),
				tracker:     tracker,
				metrics:     m,
				workers:     int(sc.workers),
				queueSize:   int(sc.queueSize),
				metricsAddr: sc.metricsAddr,
				health: func() error {
					if bsky.DID() == "" {
						return goerr.New("no bluesky session")
					}
					return nil
				},
			})
		},
	}
}

type serveDeps struct {
	agent       ingest.Handler
	jetstream   *adapter.Jetstream
	tracker     *ingest.CursorTracker
	metrics     *metrics.Metrics
	workers     int
	queueSize   int
	metricsAddr string
	health      metrics.HealthFunc
}

// serve runs the event stream, the worker pool, the cursor tracker and the
// metrics server until ctx is canceled or one of them fails
func serve(ctx context.Context, deps serveDeps) error {
	logger := logging.From(ctx)
	events := make(chan model.Event, deps.queueSize)

	pool := ingest.NewPool(deps.agent,
		ingest.WithWorkers(deps.workers),
		ingest.WithCursor(deps.tracker),
		ingest.WithMetrics(deps.metrics),
	)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer close(events)
		return deps.jetstream.Run(ctx, events, deps.tracker.Cursor)
	})

	eg.Go(func() error {
		return pool.Run(ctx, events)
	})

	eg.Go(func() error {
		return deps.tracker.Run(ctx)
	})

	if deps.metricsAddr != "" {
		server := &http.Server{
			Addr:              deps.metricsAddr,
			Handler:           metrics.NewRouter(deps.metrics, deps.health),
			ReadHeaderTimeout: 10 * time.Second,
		}

		eg.Go(func() error {
			logger.Info("metrics server listening", "addr", deps.metricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return goerr.Wrap(err, "metrics server failed", goerr.V("addr", deps.metricsAddr))
			}
			return nil
		})

		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err := eg.Wait()
	logger.Info("agent stopped", "cursor", deps.tracker.Cursor())
	return err
}

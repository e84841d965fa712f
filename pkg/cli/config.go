package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/m-mizutani/aigis/pkg/adapter"
	"github.com/m-mizutani/aigis/pkg/interfaces"
	"github.com/m-mizutani/aigis/pkg/policy"
	"github.com/m-mizutani/aigis/pkg/repository"
	"github.com/m-mizutani/aigis/pkg/service/mcp"
	"github.com/m-mizutani/aigis/pkg/tool"
	"github.com/m-mizutani/aigis/pkg/tool/calc"
	"github.com/m-mizutani/aigis/pkg/tool/search"
	"github.com/m-mizutani/aigis/pkg/tool/website"
	"github.com/m-mizutani/aigis/pkg/usecase/agent"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// Backend names
const (
	gatewayOpenAI = "openai"
	gatewayGemini = "gemini"
	gatewayClaude = "claude"

	embedderGemini = "gemini"
	embedderHash   = "hash"

	storeChromem   = "chromem"
	storeFirestore = "firestore"
	storePostgres  = "postgres"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Bluesky
	atpUser      string
	atpPassword  string
	pdsHost      string
	allowedUsers []string

	// Model gateway
	gateway         string
	model           string
	akashAPIKey     string
	openaiEndpoint  string
	anthropicAPIKey string
	geminiProject   string
	geminiLocation  string

	// Embedding
	embedder       string
	embeddingModel string
	dimension      int64

	// Memory store
	store             string
	chromemPath       string
	chromemCompress   bool
	firestoreProject  string
	firestoreDatabase string
	postgresURL       string

	// Agent
	promptPath    string
	policyDir     string
	mcpConfig     string
	retrievalK    int64
	maxToolRounds int64
	archive       bool
}

func loggingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Aliases:     []string{"l"},
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("AIGIS_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("AIGIS_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// blueskyFlags returns flags for the agent account
func blueskyFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "atp-user",
			Usage:       "Bluesky account identifier (handle or DID)",
			Sources:     cli.EnvVars("ATP_USER"),
			Destination: &cfg.atpUser,
		},
		&cli.StringFlag{
			Name:        "atp-password",
			Usage:       "Bluesky app password",
			Sources:     cli.EnvVars("ATP_PASSWORD"),
			Destination: &cfg.atpPassword,
		},
		&cli.StringFlag{
			Name:        "pds-host",
			Usage:       "PDS host of the agent account",
			Value:       adapter.DefaultPDSHost,
			Sources:     cli.EnvVars("AIGIS_PDS_HOST"),
			Destination: &cfg.pdsHost,
		},
		&cli.StringSliceFlag{
			Name:        "allowed-users",
			Usage:       "DIDs allowed to trigger replies, everyone when empty",
			Sources:     cli.EnvVars("ALLOWED_USERS"),
			Destination: &cfg.allowedUsers,
		},
	}
}

// gatewayFlags returns flags for the model gateway
func gatewayFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gateway",
			Usage:       "Model gateway (openai, gemini, claude)",
			Value:       gatewayOpenAI,
			Sources:     cli.EnvVars("AIGIS_GATEWAY"),
			Destination: &cfg.gateway,
		},
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Model name, gateway default when empty",
			Sources:     cli.EnvVars("AIGIS_MODEL"),
			Destination: &cfg.model,
		},
		&cli.StringFlag{
			Name:        "akash-api-key",
			Usage:       "API key of the OpenAI-compatible endpoint",
			Sources:     cli.EnvVars("AKASH_API_KEY"),
			Destination: &cfg.akashAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-endpoint",
			Usage:       "Base URL of the OpenAI-compatible endpoint",
			Value:       adapter.DefaultOpenAIEndpoint,
			Sources:     cli.EnvVars("AIGIS_OPENAI_ENDPOINT"),
			Destination: &cfg.openaiEndpoint,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("AIGIS_GEMINI_PROJECT", "GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("AIGIS_GEMINI_LOCATION", "GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

// memoryFlags returns flags for embedding and the vector store
func memoryFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedder",
			Usage:       "Embedding backend (gemini, hash)",
			Value:       embedderGemini,
			Sources:     cli.EnvVars("AIGIS_EMBEDDER"),
			Destination: &cfg.embedder,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name, backend default when empty",
			Sources:     cli.EnvVars("AIGIS_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Embedding vector dimension",
			Value:       768,
			Sources:     cli.EnvVars("AIGIS_EMBEDDING_DIMENSION"),
			Destination: &cfg.dimension,
		},
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Memory store backend (chromem, firestore, postgres)",
			Value:       storeChromem,
			Sources:     cli.EnvVars("AIGIS_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "chromem-path",
			Usage:       "Directory of the persistent chromem store, in-memory when empty",
			Sources:     cli.EnvVars("AIGIS_CHROMEM_PATH"),
			Destination: &cfg.chromemPath,
		},
		&cli.BoolFlag{
			Name:        "chromem-compress",
			Usage:       "Gzip the files of the persistent chromem store",
			Sources:     cli.EnvVars("AIGIS_CHROMEM_COMPRESS"),
			Destination: &cfg.chromemCompress,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID of the Firestore store",
			Sources:     cli.EnvVars("AIGIS_FIRESTORE_PROJECT", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("AIGIS_FIRESTORE_DATABASE", "FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "postgres-url",
			Usage:       "PostgreSQL connection URL of the pgvector store",
			Sources:     cli.EnvVars("AIGIS_POSTGRES_URL"),
			Destination: &cfg.postgresURL,
		},
	}
}

// agentFlags returns flags shaping a turn
func agentFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "prompt",
			Usage:       "Persona prompt file, built-in persona when missing",
			Value:       "./prompt.txt",
			Sources:     cli.EnvVars("AIGIS_PROMPT"),
			Destination: &cfg.promptPath,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego trigger policies",
			Sources:     cli.EnvVars("AIGIS_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "mcp-config",
			Usage:       "MCP server configuration file (YAML)",
			Sources:     cli.EnvVars("AIGIS_MCP_CONFIG"),
			Destination: &cfg.mcpConfig,
		},
		&cli.IntFlag{
			Name:        "retrieval-k",
			Usage:       "Short-term memory entries retrieved per turn",
			Value:       agent.DefaultRetrievalK,
			Sources:     cli.EnvVars("AIGIS_RETRIEVAL_K"),
			Destination: &cfg.retrievalK,
		},
		&cli.IntFlag{
			Name:        "max-tool-rounds",
			Usage:       "Cap of model calls per turn, 0 for no cap",
			Sources:     cli.EnvVars("AIGIS_MAX_TOOL_ROUNDS"),
			Destination: &cfg.maxToolRounds,
		},
		&cli.BoolFlag{
			Name:        "archive-posts",
			Usage:       "Store every reconstructed thread post as archival memory",
			Sources:     cli.EnvVars("AIGIS_ARCHIVE_POSTS"),
			Destination: &cfg.archive,
		},
	}
}

// setupLogger installs the configured logger as default and into ctx
func (cfg *config) setupLogger(ctx context.Context, w io.Writer) (context.Context, error) {
	logger, err := logging.NewWithFormat(cfg.logLevel, cfg.logFormat, w)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)
	slog.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// newBluesky logs in with the agent account
func (cfg *config) newBluesky(ctx context.Context) (*adapter.Bluesky, error) {
	if cfg.atpUser == "" {
		return nil, goerr.New("atp-user is required")
	}
	if cfg.atpPassword == "" {
		return nil, goerr.New("atp-password is required")
	}

	client := adapter.NewBluesky(cfg.pdsHost)
	if err := client.Login(ctx, cfg.atpUser, cfg.atpPassword); err != nil {
		return nil, err
	}
	return client, nil
}

// newGateway creates the configured model gateway
func (cfg *config) newGateway(ctx context.Context) (interfaces.Gateway, error) {
	switch cfg.gateway {
	case gatewayOpenAI:
		if cfg.akashAPIKey == "" {
			return nil, goerr.New("akash-api-key is required")
		}
		opts := []adapter.OpenAIOption{adapter.WithOpenAIEndpoint(cfg.openaiEndpoint)}
		if cfg.model != "" {
			opts = append(opts, adapter.WithOpenAIModel(cfg.model))
		}
		return adapter.NewOpenAI(cfg.akashAPIKey, opts...), nil

	case gatewayClaude:
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required")
		}
		var opts []adapter.ClaudeOption
		if cfg.model != "" {
			opts = append(opts, adapter.WithClaudeModel(cfg.model))
		}
		return adapter.NewClaude(cfg.anthropicAPIKey, opts...), nil

	case gatewayGemini:
		var opts []adapter.GeminiOption
		if cfg.model != "" {
			opts = append(opts, adapter.WithGenerativeModel(cfg.model))
		}
		return cfg.newGemini(ctx, opts...)
	}

	return nil, goerr.New("unsupported gateway", goerr.V("gateway", cfg.gateway))
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context, opts ...adapter.GeminiOption) (*adapter.GeminiClient, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
}

// newEmbedder creates the configured embedding backend
func (cfg *config) newEmbedder(ctx context.Context) (interfaces.Embedder, error) {
	if cfg.dimension <= 0 {
		return nil, goerr.New("embedding-dimension must be positive", goerr.V("dimension", cfg.dimension))
	}

	switch cfg.embedder {
	case embedderHash:
		return adapter.NewHashEmbedder(int(cfg.dimension)), nil

	case embedderGemini:
		opts := []adapter.GeminiOption{adapter.WithEmbeddingDimension(int(cfg.dimension))}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
		}
		return cfg.newGemini(ctx, opts...)
	}

	return nil, goerr.New("unsupported embedder", goerr.V("embedder", cfg.embedder))
}

// newStore creates the configured memory store
func (cfg *config) newStore(ctx context.Context) (interfaces.MemoryStore, error) {
	switch cfg.store {
	case storeChromem:
		var opts []repository.ChromemOption
		if cfg.chromemPath != "" {
			opts = append(opts,
				repository.WithChromemPath(cfg.chromemPath),
				repository.WithChromemCompress(cfg.chromemCompress))
		}
		return repository.NewChromem(int(cfg.dimension), opts...)

	case storeFirestore:
		if cfg.firestoreProject == "" {
			return nil, goerr.New("firestore-project is required")
		}
		return repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase)

	case storePostgres:
		if cfg.postgresURL == "" {
			return nil, goerr.New("postgres-url is required")
		}
		return repository.NewPostgres(ctx, cfg.postgresURL, int(cfg.dimension))
	}

	return nil, goerr.New("unsupported store", goerr.V("store", cfg.store))
}

// newTools sets up built-in tools, MCP servers included when configured.
// The caller closes the registry to end MCP sessions.
func (cfg *config) newTools(ctx context.Context, builtin []tool.Tool) (*tool.Registry, error) {
	tools := append([]tool.Tool(nil), builtin...)

	provider, err := mcp.LoadAndConnect(ctx, cfg.mcpConfig)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load MCP config")
	}
	if provider != nil {
		tools = append(tools, provider)
	}

	return tool.Setup(ctx, tool.NewClient(), tools...)
}

// builtinTools returns the tools whose flags are registered on commands
func builtinTools() []tool.Tool {
	return []tool.Tool{
		calc.New(),
		search.New(),
		website.New(),
	}
}

// agentDeps carries collaborators that differ between commands
type agentDeps struct {
	did      string
	fetcher  interfaces.ThreadFetcher
	replier  interfaces.Replier
	embedder interfaces.Embedder
	store    interfaces.MemoryStore
	gateway  interfaces.Gateway
	tools    interfaces.ToolRunner
	input    agent.NewInput
}

// newAgent builds an Agent from the configuration and deps
func (cfg *config) newAgent(ctx context.Context, deps agentDeps) (*agent.Agent, error) {
	persona, err := agent.LoadPersona(ctx, cfg.promptPath)
	if err != nil {
		return nil, err
	}

	trigger, err := policy.NewTrigger(ctx, cfg.policyDir)
	if err != nil {
		return nil, err
	}

	input := deps.input
	input.DID = deps.did
	input.Fetcher = deps.fetcher
	input.Replier = deps.replier
	input.Embedder = deps.embedder
	input.Store = deps.store
	input.Gateway = deps.gateway
	input.Tools = deps.tools
	input.Trigger = trigger
	input.Allowlist = agent.NewAllowlist(cfg.allowedUsers)
	input.Persona = persona
	input.RetrievalK = int(cfg.retrievalK)
	input.MaxRounds = int(cfg.maxToolRounds)
	input.Archive = cfg.archive

	return agent.New(input)
}

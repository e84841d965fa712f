package agent

import (
	"time"

	"github.com/m-mizutani/aigis/pkg/interfaces"
	"github.com/m-mizutani/aigis/pkg/metrics"
	"github.com/m-mizutani/aigis/pkg/policy"
	"github.com/m-mizutani/aigis/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultRetrievalK      = 2
	DefaultRepeatThreshold = 3
	DefaultLanguage        = "en"
)

// Agent handles one conversational turn per addressed post
type Agent struct {
	did       string
	allowlist Allowlist

	fetcher   interfaces.ThreadFetcher
	replier   interfaces.Replier
	embedder  interfaces.Embedder
	store     interfaces.MemoryStore
	gateway   interfaces.Gateway
	tools     interfaces.ToolRunner
	trigger   *policy.Trigger
	exchanges interfaces.ExchangeLog
	metrics   *metrics.Metrics

	persona         string
	retrievalK      int
	repeatThreshold int
	maxRounds       int
	archive         bool
	lang            string
	stream          func(chunk string)
	now             func() time.Time
}

// NewInput contains parameters for creating an Agent. Fields after Gateway
// are optional.
type NewInput struct {
	DID       string
	Fetcher   interfaces.ThreadFetcher
	Replier   interfaces.Replier
	Embedder  interfaces.Embedder
	Store     interfaces.MemoryStore
	Gateway   interfaces.Gateway
	Tools     interfaces.ToolRunner
	Trigger   *policy.Trigger
	Exchanges interfaces.ExchangeLog
	Metrics   *metrics.Metrics
	Allowlist Allowlist

	// Persona defaults to the embedded persona prompt
	Persona string
	// RetrievalK defaults to DefaultRetrievalK
	RetrievalK int
	// RepeatThreshold defaults to DefaultRepeatThreshold
	RepeatThreshold int
	// MaxRounds caps model calls per turn. 0 means unbounded.
	MaxRounds int
	// Archive stores every reconstructed post as archival memory
	Archive bool
	// Language of published replies, defaults to DefaultLanguage
	Language string
	// Stream switches the gateway to streaming and receives every increment
	Stream func(chunk string)
	// Now defaults to time.Now
	Now func() time.Time
}

func New(input NewInput) (*Agent, error) {
	switch {
	case input.Embedder == nil:
		return nil, goerr.New("embedder is required")
	case input.Store == nil:
		return nil, goerr.New("memory store is required")
	case input.Gateway == nil:
		return nil, goerr.New("model gateway is required")
	}

	a := &Agent{
		did:             input.DID,
		allowlist:       input.Allowlist,
		fetcher:         input.Fetcher,
		replier:         input.Replier,
		embedder:        input.Embedder,
		store:           input.Store,
		gateway:         input.Gateway,
		tools:           input.Tools,
		trigger:         input.Trigger,
		exchanges:       input.Exchanges,
		metrics:         input.Metrics,
		persona:         input.Persona,
		retrievalK:      input.RetrievalK,
		repeatThreshold: input.RepeatThreshold,
		maxRounds:       input.MaxRounds,
		archive:         input.Archive,
		lang:            input.Language,
		stream:          input.Stream,
		now:             input.Now,
	}

	if a.tools == nil {
		a.tools = tool.New()
	}
	if a.persona == "" {
		a.persona = DefaultPersona()
	}
	if a.retrievalK <= 0 {
		a.retrievalK = DefaultRetrievalK
	}
	if a.repeatThreshold <= 0 {
		a.repeatThreshold = DefaultRepeatThreshold
	}
	if a.lang == "" {
		a.lang = DefaultLanguage
	}
	if a.now == nil {
		a.now = time.Now
	}

	return a, nil
}

// DID returns the identifier the agent answers to
func (a *Agent) DID() string {
	return a.did
}

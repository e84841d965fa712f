package interfaces

import (
	"context"
	"iter"

	"github.com/m-mizutani/aigis/pkg/model"
)

// ThreadFetcher retrieves the nested thread view of a post
type ThreadFetcher interface {
	GetPostThread(ctx context.Context, uri string, depth, parentHeight int) (*model.ThreadView, error)
}

// Replier publishes a reply post
type Replier interface {
	CreateReply(ctx context.Context, ref model.ReplyRef, text, lang string) (*model.StrongRef, error)
}

// Embedder converts texts to vectors. The result has the same length and
// order as texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Gateway is a language model backend
type Gateway interface {
	Generate(ctx context.Context, messages []model.Message) (string, error)
	GenerateStream(ctx context.Context, messages []model.Message) iter.Seq2[string, error]
}

// MemoryStore is the vector memory store
type MemoryStore interface {
	Put(ctx context.Context, entry *model.MemoryEntry) error
	PutBatch(ctx context.Context, entries []*model.MemoryEntry) error

	// GetSimilar returns up to topK entries carrying all tags, most similar first
	GetSimilar(ctx context.Context, vector []float32, tags []string, topK int) ([]*model.MemoryEntry, error)

	// GetByFilter returns entries matching the filter, in no particular order
	GetByFilter(ctx context.Context, filter model.MemoryFilter) ([]*model.MemoryEntry, error)
}

// CursorStore persists the last seen event cursor
type CursorStore interface {
	// Load returns false if no cursor was saved yet
	Load(ctx context.Context) (int64, bool, error)
	Save(ctx context.Context, cursor int64) error
}

// ExchangeLog records completed turns
type ExchangeLog interface {
	Record(ctx context.Context, exchange *model.Exchange) error
}

// ToolRunner executes parsed tool calls and advertises the available tools
type ToolRunner interface {
	// Run never fails; errors are reported in the result
	Run(ctx context.Context, call model.ToolCall) model.ToolResult
	// Catalog returns the textual tool list for the system prompt
	Catalog(ctx context.Context) (string, error)
}

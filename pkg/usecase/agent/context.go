package agent

import (
	"context"
	"strings"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// MemoryPreamble heads the system message carrying retrieved memory
const MemoryPreamble = "The following messages may help you when responding to the user. You can use them, or not."

// Assembled is the model input built from a thread
type Assembled struct {
	// Messages starts with the system prompt, then the memory message if
	// anything was retrieved, then one user message per post
	Messages []model.Message
	// Retrieved is the deduplicated memory in relevance order
	Retrieved []*model.MemoryEntry
	// Vectors holds one embedding per post, in thread order
	Vectors [][]float32
}

// Assemble renders posts into messages, embeds them in one batch and
// prepends similar short-term memory retrieved with the newest post's vector
func (a *Agent) Assemble(ctx context.Context, posts []*model.Post) (*Assembled, error) {
	if len(posts) == 0 {
		return nil, goerr.New("no post to assemble")
	}

	texts := make([]string, len(posts))
	thread := make([]model.Message, len(posts))
	for i, post := range posts {
		texts[i] = post.EmbeddingText()
		thread[i] = model.UserMessage(post.Render())
	}

	vectors, err := a.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, goerr.Wrap(model.Kind(model.ErrEmbedding, err), "failed to embed thread", goerr.V("posts", len(posts)))
	}
	if len(vectors) != len(texts) {
		return nil, goerr.Wrap(model.ErrEmbedding, "embedding count mismatch",
			goerr.V("expected", len(texts)), goerr.V("actual", len(vectors)))
	}

	query := vectors[len(vectors)-1]
	similar, err := a.store.GetSimilar(ctx, query, []string{model.TagShortTerm}, a.retrievalK)
	if err != nil {
		return nil, goerr.Wrap(model.Kind(model.ErrRetrieval, err), "failed to retrieve memory")
	}
	retrieved := Dedup(similar)

	system, err := a.SystemPrompt(ctx)
	if err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(thread)+2)
	messages = append(messages, model.SystemMessage(system))
	if memory := MemoryMessage(retrieved); memory != nil {
		messages = append(messages, *memory)
	}
	messages = append(messages, thread...)

	return &Assembled{
		Messages:  messages,
		Retrieved: retrieved,
		Vectors:   vectors,
	}, nil
}

// Dedup drops entries whose id was already seen, keeping first-seen order
func Dedup(entries []*model.MemoryEntry) []*model.MemoryEntry {
	seen := make(map[string]struct{}, len(entries))
	result := make([]*model.MemoryEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if _, ok := seen[entry.ID]; ok {
			continue
		}
		seen[entry.ID] = struct{}{}
		result = append(result, entry)
	}
	return result
}

// MemoryMessage renders retrieved entries one per line under
// MemoryPreamble. It returns nil for no entries.
func MemoryMessage(entries []*model.MemoryEntry) *model.Message {
	if len(entries) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(MemoryPreamble)
	b.WriteString("\n")
	for _, entry := range entries {
		b.WriteString(entry.Content)
		b.WriteString("\n")
	}

	msg := model.SystemMessage(b.String())
	return &msg
}

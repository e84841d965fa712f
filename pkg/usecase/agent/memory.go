package agent

import (
	"context"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Commit embeds a finished exchange and stores it as short-term memory.
// The entry id derives from the serialized exchange and the conversation id
// from rootURI, so committing the same exchange twice writes the same entry.
func (a *Agent) Commit(ctx context.Context, log model.ChatLog, rootURI string) (*model.MemoryEntry, error) {
	entry, err := model.NewChatLogEntry(log, rootURI, nil, a.now())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to serialize chat log")
	}

	vectors, err := a.embedder.Embed(ctx, []string{entry.Content})
	if err != nil {
		return nil, goerr.Wrap(model.Kind(model.ErrEmbedding, err), "failed to embed chat log", goerr.V("id", entry.ID))
	}
	if len(vectors) != 1 {
		return nil, goerr.Wrap(model.ErrEmbedding, "embedding count mismatch", goerr.V("actual", len(vectors)))
	}
	entry.Embedding = vectors[0]

	if err := a.store.Put(ctx, entry); err != nil {
		return nil, goerr.Wrap(err, "failed to store chat log", goerr.V("id", entry.ID))
	}

	return entry, nil
}

// Archive stores each post as archival memory reusing the thread vectors.
// Failures are logged and never returned.
func (a *Agent) Archive(ctx context.Context, posts []*model.Post, vectors [][]float32) {
	if len(posts) != len(vectors) {
		logging.From(ctx).Warn("skip archival, vector count mismatch",
			"posts", len(posts), "vectors", len(vectors))
		return
	}

	now := a.now()
	entries := make([]*model.MemoryEntry, len(posts))
	for i, post := range posts {
		entries[i] = model.NewArchiveEntry(post, vectors[i], now)
	}

	if err := a.store.PutBatch(ctx, entries); err != nil {
		logging.From(ctx).Warn("failed to archive thread posts", "error", err, "posts", len(entries))
	}
}

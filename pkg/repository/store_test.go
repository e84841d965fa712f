package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/aigis/pkg/interfaces"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/repository"
	"github.com/m-mizutani/gt"
)

// axis returns a vector pointing at idx with a small lean towards idx+1
func axis(dim, idx int, lean float32) []float32 {
	v := make([]float32, dim)
	v[idx] = 1
	v[(idx+1)%dim] = lean
	return v
}

// testMemoryStore runs the behaviour shared by every MemoryStore backend.
// Tags and conversation ids are unique per run so shared databases can be used.
func testMemoryStore(t *testing.T, store interfaces.MemoryStore, dim int) {
	ctx := context.Background()
	run := uuid.NewString()
	stm := "stm-" + run
	quote := "quote-" + run
	convA := "conv-a-" + run
	convB := "conv-b-" + run
	now := time.Now().Unix()

	newer := &model.MemoryEntry{
		ID:             uuid.NewString(),
		Content:        `{"post":"second","response":"b","poster_did":"did:plc:x"}`,
		Embedding:      axis(dim, 0, 0),
		Timestamp:      now,
		Tags:           []string{stm},
		Role:           model.RoleUser,
		EntryType:      model.EntryTypeBluesky,
		ConversationID: convA,
	}
	older := &model.MemoryEntry{
		ID:             uuid.NewString(),
		Content:        `{"post":"first","response":"a","poster_did":"did:plc:x"}`,
		Embedding:      axis(dim, 0, 0.3),
		Timestamp:      now - 60,
		Tags:           []string{stm},
		Role:           model.RoleUser,
		EntryType:      model.EntryTypeBluesky,
		ConversationID: convA,
	}
	archived := &model.MemoryEntry{
		ID:             uuid.NewString(),
		Content:        `{"text":"archived"}`,
		Embedding:      axis(dim, 2, 0),
		Timestamp:      now - 120,
		Tags:           []string{stm, quote},
		Role:           model.RoleUser,
		EntryType:      model.EntryTypeBluesky,
		ConversationID: convB,
	}

	gt.NoError(t, store.Put(ctx, newer))
	gt.NoError(t, store.PutBatch(ctx, []*model.MemoryEntry{older, archived}))
	gt.NoError(t, store.PutBatch(ctx, nil))

	t.Run("put is idempotent", func(t *testing.T) {
		gt.NoError(t, store.Put(ctx, newer))
		entries, err := store.GetByFilter(ctx, model.MemoryFilter{ConversationID: convA})
		gt.NoError(t, err)
		gt.A(t, entries).Length(2)
	})

	t.Run("similar entries ordered by similarity", func(t *testing.T) {
		entries, err := store.GetSimilar(ctx, axis(dim, 0, 0), []string{stm}, 2)
		gt.NoError(t, err)
		gt.A(t, entries).Length(2)
		gt.Equal(t, entries[0].ID, newer.ID)
		gt.Equal(t, entries[1].ID, older.ID)
		gt.True(t, entries[0].Score >= entries[1].Score)
		gt.Equal(t, entries[0].Content, newer.Content)
		gt.Equal(t, entries[0].ConversationID, convA)
		gt.Equal(t, entries[0].Timestamp, now)
		gt.Equal(t, entries[0].Role, model.RoleUser)
	})

	t.Run("all tags are required", func(t *testing.T) {
		entries, err := store.GetSimilar(ctx, axis(dim, 0, 0), []string{stm, quote}, 5)
		gt.NoError(t, err)
		gt.A(t, entries).Length(1)
		gt.Equal(t, entries[0].ID, archived.ID)
		gt.A(t, entries[0].Tags).Length(2)
	})

	t.Run("unknown tag returns nothing", func(t *testing.T) {
		entries, err := store.GetSimilar(ctx, axis(dim, 0, 0), []string{"missing-" + run}, 5)
		gt.NoError(t, err)
		gt.A(t, entries).Length(0)
	})

	t.Run("filter by conversation and tag", func(t *testing.T) {
		entries, err := store.GetByFilter(ctx, model.MemoryFilter{
			ConversationID: convB,
			Tags:           []string{quote},
			Role:           model.RoleUser,
		})
		gt.NoError(t, err)
		gt.A(t, entries).Length(1)
		gt.Equal(t, entries[0].ID, archived.ID)
	})

	t.Run("chain is ordered by timestamp", func(t *testing.T) {
		chain, err := repository.GetChain(ctx, store, convA)
		gt.NoError(t, err)
		gt.A(t, chain).Length(2)
		gt.Equal(t, chain[0].ID, older.ID)
		gt.Equal(t, chain[1].ID, newer.ID)
	})
}

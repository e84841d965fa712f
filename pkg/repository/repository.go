package repository

import (
	"context"
	"sort"

	"github.com/m-mizutani/aigis/pkg/interfaces"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultCollection is the collection (or table) name used by every backend
const DefaultCollection = "aigis-db"

var (
	_ interfaces.MemoryStore = (*Chromem)(nil)
	_ interfaces.MemoryStore = (*Firestore)(nil)
	_ interfaces.MemoryStore = (*Postgres)(nil)

	_ interfaces.CursorStore = (*FileCursor)(nil)
	_ interfaces.CursorStore = (*StorageCursor)(nil)
)

// GetChain returns all entries of a conversation ordered by timestamp, oldest first
func GetChain(ctx context.Context, store interfaces.MemoryStore, conversationID string) ([]*model.MemoryEntry, error) {
	entries, err := store.GetByFilter(ctx, model.MemoryFilter{ConversationID: conversationID})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get conversation chain", goerr.V("conversation_id", conversationID))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp == entries[j].Timestamp {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp < entries[j].Timestamp
	})

	return entries, nil
}

func filterEntries(entries []*model.MemoryEntry, filter model.MemoryFilter) []*model.MemoryEntry {
	var matched []*model.MemoryEntry
	for _, entry := range entries {
		if filter.Match(entry) {
			matched = append(matched, entry)
		}
	}
	return matched
}

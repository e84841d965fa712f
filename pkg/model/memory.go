package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TagShortTerm     = "stm"
	TagBlueskyPost   = "bluesky_post"
	TagHasImages     = "has_images"
	TagHasExternal   = "has_external_link"
	TagHasVideo      = "has_video"
	TagHasQuote      = "has_quote"
	TagHasQuoteMedia = "has_quote_with_media"

	EntryTypeBluesky = "bluesky_post"
)

// MemoryEntry is one record of the vector memory store
type MemoryEntry struct {
	ID             string    `json:"id" firestore:"id"`
	Content        string    `json:"content" firestore:"content"`
	Embedding      []float32 `json:"embedding,omitempty" firestore:"-"`
	Timestamp      int64     `json:"timestamp" firestore:"timestamp"`
	Tags           []string  `json:"tags" firestore:"tags"`
	Role           Role      `json:"role" firestore:"role"`
	EntryType      string    `json:"entry_type" firestore:"entry_type"`
	ConversationID string    `json:"conversation_id" firestore:"conversation_id"`
	Score          float64   `json:"score,omitempty" firestore:"-"`
}

// HasTags reports whether the entry carries every tag in tags
func (e *MemoryEntry) HasTags(tags []string) bool {
	for _, want := range tags {
		found := false
		for _, t := range e.Tags {
			if t == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MemoryFilter selects entries by exact match. Zero fields are ignored.
type MemoryFilter struct {
	Tags           []string
	ConversationID string
	Role           Role
}

// Match reports whether entry satisfies the filter
func (f MemoryFilter) Match(entry *MemoryEntry) bool {
	if f.ConversationID != "" && entry.ConversationID != f.ConversationID {
		return false
	}
	if f.Role != "" && entry.Role != f.Role {
		return false
	}
	return entry.HasTags(f.Tags)
}

// ChatLog is the content of a committed conversation turn
type ChatLog struct {
	Post      string `json:"post"`
	Response  string `json:"response"`
	PosterDID string `json:"poster_did"`
}

// NameID derives the deterministic v5 identifier used for memory ids
// and conversation ids
func NameID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
}

// NewChatLogEntry builds the short-term memory entry for one completed turn.
// The id derives from the serialized content so identical turns collapse.
func NewChatLogEntry(log ChatLog, rootURI string, embedding []float32, now time.Time) (*MemoryEntry, error) {
	raw, err := json.Marshal(log)
	if err != nil {
		return nil, err
	}
	content := string(raw)

	return &MemoryEntry{
		ID:             NameID(content),
		Content:        content,
		Embedding:      embedding,
		Timestamp:      now.Unix(),
		Tags:           []string{TagShortTerm},
		Role:           RoleUser,
		EntryType:      EntryTypeBluesky,
		ConversationID: NameID(rootURI),
	}, nil
}

// NewArchiveEntry builds the archival entry for one thread post. Entries
// are grouped per author.
func NewArchiveEntry(post *Post, embedding []float32, now time.Time) *MemoryEntry {
	tags := []string{TagBlueskyPost}
	if post.Embed != nil {
		switch post.Embed.Kind {
		case EmbedImages:
			tags = append(tags, TagHasImages)
		case EmbedExternal:
			tags = append(tags, TagHasExternal)
		case EmbedVideo:
			tags = append(tags, TagHasVideo)
		case EmbedRecord:
			tags = append(tags, TagHasQuote)
		case EmbedRecordWithMedia:
			tags = append(tags, TagHasQuoteMedia)
		}
	}

	return &MemoryEntry{
		ID:             NameID(post.URI),
		Content:        post.ArchiveJSON(),
		Embedding:      embedding,
		Timestamp:      now.Unix(),
		Tags:           tags,
		Role:           RoleUser,
		EntryType:      EntryTypeBluesky,
		ConversationID: NameID(post.AuthorDID),
	}
}

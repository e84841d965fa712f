package repository

import (
	"context"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"
)

const (
	metaTimestamp      = "timestamp"
	metaRole           = "role"
	metaEntryType      = "entry_type"
	metaConversationID = "conversation_id"
	metaTagPrefix      = "tag:"
)

// Chromem is a MemoryStore backed by an embedded chromem-go database
type Chromem struct {
	db        *chromem.DB
	col       *chromem.Collection
	dimension int
}

type chromemConfig struct {
	path       string
	compress   bool
	collection string
}

// ChromemOption configures Chromem
type ChromemOption func(*chromemConfig)

// WithChromemPath persists the database under path. Without it the store is in-memory.
func WithChromemPath(path string) ChromemOption {
	return func(c *chromemConfig) {
		c.path = path
	}
}

// WithChromemCompress enables gzip compression of the persisted files
func WithChromemCompress(compress bool) ChromemOption {
	return func(c *chromemConfig) {
		c.compress = compress
	}
}

// WithChromemCollection overrides DefaultCollection
func WithChromemCollection(name string) ChromemOption {
	return func(c *chromemConfig) {
		c.collection = name
	}
}

// NewChromem opens the store. dimension is the vector size of the embedder
// and is used for filter-only scans.
func NewChromem(dimension int, opts ...ChromemOption) (*Chromem, error) {
	if dimension <= 0 {
		return nil, goerr.New("dimension must be positive", goerr.V("dimension", dimension))
	}

	cfg := &chromemConfig{collection: DefaultCollection}
	for _, opt := range opts {
		opt(cfg)
	}

	db := chromem.NewDB()
	if cfg.path != "" {
		persistent, err := chromem.NewPersistentDB(cfg.path, cfg.compress)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open chromem database", goerr.V("path", cfg.path))
		}
		db = persistent
	}

	// Embeddings are always supplied by the caller, so no embedding func is set
	col, err := db.GetOrCreateCollection(cfg.collection, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open chromem collection", goerr.V("collection", cfg.collection))
	}

	return &Chromem{db: db, col: col, dimension: dimension}, nil
}

func (s *Chromem) Put(ctx context.Context, entry *model.MemoryEntry) error {
	if err := s.col.AddDocument(ctx, toChromemDocument(entry)); err != nil {
		return goerr.Wrap(err, "failed to add document", goerr.V("id", entry.ID))
	}
	return nil
}

func (s *Chromem) PutBatch(ctx context.Context, entries []*model.MemoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(entries))
	for i, entry := range entries {
		docs[i] = toChromemDocument(entry)
	}

	if err := s.col.AddDocuments(ctx, docs, 1); err != nil {
		return goerr.Wrap(err, "failed to add documents", goerr.V("count", len(docs)))
	}
	return nil
}

func (s *Chromem) GetSimilar(ctx context.Context, vector []float32, tags []string, topK int) ([]*model.MemoryEntry, error) {
	where := make(map[string]string, len(tags))
	for _, tag := range tags {
		where[metaTagPrefix+tag] = "1"
	}

	return s.query(ctx, vector, where, topK)
}

func (s *Chromem) GetByFilter(ctx context.Context, filter model.MemoryFilter) ([]*model.MemoryEntry, error) {
	where := make(map[string]string)
	for _, tag := range filter.Tags {
		where[metaTagPrefix+tag] = "1"
	}
	if filter.ConversationID != "" {
		where[metaConversationID] = filter.ConversationID
	}
	if filter.Role != "" {
		where[metaRole] = string(filter.Role)
	}

	// chromem-go has no listing API. A uniform vector ranks every document
	// so querying with n = Count() returns all matches.
	uniform := make([]float32, s.dimension)
	v := float32(1 / math.Sqrt(float64(s.dimension)))
	for i := range uniform {
		uniform[i] = v
	}

	return s.query(ctx, uniform, where, s.col.Count())
}

func (s *Chromem) query(ctx context.Context, vector []float32, where map[string]string, n int) ([]*model.MemoryEntry, error) {
	// chromem-go rejects n larger than the collection
	if count := s.col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}
	if len(where) == 0 {
		where = nil
	}

	results, err := s.col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query chromem", goerr.V("n", n))
	}

	entries := make([]*model.MemoryEntry, 0, len(results))
	for _, r := range results {
		entries = append(entries, fromChromemResult(r))
	}
	return entries, nil
}

func toChromemDocument(entry *model.MemoryEntry) chromem.Document {
	meta := map[string]string{
		metaTimestamp:      strconv.FormatInt(entry.Timestamp, 10),
		metaRole:           string(entry.Role),
		metaEntryType:      entry.EntryType,
		metaConversationID: entry.ConversationID,
	}
	for _, tag := range entry.Tags {
		meta[metaTagPrefix+tag] = "1"
	}

	return chromem.Document{
		ID:        entry.ID,
		Content:   entry.Content,
		Embedding: entry.Embedding,
		Metadata:  meta,
	}
}

func fromChromemResult(r chromem.Result) *model.MemoryEntry {
	entry := &model.MemoryEntry{
		ID:             r.ID,
		Content:        r.Content,
		Embedding:      r.Embedding,
		Role:           model.Role(r.Metadata[metaRole]),
		EntryType:      r.Metadata[metaEntryType],
		ConversationID: r.Metadata[metaConversationID],
		Score:          float64(r.Similarity),
	}
	entry.Timestamp, _ = strconv.ParseInt(r.Metadata[metaTimestamp], 10, 64)

	for key := range r.Metadata {
		if tag, ok := strings.CutPrefix(key, metaTagPrefix); ok {
			entry.Tags = append(entry.Tags, tag)
		}
	}
	slices.Sort(entry.Tags)

	return entry
}

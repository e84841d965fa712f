package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Postgres is a MemoryStore backed by PostgreSQL with the pgvector extension
type Postgres struct {
	pool *pgxpool.Pool
}

const memoryColumns = `id, content, embedding::text, timestamp, tags, role, entry_type, conversation_id`

// NewPostgres connects to databaseURL and prepares the schema for vectors of
// the given dimension
func NewPostgres(ctx context.Context, databaseURL string, dimension int) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect postgres")
	}

	if err := initMemorySchema(ctx, pool, dimension); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

func initMemorySchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_entries (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			timestamp BIGINT NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			role TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			conversation_id TEXT NOT NULL
		);`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_conversation ON memory_entries (conversation_id, timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_tags ON memory_entries USING GIN (tags);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return goerr.Wrap(err, "failed to init memory schema", goerr.V("stmt", stmt))
		}
	}
	return nil
}

// Close releases the connection pool
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

const insertMemoryEntry = `INSERT INTO memory_entries
	(id, content, embedding, timestamp, tags, role, entry_type, conversation_id)
	VALUES ($1, $2, $3::vector, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING`

func insertArgs(entry *model.MemoryEntry) []any {
	return []any{
		entry.ID,
		entry.Content,
		formatVector(entry.Embedding),
		entry.Timestamp,
		nonNilTags(entry.Tags),
		string(entry.Role),
		entry.EntryType,
		entry.ConversationID,
	}
}

func (s *Postgres) Put(ctx context.Context, entry *model.MemoryEntry) error {
	if _, err := s.pool.Exec(ctx, insertMemoryEntry, insertArgs(entry)...); err != nil {
		return goerr.Wrap(err, "failed to insert memory entry", goerr.V("id", entry.ID))
	}
	return nil
}

func (s *Postgres) PutBatch(ctx context.Context, entries []*model.MemoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(insertMemoryEntry, insertArgs(entry)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, entry := range entries {
		if _, err := br.Exec(); err != nil {
			return goerr.Wrap(err, "failed to insert memory entry", goerr.V("id", entry.ID))
		}
	}
	return nil
}

func (s *Postgres) GetSimilar(ctx context.Context, vector []float32, tags []string, topK int) ([]*model.MemoryEntry, error) {
	if topK <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+memoryColumns+`, 1 - (embedding <=> $1::vector) AS score
		 FROM memory_entries WHERE tags @> $2
		 ORDER BY embedding <=> $1::vector LIMIT $3`,
		formatVector(vector),
		nonNilTags(tags),
		topK,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query similar entries")
	}
	defer rows.Close()

	return scanMemoryRows(rows, true)
}

func (s *Postgres) GetByFilter(ctx context.Context, filter model.MemoryFilter) ([]*model.MemoryEntry, error) {
	conds := []string{"tags @> $1"}
	args := []any{nonNilTags(filter.Tags)}

	if filter.ConversationID != "" {
		args = append(args, filter.ConversationID)
		conds = append(conds, "conversation_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		conds = append(conds, "role = $"+strconv.Itoa(len(args)))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+memoryColumns+` FROM memory_entries WHERE `+strings.Join(conds, " AND "),
		args...,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query memory entries")
	}
	defer rows.Close()

	return scanMemoryRows(rows, false)
}

func scanMemoryRows(rows pgx.Rows, withScore bool) ([]*model.MemoryEntry, error) {
	var entries []*model.MemoryEntry
	for rows.Next() {
		var (
			entry     model.MemoryEntry
			embedding string
			role      string
		)
		dest := []any{
			&entry.ID, &entry.Content, &embedding, &entry.Timestamp,
			&entry.Tags, &role, &entry.EntryType, &entry.ConversationID,
		}
		if withScore {
			dest = append(dest, &entry.Score)
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory entry")
		}

		vec, err := parseVector(embedding)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse embedding", goerr.V("id", entry.ID))
		}
		entry.Embedding = vec
		entry.Role = model.Role(role)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate memory entries")
	}

	return entries, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// formatVector renders the pgvector text form, e.g. "[0.1,0.2]"
func formatVector(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid vector element", goerr.V("element", p))
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

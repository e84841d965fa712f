package repository

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const distanceField = "vector_distance"

// Firestore is a MemoryStore backed by Firestore vector search. GetSimilar
// requires a vector index on the embedding field.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// memoryDoc is the stored form of model.MemoryEntry
type memoryDoc struct {
	ID             string             `firestore:"id"`
	Content        string             `firestore:"content"`
	Embedding      firestore.Vector32 `firestore:"embedding"`
	Timestamp      int64              `firestore:"timestamp"`
	Tags           []string           `firestore:"tags"`
	Role           string             `firestore:"role"`
	EntryType      string             `firestore:"entry_type"`
	ConversationID string             `firestore:"conversation_id"`
}

// NewFirestore creates a new Firestore memory store
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	return &Firestore{
		client:     client,
		collection: DefaultCollection,
	}, nil
}

// Close releases the Firestore client
func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) Put(ctx context.Context, entry *model.MemoryEntry) error {
	ref := r.client.Collection(r.collection).Doc(entry.ID)

	// Entries are immutable; an existing id means the same content was stored
	if _, err := ref.Create(ctx, toMemoryDoc(entry)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return goerr.Wrap(err, "failed to create memory entry", goerr.V("id", entry.ID))
	}
	return nil
}

func (r *Firestore) PutBatch(ctx context.Context, entries []*model.MemoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(entries))
	for _, entry := range entries {
		ref := r.client.Collection(r.collection).Doc(entry.ID)
		job, err := bw.Create(ref, toMemoryDoc(entry))
		if err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue memory entry", goerr.V("id", entry.ID))
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				continue
			}
			return goerr.Wrap(err, "failed to write memory entry", goerr.V("id", entries[i].ID))
		}
	}
	return nil
}

func (r *Firestore) GetSimilar(ctx context.Context, vector []float32, tags []string, topK int) ([]*model.MemoryEntry, error) {
	if topK <= 0 {
		return nil, nil
	}

	// Firestore allows a single array-contains clause; remaining tags are
	// checked on the returned documents.
	q := r.client.Collection(r.collection).Query
	if len(tags) > 0 {
		q = q.Where("tags", "array-contains", tags[0])
	}

	vq := q.FindNearest("embedding", firestore.Vector32(vector), topK,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: distanceField})

	it := vq.Documents(ctx)
	defer it.Stop()

	var results []*model.MemoryEntry
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate nearest entries")
		}

		entry, err := decodeMemoryDoc(doc)
		if err != nil {
			return nil, err
		}
		if !entry.HasTags(tags) {
			continue
		}

		if d, ok := doc.Data()[distanceField].(float64); ok {
			entry.Score = 1 - d
		}
		results = append(results, entry)
	}

	return results, nil
}

func (r *Firestore) GetByFilter(ctx context.Context, filter model.MemoryFilter) ([]*model.MemoryEntry, error) {
	q := r.client.Collection(r.collection).Query
	if filter.ConversationID != "" {
		q = q.Where("conversation_id", "==", filter.ConversationID)
	}
	if filter.Role != "" {
		q = q.Where("role", "==", string(filter.Role))
	}
	if len(filter.Tags) > 0 {
		q = q.Where("tags", "array-contains", filter.Tags[0])
	}

	it := q.Documents(ctx)
	defer it.Stop()

	var entries []*model.MemoryEntry
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory entries")
		}

		entry, err := decodeMemoryDoc(doc)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return filterEntries(entries, filter), nil
}

func toMemoryDoc(entry *model.MemoryEntry) *memoryDoc {
	return &memoryDoc{
		ID:             entry.ID,
		Content:        entry.Content,
		Embedding:      firestore.Vector32(entry.Embedding),
		Timestamp:      entry.Timestamp,
		Tags:           entry.Tags,
		Role:           string(entry.Role),
		EntryType:      entry.EntryType,
		ConversationID: entry.ConversationID,
	}
}

func decodeMemoryDoc(doc *firestore.DocumentSnapshot) (*model.MemoryEntry, error) {
	var d memoryDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory entry", goerr.V("doc_id", doc.Ref.ID))
	}

	return &model.MemoryEntry{
		ID:             d.ID,
		Content:        d.Content,
		Embedding:      []float32(d.Embedding),
		Timestamp:      d.Timestamp,
		Tags:           d.Tags,
		Role:           model.Role(d.Role),
		EntryType:      d.EntryType,
		ConversationID: d.ConversationID,
	}, nil
}

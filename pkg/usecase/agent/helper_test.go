package agent_test

import (
	"context"
	"encoding/json"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/aigis/pkg/adapter"
	"github.com/m-mizutani/aigis/pkg/interfaces"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/tool"
	"github.com/m-mizutani/aigis/pkg/tool/calc"
	"github.com/m-mizutani/aigis/pkg/usecase/agent"
	"github.com/m-mizutani/gt"
)

const (
	agentDID = "did:plc:aigis"
	userDID  = "did:plc:alice"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type mockFetcher struct {
	getPostThread func(ctx context.Context, uri string, depth, parentHeight int) (*model.ThreadView, error)
}

func (m *mockFetcher) GetPostThread(ctx context.Context, uri string, depth, parentHeight int) (*model.ThreadView, error) {
	return m.getPostThread(ctx, uri, depth, parentHeight)
}

type mockReplier struct {
	mu      sync.Mutex
	replies []string
	refs    []model.ReplyRef
	langs   []string
}

func (m *mockReplier) CreateReply(ctx context.Context, ref model.ReplyRef, text, lang string) (*model.StrongRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, text)
	m.refs = append(m.refs, ref)
	m.langs = append(m.langs, lang)
	return &model.StrongRef{URI: "at://" + agentDID + "/app.bsky.feed.post/reply", CID: "bafyreply"}, nil
}

type mockEmbedder struct {
	interfaces.Embedder
	embed func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return m.embed(ctx, texts)
}

// mockStore records writes and serves GetSimilar from a func field
type mockStore struct {
	interfaces.MemoryStore
	getSimilar func(ctx context.Context, vector []float32, tags []string, topK int) ([]*model.MemoryEntry, error)
	putBatch   func(ctx context.Context, entries []*model.MemoryEntry) error

	puts []*model.MemoryEntry
}

func (m *mockStore) Put(ctx context.Context, entry *model.MemoryEntry) error {
	m.puts = append(m.puts, entry)
	return nil
}

func (m *mockStore) PutBatch(ctx context.Context, entries []*model.MemoryEntry) error {
	if m.putBatch != nil {
		return m.putBatch(ctx, entries)
	}
	m.puts = append(m.puts, entries...)
	return nil
}

func (m *mockStore) GetSimilar(ctx context.Context, vector []float32, tags []string, topK int) ([]*model.MemoryEntry, error) {
	if m.getSimilar == nil {
		return nil, nil
	}
	return m.getSimilar(ctx, vector, tags, topK)
}

// mockGateway returns outputs in order and keeps every request
type mockGateway struct {
	interfaces.Gateway
	outputs  []string
	err      error
	requests [][]model.Message
}

func (m *mockGateway) next(messages []model.Message) (string, error) {
	m.requests = append(m.requests, append([]model.Message(nil), messages...))
	if m.err != nil {
		return "", m.err
	}
	i := len(m.requests) - 1
	if i >= len(m.outputs) {
		i = len(m.outputs) - 1
	}
	return m.outputs[i], nil
}

func (m *mockGateway) Generate(ctx context.Context, messages []model.Message) (string, error) {
	return m.next(messages)
}

func (m *mockGateway) GenerateStream(ctx context.Context, messages []model.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		out, err := m.next(messages)
		if err != nil {
			yield("", err)
			return
		}
		// emit in two increments
		half := len(out) / 2
		if !yield(out[:half], nil) {
			return
		}
		yield(out[half:], nil)
	}
}

func newAgent(t *testing.T, input agent.NewInput) *agent.Agent {
	t.Helper()
	if input.DID == "" {
		input.DID = agentDID
	}
	if input.Embedder == nil {
		input.Embedder = adapter.NewHashEmbedder(32)
	}
	if input.Store == nil {
		input.Store = &mockStore{}
	}
	if input.Tools == nil {
		input.Tools = tool.New(calc.New())
	}
	if input.Now == nil {
		input.Now = func() time.Time { return fixedNow }
	}
	a, err := agent.New(input)
	gt.NoError(t, err)
	return a
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	gt.NoError(t, err)
	return raw
}

func postView(t *testing.T, did, handle, rkey, text string, at time.Time, reply *model.ReplyRef) *model.PostView {
	return &model.PostView{
		URI:       model.FormatATURI(did, model.CollectionPost, rkey),
		CID:       "bafy" + rkey,
		Author:    model.ProfileView{DID: did, Handle: handle},
		Record:    mustJSON(t, model.PostRecord{Type: model.CollectionPost, Text: text, Reply: reply}),
		IndexedAt: at,
	}
}

// chain nests views so that the last one is the leaf returned by the fetch
func chain(views ...*model.PostView) *model.ThreadView {
	var node *model.ThreadView
	for _, v := range views {
		node = &model.ThreadView{Type: model.ThreadViewPost, Post: v, Parent: node}
	}
	return node
}

func mentionEvent(t *testing.T, rkey, text string, reply *model.ReplyRef) model.Event {
	record := model.PostRecord{
		Type:  model.CollectionPost,
		Text:  text,
		Reply: reply,
		Facets: []model.Facet{{
			Index:    model.FacetIndex{ByteStart: 0, ByteEnd: 6},
			Features: []model.FacetFeature{{Type: "app.bsky.richtext.facet#mention", DID: agentDID}},
		}},
	}
	return model.Event{
		DID:    userDID,
		TimeUS: 1725911162329308,
		Kind:   model.EventKindCommit,
		Commit: &model.Commit{
			Operation:  model.OperationCreate,
			Collection: model.CollectionPost,
			RKey:       rkey,
			CID:        "bafy" + rkey,
			Record:     mustJSON(t, record),
		},
	}
}

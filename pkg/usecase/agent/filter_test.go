package agent_test

import (
	"testing"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/usecase/agent"
	"github.com/m-mizutani/gt"
)

func TestIsAddressed(t *testing.T) {
	selfPost := "at://" + agentDID + "/app.bsky.feed.post/3kabc"
	otherPost := "at://did:plc:bob/app.bsky.feed.post/3kxyz"

	testCases := map[string]struct {
		record *model.PostRecord
		expect bool
	}{
		"reply to agent": {
			record: &model.PostRecord{Text: "hi", Reply: &model.ReplyRef{
				Root:   model.StrongRef{URI: otherPost},
				Parent: model.StrongRef{URI: selfPost},
			}},
			expect: true,
		},
		"reply in agent thread to someone else": {
			record: &model.PostRecord{Text: "hi", Reply: &model.ReplyRef{
				Root:   model.StrongRef{URI: selfPost},
				Parent: model.StrongRef{URI: otherPost},
			}},
			expect: false,
		},
		"mention of agent": {
			record: &model.PostRecord{Text: "@aigis hi", Facets: []model.Facet{{
				Features: []model.FacetFeature{
					{Type: "app.bsky.richtext.facet#link", URI: "https://example.com"},
					{Type: "app.bsky.richtext.facet#mention", DID: agentDID},
				},
			}}},
			expect: true,
		},
		"mention of someone else": {
			record: &model.PostRecord{Text: "@bob hi", Facets: []model.Facet{{
				Features: []model.FacetFeature{{Type: "app.bsky.richtext.facet#mention", DID: "did:plc:bob"}},
			}}},
			expect: false,
		},
		"unknown facet carrying agent did": {
			record: &model.PostRecord{Text: "x", Facets: []model.Facet{{
				Features: []model.FacetFeature{{Type: "com.example.facet#custom", DID: agentDID}},
			}}},
			expect: false,
		},
		"quote of agent post": {
			record: &model.PostRecord{Text: "look", Embed: &model.Embed{
				Kind:   model.EmbedRecord,
				Record: &model.StrongRef{URI: selfPost},
			}},
			expect: true,
		},
		"quote with media of agent post": {
			record: &model.PostRecord{Text: "look", Embed: &model.Embed{
				Kind:   model.EmbedRecordWithMedia,
				Record: &model.StrongRef{URI: selfPost},
				Media:  &model.Embed{Kind: model.EmbedImages},
			}},
			expect: true,
		},
		"quote of other post": {
			record: &model.PostRecord{Text: "look", Embed: &model.Embed{
				Kind:   model.EmbedRecord,
				Record: &model.StrongRef{URI: otherPost},
			}},
			expect: false,
		},
		"external link embed": {
			record: &model.PostRecord{Text: "look", Embed: &model.Embed{
				Kind:     model.EmbedExternal,
				External: &model.EmbedLink{URI: "https://example.com/" + agentDID},
			}},
			expect: false,
		},
		"plain post": {
			record: &model.PostRecord{Text: "hello world"},
			expect: false,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			gt.Equal(t, agent.IsAddressed(agentDID, tc.record), tc.expect)
		})
	}
}

func TestIsAddressedDecodedRecord(t *testing.T) {
	raw := `{
		"$type": "app.bsky.feed.post",
		"text": "what do you think",
		"createdAt": "2025-06-01T12:00:00Z",
		"embed": {
			"$type": "app.bsky.embed.record",
			"record": {"uri": "at://` + agentDID + `/app.bsky.feed.post/3kabc", "cid": "bafyq"}
		}
	}`

	ev := model.Event{
		DID:  userDID,
		Kind: model.EventKindCommit,
		Commit: &model.Commit{
			Operation:  model.OperationCreate,
			Collection: model.CollectionPost,
			RKey:       "3kq",
			Record:     []byte(raw),
		},
	}
	record, err := ev.DecodePost()
	gt.NoError(t, err)
	gt.True(t, agent.IsAddressed(agentDID, record))
	gt.True(t, !agent.IsAddressed("did:plc:other", record))
}

func TestAllowlist(t *testing.T) {
	t.Run("empty allows everyone", func(t *testing.T) {
		list := agent.NewAllowlist([]string{"", "  "})
		gt.True(t, list == nil)
		gt.True(t, list.Allows("did:plc:anyone"))
	})

	t.Run("exact match only", func(t *testing.T) {
		list := agent.NewAllowlist([]string{"did:plc:alice", " did:plc:bob "})
		gt.True(t, list.Allows("did:plc:alice"))
		gt.True(t, list.Allows("did:plc:bob"))
		gt.True(t, !list.Allows("did:plc:alice2"))
		gt.True(t, !list.Allows(""))
	})
}

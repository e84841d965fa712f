package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestPostRender(t *testing.T) {
	p := &model.Post{Handle: "alice.bsky.social", DisplayName: "Alice", Text: "hello"}
	gt.Equal(t, p.Render(), "Alice (alice.bsky.social): hello")

	p.DisplayName = ""
	gt.Equal(t, p.Render(), "alice.bsky.social: hello")
}

func TestPostEmbeddingText(t *testing.T) {
	p := &model.Post{Handle: "bob.test", Text: "look"}
	gt.Equal(t, p.EmbeddingText(), "bob.test: look")

	p.Embed = &model.Embed{Kind: model.EmbedVideo}
	gt.Equal(t, p.EmbeddingText(), "bob.test: look\n[Video]")
}

func TestDecodeEmbed(t *testing.T) {
	t.Run("images", func(t *testing.T) {
		raw := `{"$type":"app.bsky.embed.images","images":[{"alt":"a cat","image":{"ref":{"$link":"bafy1"}}},{"alt":"","image":{"cid":"bafy2"}}]}`
		e := model.DecodeEmbed(json.RawMessage(raw))
		gt.V(t, e).NotNil()
		gt.Equal(t, e.Kind, model.EmbedImages)
		gt.A(t, e.Images).Length(2)
		gt.Equal(t, e.Images[0].Image, "bafy1")
		gt.Equal(t, e.Images[1].Image, "bafy2")
		gt.Equal(t, e.Summary(), `[Images: "a cat", image]`)
	})

	t.Run("external", func(t *testing.T) {
		raw := `{"$type":"app.bsky.embed.external","external":{"uri":"https://example.com","title":"Example","description":"desc"}}`
		e := model.DecodeEmbed(json.RawMessage(raw))
		gt.V(t, e).NotNil()
		gt.Equal(t, e.Summary(), `[External link: https://example.com] - "Example" desc`)
	})

	t.Run("record", func(t *testing.T) {
		raw := `{"$type":"app.bsky.embed.record","record":{"uri":"at://did:plc:x/app.bsky.feed.post/1","cid":"c1"}}`
		e := model.DecodeEmbed(json.RawMessage(raw))
		gt.V(t, e).NotNil()
		gt.Equal(t, e.QuotedURI(), "at://did:plc:x/app.bsky.feed.post/1")
		gt.Equal(t, e.Summary(), "[Quoted post: at://did:plc:x/app.bsky.feed.post/1]")
	})

	t.Run("record with media", func(t *testing.T) {
		raw := `{"$type":"app.bsky.embed.recordWithMedia",
			"record":{"$type":"app.bsky.embed.record","record":{"uri":"at://did:plc:y/app.bsky.feed.post/2","cid":"c2"}},
			"media":{"$type":"app.bsky.embed.video","video":{"ref":{"$link":"vid"}}}}`
		e := model.DecodeEmbed(json.RawMessage(raw))
		gt.V(t, e).NotNil()
		gt.Equal(t, e.Kind, model.EmbedRecordWithMedia)
		gt.Equal(t, e.QuotedURI(), "at://did:plc:y/app.bsky.feed.post/2")
		gt.Equal(t, e.Summary(), "[Quoted post with media: at://did:plc:y/app.bsky.feed.post/2] [Video]")
	})

	t.Run("unknown and malformed", func(t *testing.T) {
		gt.True(t, model.DecodeEmbed(json.RawMessage(`{"$type":"app.bsky.embed.unknown"}`)) == nil)
		gt.True(t, model.DecodeEmbed(json.RawMessage(`{broken`)) == nil)
		gt.True(t, model.DecodeEmbed(nil) == nil)
	})
}

func TestPostRecordUnmarshal(t *testing.T) {
	raw := `{
		"$type": "app.bsky.feed.post",
		"text": "hey @aigis",
		"createdAt": "2025-01-01T00:00:00Z",
		"facets": [{"index":{"byteStart":4,"byteEnd":10},"features":[{"$type":"app.bsky.richtext.facet#mention","did":"did:plc:agent"}]}],
		"reply": {"root":{"uri":"at://r","cid":"rc"},"parent":{"uri":"at://p","cid":"pc"}},
		"embed": {"$type":"app.bsky.embed.video","video":{"ref":{"$link":"v"}}}
	}`

	var record model.PostRecord
	gt.NoError(t, json.Unmarshal([]byte(raw), &record))
	gt.Equal(t, record.Text, "hey @aigis")
	gt.Equal(t, record.Reply.Root.URI, "at://r")
	gt.True(t, record.Facets[0].Features[0].IsMentionOf("did:plc:agent"))
	gt.True(t, !record.Facets[0].Features[0].IsMentionOf("did:plc:other"))
	gt.V(t, record.Embed).NotNil()
	gt.Equal(t, record.Embed.Kind, model.EmbedVideo)
}

func TestEventDecodePost(t *testing.T) {
	ev := &model.Event{
		DID:  "did:plc:alice",
		Kind: model.EventKindCommit,
		Commit: &model.Commit{
			Operation:  model.OperationCreate,
			Collection: model.CollectionPost,
			RKey:       "3k",
			CID:        "cid1",
			Record:     json.RawMessage(`{"text":1}`),
		},
	}
	gt.True(t, ev.IsPostCreate())
	gt.Equal(t, ev.URI(), "at://did:plc:alice/app.bsky.feed.post/3k")

	_, err := ev.DecodePost()
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrDeserialization))
}

func TestArchiveEntry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	post := &model.Post{
		URI:       "at://did:plc:a/app.bsky.feed.post/1",
		AuthorDID: "did:plc:a",
		Handle:    "a.test",
		Text:      "pic",
		Embed:     &model.Embed{Kind: model.EmbedImages},
	}

	entry := model.NewArchiveEntry(post, []float32{1, 2}, now)
	gt.Equal(t, entry.ID, model.NameID(post.URI))
	gt.Equal(t, entry.ConversationID, model.NameID("did:plc:a"))
	gt.Equal(t, entry.Tags, []string{model.TagBlueskyPost, model.TagHasImages})
	gt.Equal(t, entry.Timestamp, int64(1700000000))
	gt.S(t, entry.Content).Contains(`"author_did":"did:plc:a"`)
}

func TestChatLogEntry(t *testing.T) {
	log := model.ChatLog{Post: "bob.test: hi", Response: "hello", PosterDID: "did:plc:bob"}
	a, err := model.NewChatLogEntry(log, "at://root", nil, time.Now())
	gt.NoError(t, err)
	b, err := model.NewChatLogEntry(log, "at://root", nil, time.Now())
	gt.NoError(t, err)

	gt.Equal(t, a.ID, b.ID)
	gt.Equal(t, a.ConversationID, model.NameID("at://root"))
	gt.Equal(t, a.Tags, []string{model.TagShortTerm})
	gt.Equal(t, a.Role, model.RoleUser)
	gt.Equal(t, a.Content, `{"post":"bob.test: hi","response":"hello","poster_did":"did:plc:bob"}`)

	// uuid v5 of the DNS namespace is stable across runs
	gt.Equal(t, model.NameID("example.com"), "cfbff0d1-9375-5685-968c-48ce8b15ae17")
}

func TestToolResultContent(t *testing.T) {
	gt.Equal(t, model.ToolResult{Error: "boom"}.Content(), "Error: boom")
	gt.Equal(t, model.ToolResult{Value: map[string]any{"result": 2}}.Content(), `{"result":2}`)

	a := model.ToolCall{Name: "calc", Args: map[string]any{"expression": "1+1"}}
	b := model.ToolCall{Name: "calc", Args: map[string]any{"expression": "1+1"}}
	gt.True(t, a.Same(b))
	b.Args["expression"] = "2+2"
	gt.True(t, !a.Same(b))
}

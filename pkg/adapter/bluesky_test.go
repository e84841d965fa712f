package adapter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/aigis/pkg/adapter"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/gt"
)

const threadResponse = `{
  "thread": {
    "$type": "app.bsky.feed.defs#threadViewPost",
    "post": {
      "uri": "at://did:plc:bob/app.bsky.feed.post/2",
      "cid": "c2",
      "author": {"did": "did:plc:bob", "handle": "bob.test"},
      "record": {"$type": "app.bsky.feed.post", "text": "reply", "createdAt": "2025-01-01T00:01:00Z"},
      "indexedAt": "2025-01-01T00:01:00.000Z"
    },
    "parent": {
      "$type": "app.bsky.feed.defs#threadViewPost",
      "post": {
        "uri": "at://did:plc:alice/app.bsky.feed.post/1",
        "cid": "c1",
        "author": {"did": "did:plc:alice", "handle": "alice.test", "displayName": "Alice"},
        "record": {"$type": "app.bsky.feed.post", "text": "root", "createdAt": "2025-01-01T00:00:00Z"},
        "indexedAt": "2025-01-01T00:00:00.000Z"
      }
    }
  }
}`

func newBlueskyServer(t *testing.T, expireFirst bool) (*httptest.Server, *int32, *map[string]any) {
	var refreshed int32
	var created map[string]any
	var expired atomic.Bool
	expired.Store(expireFirst)

	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessJwt":"access1","refreshJwt":"refresh1","handle":"aigis.test","did":"did:plc:aigis"}`))
	})
	mux.HandleFunc("/xrpc/com.atproto.server.refreshSession", func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.Header.Get("Authorization"), "Bearer refresh1")
		atomic.AddInt32(&refreshed, 1)
		_, _ = w.Write([]byte(`{"accessJwt":"access2","refreshJwt":"refresh2","handle":"aigis.test","did":"did:plc:aigis"}`))
	})
	mux.HandleFunc("/xrpc/app.bsky.feed.getPostThread", func(w http.ResponseWriter, r *http.Request) {
		if expired.Load() {
			expired.Store(false)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"ExpiredToken","message":"Token has expired"}`))
			return
		}
		gt.Equal(t, r.URL.Query().Get("uri"), "at://did:plc:bob/app.bsky.feed.post/2")
		gt.Equal(t, r.URL.Query().Get("depth"), "1000")
		_, _ = w.Write([]byte(threadResponse))
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		_, _ = w.Write([]byte(`{"uri":"at://did:plc:aigis/app.bsky.feed.post/3","cid":"c3"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &refreshed, &created
}

func TestBlueskyThreadAndReply(t *testing.T) {
	ctx := context.Background()
	srv, refreshed, created := newBlueskyServer(t, true)

	client := adapter.NewBluesky(srv.URL)
	gt.NoError(t, client.Login(ctx, "aigis.test", "app-password"))
	gt.Equal(t, client.DID(), "did:plc:aigis")

	thread, err := client.GetPostThread(ctx, "at://did:plc:bob/app.bsky.feed.post/2", 1000, 1000)
	gt.NoError(t, err)
	gt.Equal(t, atomic.LoadInt32(refreshed), int32(1))
	gt.True(t, thread.IsPost())
	gt.True(t, thread.Parent.IsPost())

	parent, err := thread.Parent.Post.ToPost()
	gt.NoError(t, err)
	gt.Equal(t, parent.Render(), "Alice (alice.test): root")

	ref := model.ReplyRef{
		Root:   model.StrongRef{URI: "at://did:plc:alice/app.bsky.feed.post/1", CID: "c1"},
		Parent: model.StrongRef{URI: "at://did:plc:bob/app.bsky.feed.post/2", CID: "c2"},
	}
	out, err := client.CreateReply(ctx, ref, "hello", "en")
	gt.NoError(t, err)
	gt.Equal(t, out.CID, "c3")

	body := *created
	gt.Equal(t, body["repo"], any("did:plc:aigis"))
	record := body["record"].(map[string]any)
	gt.Equal(t, record["text"], any("hello"))
	gt.Equal(t, record["langs"], any([]any{"en"}))
	reply := record["reply"].(map[string]any)
	gt.Equal(t, reply["parent"].(map[string]any)["cid"], any("c2"))
}

func TestBlueskyReplyRequiresLogin(t *testing.T) {
	client := adapter.NewBluesky("http://127.0.0.1:0")
	_, err := client.CreateReply(context.Background(), model.ReplyRef{}, "hi", "en")
	gt.Error(t, err)
}

func TestBlueskyThreadStopsAtBlockedParent(t *testing.T) {
	ctx := context.Background()

	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessJwt":"access1","refreshJwt":"refresh1","handle":"aigis.test","did":"did:plc:aigis"}`))
	})
	mux.HandleFunc("/xrpc/app.bsky.feed.getPostThread", func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.Header.Get("Authorization"), "Bearer access1")
		_, _ = w.Write([]byte(`{
  "thread": {
    "$type": "app.bsky.feed.defs#threadViewPost",
    "post": {
      "uri": "at://did:plc:bob/app.bsky.feed.post/2",
      "cid": "c2",
      "author": {"did": "did:plc:bob", "handle": "bob.test"},
      "record": {"$type": "app.bsky.feed.post", "text": "reply", "createdAt": "2025-01-01T00:01:00Z"},
      "indexedAt": "2025-01-01T00:01:00.000Z"
    },
    "parent": {
      "$type": "app.bsky.feed.defs#blockedPost",
      "uri": "at://did:plc:carol/app.bsky.feed.post/1",
      "blocked": true,
      "author": {"did": "did:plc:carol"}
    }
  }
}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := adapter.NewBluesky(srv.URL)
	gt.NoError(t, client.Login(ctx, "aigis.test", "app-password"))

	thread, err := client.GetPostThread(ctx, "at://did:plc:bob/app.bsky.feed.post/2", 1000, 1000)
	gt.NoError(t, err)
	gt.True(t, thread.IsPost())
	gt.Equal(t, thread.Post.Author.Handle, "bob.test")
	gt.Equal(t, thread.Post.IndexedAt.Minute(), 1)
	gt.Equal(t, thread.Parent.Type, model.ThreadBlockedPost)
	gt.True(t, !thread.Parent.IsPost())

	post, err := thread.Post.ToPost()
	gt.NoError(t, err)
	gt.Equal(t, post.Text, "reply")
}

func TestBlueskyThreadRequiresLogin(t *testing.T) {
	client := adapter.NewBluesky("http://127.0.0.1:0")
	_, err := client.GetPostThread(context.Background(), "at://did:plc:bob/app.bsky.feed.post/2", 1, 1)
	gt.Error(t, err)
}

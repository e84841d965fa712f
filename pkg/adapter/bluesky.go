package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const DefaultPDSHost = "https://bsky.social"

// Bluesky wraps an XRPC client for the agent account
type Bluesky struct {
	host       string
	httpClient *http.Client

	mu   sync.RWMutex
	auth *xrpc.AuthInfo
}

type BlueskyOption func(*Bluesky)

func WithBlueskyHTTPClient(client *http.Client) BlueskyOption {
	return func(b *Bluesky) {
		b.httpClient = client
	}
}

func NewBluesky(host string, opts ...BlueskyOption) *Bluesky {
	if host == "" {
		host = DefaultPDSHost
	}
	b := &Bluesky{
		host:       strings.TrimSuffix(host, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// client returns an XRPC client bound to a copy of the session
func (b *Bluesky) client(auth *xrpc.AuthInfo) *xrpc.Client {
	return &xrpc.Client{
		Client: b.httpClient,
		Host:   b.host,
		Auth:   auth,
	}
}

func (b *Bluesky) session() *xrpc.AuthInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.auth == nil {
		return nil
	}
	auth := *b.auth
	return &auth
}

// Login creates a session with the account identifier and app password
func (b *Bluesky) Login(ctx context.Context, identifier, password string) error {
	out, err := atproto.ServerCreateSession(ctx, b.client(nil), &atproto.ServerCreateSession_Input{
		Identifier: identifier,
		Password:   password,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create session", goerr.V("identifier", identifier))
	}

	b.mu.Lock()
	b.auth = &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}
	b.mu.Unlock()
	return nil
}

// DID returns the DID of the logged in account
func (b *Bluesky) DID() string {
	if auth := b.session(); auth != nil {
		return auth.Did
	}
	return ""
}

// Handle returns the handle of the logged in account
func (b *Bluesky) Handle() string {
	if auth := b.session(); auth != nil {
		return auth.Handle
	}
	return ""
}

// refresh exchanges the refresh token for a new session. The refresh
// endpoint takes the refresh token as bearer.
func (b *Bluesky) refresh(ctx context.Context) error {
	auth := b.session()
	if auth == nil {
		return goerr.New("not logged in")
	}
	auth.AccessJwt = auth.RefreshJwt

	out, err := atproto.ServerRefreshSession(ctx, b.client(auth))
	if err != nil {
		return goerr.Wrap(err, "failed to refresh session")
	}

	b.mu.Lock()
	b.auth = &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}
	b.mu.Unlock()
	return nil
}

func isExpiredToken(err error) bool {
	var xerr *xrpc.XRPCError
	return errors.As(err, &xerr) && xerr.ErrStr == "ExpiredToken"
}

// call runs fn with the current session, refreshing it once when the access
// token has expired
func (b *Bluesky) call(ctx context.Context, fn func(c *xrpc.Client) error) error {
	auth := b.session()
	if auth == nil {
		return goerr.New("not logged in")
	}

	err := fn(b.client(auth))
	if err == nil || !isExpiredToken(err) {
		return err
	}

	if err := b.refresh(ctx); err != nil {
		return err
	}
	return fn(b.client(b.session()))
}

// GetPostThread fetches the thread view around uri
func (b *Bluesky) GetPostThread(ctx context.Context, uri string, depth, parentHeight int) (*model.ThreadView, error) {
	var out *bsky.FeedGetPostThread_Output
	err := b.call(ctx, func(c *xrpc.Client) error {
		var err error
		out, err = bsky.FeedGetPostThread(ctx, c, int64(depth), int64(parentHeight), uri)
		return err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get post thread", goerr.V("uri", uri))
	}
	if out.Thread == nil {
		return nil, goerr.New("thread is missing in response", goerr.V("uri", uri))
	}

	switch {
	case out.Thread.FeedDefs_ThreadViewPost != nil:
		return toThreadView(out.Thread.FeedDefs_ThreadViewPost)
	case out.Thread.FeedDefs_BlockedPost != nil:
		return &model.ThreadView{Type: model.ThreadBlockedPost}, nil
	default:
		return &model.ThreadView{Type: model.ThreadNotFoundPost}, nil
	}
}

// toThreadView converts the parent chain of node, walked iteratively
func toThreadView(node *bsky.FeedDefs_ThreadViewPost) (*model.ThreadView, error) {
	var head, tail *model.ThreadView
	link := func(v *model.ThreadView) {
		if head == nil {
			head = v
		} else {
			tail.Parent = v
		}
		tail = v
	}

	for node != nil {
		post, err := toPostView(node.Post)
		if err != nil {
			return nil, err
		}
		link(&model.ThreadView{Type: model.ThreadViewPost, Post: post})

		parent := node.Parent
		node = nil
		switch {
		case parent == nil:
		case parent.FeedDefs_ThreadViewPost != nil:
			node = parent.FeedDefs_ThreadViewPost
		case parent.FeedDefs_BlockedPost != nil:
			link(&model.ThreadView{Type: model.ThreadBlockedPost})
		case parent.FeedDefs_NotFoundPost != nil:
			link(&model.ThreadView{Type: model.ThreadNotFoundPost})
		}
	}
	return head, nil
}

// toPostView keeps the record as raw JSON for model.PostView.ToPost
func toPostView(pv *bsky.FeedDefs_PostView) (*model.PostView, error) {
	if pv == nil {
		return nil, nil
	}

	view := &model.PostView{
		URI: pv.Uri,
		CID: pv.Cid,
	}
	if pv.Author != nil {
		view.Author = model.ProfileView{DID: pv.Author.Did, Handle: pv.Author.Handle}
		if pv.Author.DisplayName != nil {
			view.Author.DisplayName = *pv.Author.DisplayName
		}
	}
	if pv.Record != nil && pv.Record.Val != nil {
		raw, err := json.Marshal(pv.Record)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal post record", goerr.V("uri", pv.Uri))
		}
		view.Record = raw
	}
	if t, err := time.Parse(time.RFC3339Nano, pv.IndexedAt); err == nil {
		view.IndexedAt = t
	}
	return view, nil
}

// CreateReply publishes text as a reply described by ref
func (b *Bluesky) CreateReply(ctx context.Context, ref model.ReplyRef, text, lang string) (*model.StrongRef, error) {
	did := b.DID()
	if did == "" {
		return nil, goerr.New("not logged in")
	}

	post := &bsky.FeedPost{
		LexiconTypeID: model.CollectionPost,
		Text:          text,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		Reply: &bsky.FeedPost_ReplyRef{
			Root:   &atproto.RepoStrongRef{Uri: ref.Root.URI, Cid: ref.Root.CID},
			Parent: &atproto.RepoStrongRef{Uri: ref.Parent.URI, Cid: ref.Parent.CID},
		},
	}
	if lang != "" {
		post.Langs = []string{lang}
	}

	var out *atproto.RepoCreateRecord_Output
	err := b.call(ctx, func(c *xrpc.Client) error {
		var err error
		out, err = atproto.RepoCreateRecord(ctx, c, &atproto.RepoCreateRecord_Input{
			Repo:       did,
			Collection: model.CollectionPost,
			Record:     &lexutil.LexiconTypeDecoder{Val: post},
		})
		return err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create reply", goerr.V("parent", ref.Parent.URI))
	}
	return &model.StrongRef{URI: out.Uri, CID: out.Cid}, nil
}

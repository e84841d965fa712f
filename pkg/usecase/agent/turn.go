package agent

import (
	"context"

	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/policy"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// triggeringPost returns the event's own post from the thread. When its node
// was skipped as undecodable, the post is rebuilt from the event record with
// the profile of another post by the same author, or the DID as handle.
func triggeringPost(posts []*model.Post, ev model.Event, record *model.PostRecord) *model.Post {
	uri := ev.URI()
	for _, p := range posts {
		if p.URI == uri {
			return p
		}
	}

	post := &model.Post{
		URI:       uri,
		CID:       ev.Commit.CID,
		AuthorDID: ev.DID,
		Handle:    ev.DID,
		Text:      record.Text,
		Reply:     record.Reply,
		Facets:    record.Facets,
		Embed:     record.Embed,
	}
	for _, p := range posts {
		if p.AuthorDID == ev.DID {
			post.Handle = p.Handle
			post.DisplayName = p.DisplayName
			break
		}
	}
	return post
}

// HandleEvent runs one turn for an inbound event. Events that are not post
// creations, do not address the agent, come from authors outside the
// allowlist or are rejected by the trigger policy end without error.
func (a *Agent) HandleEvent(ctx context.Context, ev model.Event) error {
	if !ev.IsPostCreate() {
		return nil
	}
	if a.fetcher == nil || a.replier == nil {
		return goerr.New("thread fetcher and replier are required to handle events")
	}

	record, err := ev.DecodePost()
	if err != nil {
		return err
	}

	uri := ev.URI()
	logger := logging.From(ctx).With("uri", uri)
	ctx = logging.With(ctx, logger)

	if !IsAddressed(a.did, record) || !a.allowlist.Allows(ev.DID) {
		return nil
	}

	if a.trigger != nil {
		allowed, err := a.trigger.Allow(ctx, policy.NewTriggerInput(uri, ev.DID, a.did, record))
		if err != nil {
			return err
		}
		if !allowed {
			logger.Debug("trigger policy rejected post")
			return nil
		}
	}

	posts, err := Reconstruct(ctx, a.fetcher, uri)
	if err != nil {
		return err
	}
	logger.Debug("thread reconstructed", "posts", len(posts))

	assembled, err := a.Assemble(ctx, posts)
	if err != nil {
		return err
	}
	logger.Debug("context assembled", "messages", len(assembled.Messages), "retrieved", len(assembled.Retrieved))

	if a.archive {
		a.Archive(ctx, posts, assembled.Vectors)
	}

	gen, err := a.Generate(ctx, assembled.Messages)
	if err != nil {
		return err
	}
	a.metrics.Rounds(gen.Rounds)

	if gen.Text == "" {
		logger.Info("empty response, not replying", "rounds", gen.Rounds)
		return nil
	}

	ref := ReplyRef(ev, record)
	posted, err := a.replier.CreateReply(ctx, ref, gen.Text, a.lang)
	if err != nil {
		return goerr.Wrap(err, "failed to post reply", goerr.V("uri", uri))
	}
	a.metrics.Replied()

	var replyURI string
	if posted != nil {
		replyURI = posted.URI
	}
	logger.Info("replied", "reply_uri", replyURI, "rounds", gen.Rounds, "tool_calls", gen.ToolCalls)

	chatLog := model.ChatLog{
		Post:      triggeringPost(posts, ev, record).Render(),
		Response:  gen.Text,
		PosterDID: ev.DID,
	}
	entry, err := a.Commit(ctx, chatLog, ref.Root.URI)
	if err != nil {
		return err
	}

	if a.exchanges != nil {
		exchange := &model.Exchange{
			ID:        entry.ID,
			PostURI:   uri,
			RootURI:   ref.Root.URI,
			PosterDID: ev.DID,
			Post:      chatLog.Post,
			Response:  chatLog.Response,
			Rounds:    gen.Rounds,
			ToolCalls: gen.ToolCalls,
			Replied:   true,
			CreatedAt: a.now(),
		}
		if err := a.exchanges.Record(ctx, exchange); err != nil {
			logger.Warn("failed to record exchange", "error", err)
		}
	}

	return nil
}

// ReplyRef builds the reply reference for the event's post: the parent is
// the post itself and the root is the post's own root, or the post when it
// starts a thread.
func ReplyRef(ev model.Event, record *model.PostRecord) model.ReplyRef {
	self := ev.Ref()
	ref := model.ReplyRef{Root: self, Parent: self}
	if record != nil && record.Reply != nil && record.Reply.Root.URI != "" {
		ref.Root = record.Reply.Root
	}
	return ref
}

package agent

import (
	"context"
	"slices"

	"github.com/m-mizutani/aigis/pkg/interfaces"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Thread fetch bounds passed to getPostThread
const (
	ThreadDepth        = 1000
	ThreadParentHeight = 1000
)

// Reconstruct fetches the thread of uri and returns its posts oldest first.
// Parents are walked iteratively until a missing, not-found or blocked
// node. Posts whose record cannot be decoded are skipped.
func Reconstruct(ctx context.Context, fetcher interfaces.ThreadFetcher, uri string) ([]*model.Post, error) {
	view, err := fetcher.GetPostThread(ctx, uri, ThreadDepth, ThreadParentHeight)
	if err != nil {
		return nil, goerr.Wrap(model.Kind(model.ErrThreadFetch, err), "failed to fetch thread", goerr.V("uri", uri))
	}
	if !view.IsPost() {
		var typ string
		if view != nil {
			typ = view.Type
		}
		return nil, goerr.Wrap(model.ErrThreadFetch, "unexpected thread type",
			goerr.V("uri", uri), goerr.V("type", typ))
	}

	var posts []*model.Post
	for node := view; node.IsPost(); node = node.Parent {
		post, err := node.Post.ToPost()
		if err != nil {
			logging.From(ctx).Warn("skip undecodable post in thread", "uri", node.Post.URI, "error", err)
			continue
		}
		posts = append(posts, post)
	}

	if len(posts) == 0 {
		return nil, goerr.Wrap(model.ErrThreadFetch, "thread has no decodable post", goerr.V("uri", uri))
	}

	// collected child to parent
	slices.Reverse(posts)
	return posts, nil
}

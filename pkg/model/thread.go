package model

import (
	"encoding/json"
	"time"
)

const (
	ThreadViewPost     = "app.bsky.feed.defs#threadViewPost"
	ThreadNotFoundPost = "app.bsky.feed.defs#notFoundPost"
	ThreadBlockedPost  = "app.bsky.feed.defs#blockedPost"
)

type ProfileView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
}

type PostView struct {
	URI       string          `json:"uri"`
	CID       string          `json:"cid"`
	Author    ProfileView     `json:"author"`
	Record    json.RawMessage `json:"record"`
	IndexedAt time.Time       `json:"indexedAt"`
}

// ThreadView is a node of the nested thread structure returned by
// app.bsky.feed.getPostThread. Only threadViewPost nodes carry a post.
type ThreadView struct {
	Type   string      `json:"$type"`
	Post   *PostView   `json:"post,omitempty"`
	Parent *ThreadView `json:"parent,omitempty"`
}

// IsPost returns true if the node is a threadViewPost with a post body
func (v *ThreadView) IsPost() bool {
	return v != nil && v.Type == ThreadViewPost && v.Post != nil
}

// ToPost decodes the post view record into a Post
func (v *PostView) ToPost() (*Post, error) {
	var record PostRecord
	if err := json.Unmarshal(v.Record, &record); err != nil {
		return nil, err
	}

	return &Post{
		URI:         v.URI,
		CID:         v.CID,
		AuthorDID:   v.Author.DID,
		Handle:      v.Author.Handle,
		DisplayName: v.Author.DisplayName,
		Text:        record.Text,
		IndexedAt:   v.IndexedAt,
		Reply:       record.Reply,
		Facets:      record.Facets,
		Embed:       record.Embed,
	}, nil
}

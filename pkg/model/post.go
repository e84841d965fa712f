package model

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	CollectionPost = "app.bsky.feed.post"

	facetMention = "app.bsky.richtext.facet#mention"
)

// StrongRef is a reference to a specific version of a record
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// ReplyRef contains references to the parent and root of a reply chain
type ReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

// FacetIndex is a byte range of the post text
type FacetIndex struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

// FacetFeature is one rich-text annotation. Only mention, link and tag
// features are interpreted; other types are kept with Type set only.
type FacetFeature struct {
	Type string `json:"$type"`
	DID  string `json:"did,omitempty"`
	URI  string `json:"uri,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

// IsMentionOf returns true if the feature is a mention of did
func (f FacetFeature) IsMentionOf(did string) bool {
	return f.Type == facetMention && f.DID != "" && f.DID == did
}

type Facet struct {
	Index    FacetIndex     `json:"index"`
	Features []FacetFeature `json:"features"`
}

// PostRecord is the app.bsky.feed.post record payload. Embed is decoded
// from the raw embed union; unknown embed types leave it nil.
type PostRecord struct {
	Type      string          `json:"$type,omitempty"`
	Text      string          `json:"text"`
	CreatedAt string          `json:"createdAt"`
	Langs     []string        `json:"langs,omitempty"`
	Reply     *ReplyRef       `json:"reply,omitempty"`
	Facets    []Facet         `json:"facets,omitempty"`
	RawEmbed  json.RawMessage `json:"embed,omitempty"`
	Embed     *Embed          `json:"-"`
}

func (r *PostRecord) UnmarshalJSON(data []byte) error {
	type alias PostRecord
	var v alias
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = PostRecord(v)
	r.Embed = DecodeEmbed(r.RawEmbed)
	return nil
}

// MentionedDIDs returns the DIDs of all mention facets in order of appearance
func (r *PostRecord) MentionedDIDs() []string {
	var dids []string
	for _, facet := range r.Facets {
		for _, f := range facet.Features {
			if f.Type == facetMention && f.DID != "" {
				dids = append(dids, f.DID)
			}
		}
	}
	return dids
}

// Post is a post ready for one processing pass: record content plus
// author and indexing information from the thread view.
type Post struct {
	URI         string
	CID         string
	AuthorDID   string
	Handle      string
	DisplayName string
	Text        string
	IndexedAt   time.Time
	Reply       *ReplyRef
	Facets      []Facet
	Embed       *Embed
}

// Author returns "Display Name (handle)" or the bare handle when the
// author has no display name
func (p *Post) Author() string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name + " (" + p.Handle + ")"
	}
	return p.Handle
}

// Render returns the plain message used to converse with the model
func (p *Post) Render() string {
	return p.Author() + ": " + p.Text
}

// EmbeddingText returns the rendered message enriched with the embed summary.
// Only embedding input carries the summary.
func (p *Post) EmbeddingText() string {
	if summary := p.Embed.Summary(); summary != "" {
		return p.Render() + "\n" + summary
	}
	return p.Render()
}

// archivedPost is the JSON document stored as archival memory content
type archivedPost struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	URI       string `json:"uri"`
	AuthorDID string `json:"author_did"`
	IndexedAt string `json:"indexed_at,omitempty"`
	Embed     *Embed `json:"embed,omitempty"`
}

// ArchiveJSON serializes the post for archival memory. It falls back to the
// rendered message if marshaling fails.
func (p *Post) ArchiveJSON() string {
	v := archivedPost{
		Author:    p.Author(),
		Text:      p.Text,
		URI:       p.URI,
		AuthorDID: p.AuthorDID,
		Embed:     p.Embed,
	}
	if !p.IndexedAt.IsZero() {
		v.IndexedAt = p.IndexedAt.UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return p.Render()
	}
	return string(raw)
}

// FormatATURI builds at://{did}/{collection}/{rkey}
func FormatATURI(did, collection, rkey string) string {
	return "at://" + did + "/" + collection + "/" + rkey
}

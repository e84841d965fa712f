package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

type EmbedKind string

const (
	EmbedImages          EmbedKind = "images"
	EmbedExternal        EmbedKind = "external"
	EmbedVideo           EmbedKind = "video"
	EmbedRecord          EmbedKind = "record"
	EmbedRecordWithMedia EmbedKind = "record_with_media"
)

const (
	lexEmbedImages          = "app.bsky.embed.images"
	lexEmbedExternal        = "app.bsky.embed.external"
	lexEmbedVideo           = "app.bsky.embed.video"
	lexEmbedRecord          = "app.bsky.embed.record"
	lexEmbedRecordWithMedia = "app.bsky.embed.recordWithMedia"
)

type EmbedImage struct {
	Image string `json:"image"`
	Alt   string `json:"alt,omitempty"`
}

type EmbedLink struct {
	URI         string `json:"uri"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Embed is the tagged union of post embeds. Kind selects which fields are set:
// Images for images, External for external, Video for video, Record for
// record, Record and Media for record_with_media.
type Embed struct {
	Kind     EmbedKind    `json:"kind"`
	Images   []EmbedImage `json:"images,omitempty"`
	External *EmbedLink   `json:"external,omitempty"`
	Video    string       `json:"video,omitempty"`
	Record   *StrongRef   `json:"record,omitempty"`
	Media    *Embed       `json:"media,omitempty"`
}

// QuotedURI returns the URI of the quoted record for record and
// record_with_media embeds
func (e *Embed) QuotedURI() string {
	if e == nil || e.Record == nil {
		return ""
	}
	switch e.Kind {
	case EmbedRecord, EmbedRecordWithMedia:
		return e.Record.URI
	}
	return ""
}

// Summary returns a normalized textual description of the embed, or empty
// string for nil or unrecognized embeds
func (e *Embed) Summary() string {
	if e == nil {
		return ""
	}

	switch e.Kind {
	case EmbedImages:
		items := make([]string, 0, len(e.Images))
		for _, img := range e.Images {
			if img.Alt != "" {
				items = append(items, fmt.Sprintf("%q", img.Alt))
			} else {
				items = append(items, "image")
			}
		}
		return "[Images: " + strings.Join(items, ", ") + "]"

	case EmbedExternal:
		if e.External == nil {
			return ""
		}
		s := "[External link: " + e.External.URI + "]"
		if e.External.Title != "" {
			s += fmt.Sprintf(" - %q", e.External.Title)
		}
		if e.External.Description != "" {
			s += " " + e.External.Description
		}
		return s

	case EmbedVideo:
		return "[Video]"

	case EmbedRecord:
		return "[Quoted post: " + e.QuotedURI() + "]"

	case EmbedRecordWithMedia:
		s := "[Quoted post with media: " + e.QuotedURI() + "]"
		if media := e.Media.Summary(); media != "" {
			s += " " + media
		}
		return s
	}

	return ""
}

type rawBlob struct {
	Ref struct {
		Link string `json:"$link"`
	} `json:"ref"`
	CID string `json:"cid"`
}

func (b *rawBlob) link() string {
	if b == nil {
		return ""
	}
	if b.Ref.Link != "" {
		return b.Ref.Link
	}
	return b.CID
}

type rawEmbed struct {
	Type   string `json:"$type"`
	Images []struct {
		Alt   string   `json:"alt"`
		Image *rawBlob `json:"image"`
	} `json:"images"`
	External *EmbedLink      `json:"external"`
	Video    *rawBlob        `json:"video"`
	Record   json.RawMessage `json:"record"`
	Media    json.RawMessage `json:"media"`
}

// DecodeEmbed decodes a record embed union by its $type. Empty input,
// malformed JSON and unknown types all yield nil.
func DecodeEmbed(raw json.RawMessage) *Embed {
	if len(raw) == 0 {
		return nil
	}

	var v rawEmbed
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}

	switch v.Type {
	case lexEmbedImages:
		e := &Embed{Kind: EmbedImages}
		for _, img := range v.Images {
			e.Images = append(e.Images, EmbedImage{Image: img.Image.link(), Alt: img.Alt})
		}
		return e

	case lexEmbedExternal:
		if v.External == nil {
			return nil
		}
		return &Embed{Kind: EmbedExternal, External: v.External}

	case lexEmbedVideo:
		return &Embed{Kind: EmbedVideo, Video: v.Video.link()}

	case lexEmbedRecord:
		var ref StrongRef
		if err := json.Unmarshal(v.Record, &ref); err != nil {
			return nil
		}
		return &Embed{Kind: EmbedRecord, Record: &ref}

	case lexEmbedRecordWithMedia:
		// record is an app.bsky.embed.record object wrapping the strong ref
		var wrapped struct {
			Record StrongRef `json:"record"`
		}
		if err := json.Unmarshal(v.Record, &wrapped); err != nil {
			return nil
		}
		e := &Embed{Kind: EmbedRecordWithMedia, Record: &wrapped.Record}
		if media := DecodeEmbed(v.Media); media != nil && (media.Kind == EmbedImages || media.Kind == EmbedVideo || media.Kind == EmbedExternal) {
			e.Media = media
		}
		return e
	}

	return nil
}

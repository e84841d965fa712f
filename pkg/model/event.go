package model

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

const (
	EventKindCommit = "commit"
	OperationCreate = "create"
)

// Event is one Jetstream message
type Event struct {
	DID    string  `json:"did"`
	TimeUS int64   `json:"time_us"`
	Kind   string  `json:"kind"`
	Commit *Commit `json:"commit,omitempty"`
}

// Commit is the commit payload of a Jetstream event
type Commit struct {
	Rev        string          `json:"rev"`
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	Record     json.RawMessage `json:"record,omitempty"`
	CID        string          `json:"cid"`
}

// IsPostCreate returns true for newly created post records carrying a record body
func (e *Event) IsPostCreate() bool {
	return e.Kind == EventKindCommit &&
		e.Commit != nil &&
		e.Commit.Operation == OperationCreate &&
		e.Commit.Collection == CollectionPost &&
		len(e.Commit.Record) > 0
}

// URI returns the AT-URI of the committed record
func (e *Event) URI() string {
	if e.Commit == nil {
		return ""
	}
	return FormatATURI(e.DID, e.Commit.Collection, e.Commit.RKey)
}

// Ref returns the strong reference of the committed record
func (e *Event) Ref() StrongRef {
	ref := StrongRef{URI: e.URI()}
	if e.Commit != nil {
		ref.CID = e.Commit.CID
	}
	return ref
}

// DecodePost decodes the commit record as a post record
func (e *Event) DecodePost() (*PostRecord, error) {
	if e.Commit == nil || len(e.Commit.Record) == 0 {
		return nil, goerr.Wrap(ErrDeserialization, "event has no record", goerr.V("did", e.DID))
	}

	var record PostRecord
	if err := json.Unmarshal(e.Commit.Record, &record); err != nil {
		return nil, goerr.Wrap(Kind(ErrDeserialization, err), "failed to decode post record",
			goerr.V("uri", e.URI()))
	}
	return &record, nil
}

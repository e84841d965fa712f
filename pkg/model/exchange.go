package model

import "time"

// Exchange is one completed turn as written to the exchange log
type Exchange struct {
	ID        string    `json:"id" bigquery:"id"`
	PostURI   string    `json:"post_uri" bigquery:"post_uri"`
	RootURI   string    `json:"root_uri" bigquery:"root_uri"`
	PosterDID string    `json:"poster_did" bigquery:"poster_did"`
	Post      string    `json:"post" bigquery:"post"`
	Response  string    `json:"response" bigquery:"response"`
	Rounds    int       `json:"rounds" bigquery:"rounds"`
	ToolCalls int       `json:"tool_calls" bigquery:"tool_calls"`
	Replied   bool      `json:"replied" bigquery:"replied"`
	CreatedAt time.Time `json:"created_at" bigquery:"created_at"`
}

package tool

import (
	"net/http"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:139.0) Gecko/20100101 Firefox/139.0"

// Client contains shared resources that tools can use
type Client struct {
	HTTP      *http.Client
	UserAgent string
}

// NewClient returns a Client with a bounded HTTP timeout
func NewClient() *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		UserAgent: defaultUserAgent,
	}
}

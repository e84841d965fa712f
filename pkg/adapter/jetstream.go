package adapter

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const DefaultJetstreamURL = "wss://jetstream2.us-east.bsky.network/subscribe"

// Jetstream consumes post commit events from a Jetstream instance
type Jetstream struct {
	endpoint   string
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
}

type JetstreamOption func(*Jetstream)

func WithJetstreamBackoff(min, max time.Duration) JetstreamOption {
	return func(j *Jetstream) {
		j.minBackoff = min
		j.maxBackoff = max
	}
}

func NewJetstream(endpoint string, opts ...JetstreamOption) *Jetstream {
	if endpoint == "" {
		endpoint = DefaultJetstreamURL
	}
	j := &Jetstream{
		endpoint:   endpoint,
		dialer:     websocket.DefaultDialer,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// SubscribeURL builds the subscription URL for post events, resuming from
// cursor when it is positive
func (j *Jetstream) SubscribeURL(cursor int64) (string, error) {
	u, err := url.Parse(j.endpoint)
	if err != nil {
		return "", goerr.Wrap(err, "invalid jetstream endpoint", goerr.V("endpoint", j.endpoint))
	}

	q := u.Query()
	q.Set("wantedCollections", model.CollectionPost)
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run streams events into out until ctx is canceled. On disconnect it
// reconnects with exponential backoff, resuming from cursor(). Messages that
// fail to decode are logged and skipped.
func (j *Jetstream) Run(ctx context.Context, out chan<- model.Event, cursor func() int64) error {
	backoff := j.minBackoff

	for {
		var c int64
		if cursor != nil {
			c = cursor()
		}

		received, err := j.consume(ctx, out, c)
		if ctx.Err() != nil {
			return nil
		}
		if received {
			backoff = j.minBackoff
		}

		logging.From(ctx).Warn("jetstream disconnected, reconnecting",
			"error", err, "cursor", c, "backoff", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > j.maxBackoff {
			backoff = j.maxBackoff
		}
	}
}

func (j *Jetstream) consume(ctx context.Context, out chan<- model.Event, cursor int64) (bool, error) {
	subscribeURL, err := j.SubscribeURL(cursor)
	if err != nil {
		return false, err
	}

	conn, _, err := j.dialer.DialContext(ctx, subscribeURL, nil)
	if err != nil {
		return false, goerr.Wrap(err, "failed to connect jetstream", goerr.V("url", subscribeURL))
	}
	defer conn.Close()

	logging.From(ctx).Info("connected to jetstream", "url", subscribeURL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	received := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return received, goerr.Wrap(err, "failed to read jetstream message")
		}
		received = true

		var ev model.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			logging.From(ctx).Warn("failed to decode jetstream event",
				"error", goerr.Wrap(model.Kind(model.ErrDeserialization, err), "invalid event"))
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return received, ctx.Err()
		}
	}
}

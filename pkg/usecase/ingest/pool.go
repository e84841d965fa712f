package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m-mizutani/aigis/pkg/metrics"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the pool size when none is configured
const DefaultWorkers = 3

// Handler processes one inbound event
type Handler interface {
	HandleEvent(ctx context.Context, ev model.Event) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, ev model.Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, ev model.Event) error {
	return f(ctx, ev)
}

// Pool dispatches events from one inbound queue to a fixed number of
// concurrent workers
type Pool struct {
	handler Handler
	workers int64
	sem     *semaphore.Weighted
	cursor  *CursorTracker
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

type PoolOption func(*Pool)

// WithWorkers sets the number of concurrent turns. Values below 1 keep the default.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = int64(n)
		}
	}
}

// WithCursor makes the pool report every received event's time to tracker
func WithCursor(tracker *CursorTracker) PoolOption {
	return func(p *Pool) {
		p.cursor = tracker
	}
}

func WithMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

func NewPool(handler Handler, opts ...PoolOption) *Pool {
	p := &Pool{
		handler: handler,
		workers: DefaultWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sem = semaphore.NewWeighted(p.workers)
	return p
}

// Run consumes events until the channel is closed or ctx is canceled, then
// waits for running turns to finish. Only post creations are dispatched.
func (p *Pool) Run(ctx context.Context, events <-chan model.Event) error {
	defer p.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}

			p.cursor.Observe(ev.TimeUS)
			if !ev.IsPostCreate() {
				continue
			}

			if err := p.sem.Acquire(ctx, 1); err != nil {
				// only fails on cancellation
				return nil
			}

			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				defer p.sem.Release(1)
				p.dispatch(ctx, ev)
			}()
		}
	}
}

func (p *Pool) dispatch(ctx context.Context, ev model.Event) {
	logger := logging.From(ctx).With("uri", ev.URI(), "did", ev.DID, "time_us", ev.TimeUS)
	ctx = logging.With(ctx, logger)

	started := time.Now()
	p.metrics.TurnStarted()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("panic in event handler", goerr.V("panic", fmt.Sprint(r)))
		}
		p.metrics.TurnFinished(time.Since(started), err != nil)
		if err != nil {
			logger.Error("failed to handle event", "error", err)
		}
	}()

	err = p.handler.HandleEvent(ctx, ev)
}

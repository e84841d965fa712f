package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/aigis/pkg/interfaces"
	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultCursorInterval is how often the cursor is persisted
const DefaultCursorInterval = 60 * time.Second

// CursorTracker keeps the latest event time seen and persists it
// periodically. A nil tracker ignores observations.
type CursorTracker struct {
	store    interfaces.CursorStore
	interval time.Duration

	mu     sync.Mutex
	cursor int64
	saved  int64
}

func NewCursorTracker(store interfaces.CursorStore, interval time.Duration) *CursorTracker {
	if interval <= 0 {
		interval = DefaultCursorInterval
	}
	return &CursorTracker{store: store, interval: interval}
}

// Load reads the persisted cursor. It returns 0 when none was saved.
func (t *CursorTracker) Load(ctx context.Context) (int64, error) {
	cursor, ok, err := t.store.Load(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to load cursor")
	}
	if !ok {
		return 0, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if cursor > t.cursor {
		t.cursor = cursor
	}
	t.saved = cursor
	return cursor, nil
}

// Observe records an event time. The cursor never moves backwards.
func (t *CursorTracker) Observe(timeUS int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if timeUS > t.cursor {
		t.cursor = timeUS
	}
}

// Cursor returns the latest observed event time
func (t *CursorTracker) Cursor() int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

// Flush persists the cursor if it moved since the last save
func (t *CursorTracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	cursor := t.cursor
	saved := t.saved
	t.mu.Unlock()

	if cursor == 0 || cursor == saved {
		return nil
	}

	if err := t.store.Save(ctx, cursor); err != nil {
		return goerr.Wrap(err, "failed to save cursor", goerr.V("cursor", cursor))
	}

	t.mu.Lock()
	if cursor > t.saved {
		t.saved = cursor
	}
	t.mu.Unlock()

	logging.From(ctx).Debug("cursor saved", "cursor", cursor)
	return nil
}

// Run flushes every interval until ctx is canceled, then flushes once more
func (t *CursorTracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return t.Flush(context.WithoutCancel(ctx))
		case <-ticker.C:
			if err := t.Flush(ctx); err != nil {
				logging.From(ctx).Warn("failed to persist cursor", "error", err)
			}
		}
	}
}

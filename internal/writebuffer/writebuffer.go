// Package writebuffer batches session upserts so a burst of file-watcher
// events doesn't turn into one SQLite transaction per changed file. It
// flushes when either a size or a time threshold is crossed, following the
// same debounce-then-flush shape the rest of this codebase uses for
// coalescing bursty events into a single downstream write.
package writebuffer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pi-agent/session-manager/internal/model"
	"github.com/pi-agent/session-manager/internal/parser"
	"github.com/pi-agent/session-manager/internal/store"
)

const (
	maxBufferedItems = 50
	flushInterval    = 30 * time.Second
)

type pendingWrite struct {
	session model.Session
	entries []model.MessageEntry
}

// Buffer accumulates parsed sessions and flushes them to a Store in
// batches.
type Buffer struct {
	st store.Store

	mu      sync.Mutex
	pending map[string]pendingWrite // keyed by session path, last-write-wins

	flushCh chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New creates a Buffer writing to st and starts its background flush loop.
func New(st store.Store) *Buffer {
	b := &Buffer{
		st:      st,
		pending: make(map[string]pendingWrite),
		flushCh: make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// Add queues a parsed session for writing. If the buffer is now at or past
// its size threshold, a flush is triggered immediately rather than waiting
// for the timer.
func (b *Buffer) Add(result *parser.Result) {
	b.mu.Lock()
	b.pending[result.Session.Path] = pendingWrite{session: result.Session, entries: result.Entries}
	full := len(b.pending) >= maxBufferedItems
	b.mu.Unlock()

	if full {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
}

func (b *Buffer) loop() {
	defer b.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.closeCh:
			b.flush()
			return
		case <-ticker.C:
			b.flush()
		case <-b.flushCh:
			b.flush()
		}
	}
}

func (b *Buffer) flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make(map[string]pendingWrite)
	b.mu.Unlock()

	ctx := context.Background()
	for path, w := range batch {
		if err := b.st.UpsertSession(ctx, w.session, w.entries); err != nil {
			slog.Warn("write buffer flush failed", "path", path, "error", err)
		}
	}
}

// Flush forces an immediate synchronous flush, used by callers (e.g. delete
// or rename handlers) that need the buffer to settle before reading back
// from the store.
func (b *Buffer) Flush() {
	b.flush()
}

// Close stops the background loop after a final flush.
func (b *Buffer) Close() {
	close(b.closeCh)
	b.wg.Wait()
}

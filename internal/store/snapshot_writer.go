package store

import (
	"context"
	"log"
	"sync"
	"time"

	"drawspace-backend/internal/model"
	"drawspace-backend/pkg/retry"
)

// SnapshotPersister applies a coalesced batch to durable storage
type SnapshotPersister interface {
	ApplyAndPersist(canvasID string, events []*model.DrawingEvent) (int64, error)
}

// SnapshotWriter coalesces rapid drawing events into batched snapshot
// writes so the broadcast hot path never waits on the database. Failed
// flushes are retried with backoff and logged, never dropped silently.
type SnapshotWriter struct {
	store    SnapshotPersister
	window   time.Duration
	retryCfg retry.Config
	onFlush  func(canvasID string, version int64)

	mu      sync.Mutex
	pending map[string][]*model.DrawingEvent // canvasID -> events since last flush

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSnapshotWriter SnapshotWriter 생성
func NewSnapshotWriter(store SnapshotPersister, window time.Duration) *SnapshotWriter {
	ctx, cancel := context.WithCancel(context.Background())
	return &SnapshotWriter{
		store:    store,
		window:   window,
		retryCfg: retry.DefaultConfig(),
		pending:  make(map[string][]*model.DrawingEvent),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// OnFlush registers a callback that receives the new snapshot version
// after each successful flush. Must be set before Start.
func (w *SnapshotWriter) OnFlush(fn func(canvasID string, version int64)) {
	w.onFlush = fn
}

// Start launches the flush loop
func (w *SnapshotWriter) Start() {
	go w.run()
}

// Enqueue queues an event for the next coalesced flush. Fire-and-forget
// from the caller's perspective.
func (w *SnapshotWriter) Enqueue(canvasID string, event *model.DrawingEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if event.Kind == model.EventKindClear {
		// Everything queued before a clear is invisible after it
		w.pending[canvasID] = []*model.DrawingEvent{event}
		return
	}
	w.pending[canvasID] = append(w.pending[canvasID], event)
}

// PendingCount reports queued events for a canvas (used by tests and the
// drain path)
func (w *SnapshotWriter) PendingCount(canvasID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending[canvasID])
}

func (w *SnapshotWriter) run() {
	log.Printf("[SnapshotWriter] Started (window: %v)", w.window)
	defer close(w.done)

	ticker := time.NewTicker(w.window)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			// the writer's own context is gone; drain with a fresh one
			w.flushAll(context.Background())
			log.Printf("[SnapshotWriter] Stopped")
			return
		case <-ticker.C:
			w.flushAll(w.ctx)
		}
	}
}

// flushAll writes one coalesced update per dirty canvas
func (w *SnapshotWriter) flushAll(ctx context.Context) {
	w.mu.Lock()
	batches := w.pending
	w.pending = make(map[string][]*model.DrawingEvent)
	w.mu.Unlock()

	for canvasID, events := range batches {
		w.flush(ctx, canvasID, events)
	}
}

func (w *SnapshotWriter) flush(ctx context.Context, canvasID string, events []*model.DrawingEvent) {
	var version int64
	err := retry.Do(ctx, w.retryCfg, func() error {
		v, err := w.store.ApplyAndPersist(canvasID, events)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		// Durability degraded, live collaboration unaffected
		log.Printf("[SnapshotWriter] Flush failed for canvas %s (%d events): %v",
			canvasID, len(events), err)
		return
	}
	if w.onFlush != nil {
		w.onFlush(canvasID, version)
	}
}

// Close stops the loop after a final drain
func (w *SnapshotWriter) Close() {
	w.cancel()
	<-w.done
}

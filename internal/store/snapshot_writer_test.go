package store_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawspace-backend/internal/model"
	"drawspace-backend/internal/store"
)

type flushRecord struct {
	canvasID string
	events   []*model.DrawingEvent
}

type fakePersister struct {
	mu      sync.Mutex
	flushes []flushRecord
	fail    int // fail this many calls before succeeding
	version int64
}

func (f *fakePersister) ApplyAndPersist(canvasID string, events []*model.DrawingEvent) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return 0, errors.New("store unavailable")
	}
	f.flushes = append(f.flushes, flushRecord{canvasID: canvasID, events: events})
	f.version++
	return f.version, nil
}

func (f *fakePersister) flushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flushes)
}

func (f *fakePersister) flushAt(i int) flushRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes[i]
}

func strokeAt(x float64) *model.DrawingEvent {
	return &model.DrawingEvent{
		Kind:   model.EventKindStroke,
		Points: []model.Point{{X: x, Y: 0}},
		Tool:   model.ToolPen,
	}
}

func TestSnapshotWriter_CoalescesOneFlushPerWindow(t *testing.T) {
	persister := &fakePersister{}
	w := store.NewSnapshotWriter(persister, 50*time.Millisecond)
	w.Start()
	defer w.Close()

	for i := 0; i < 10; i++ {
		w.Enqueue("c1", strokeAt(float64(i)))
	}
	assert.Equal(t, 10, w.PendingCount("c1"))

	require.Eventually(t, func() bool {
		return persister.flushCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := persister.flushAt(0)
	assert.Equal(t, "c1", got.canvasID)
	assert.Len(t, got.events, 10)
	assert.Equal(t, 0, w.PendingCount("c1"))
}

func TestSnapshotWriter_SeparateCanvasesFlushSeparately(t *testing.T) {
	persister := &fakePersister{}
	w := store.NewSnapshotWriter(persister, 30*time.Millisecond)
	w.Start()
	defer w.Close()

	w.Enqueue("c1", strokeAt(1))
	w.Enqueue("c2", strokeAt(2))

	require.Eventually(t, func() bool {
		return persister.flushCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[persister.flushAt(i).canvasID] = true
	}
	assert.True(t, seen["c1"] && seen["c2"])
}

func TestSnapshotWriter_ClearSupersedesQueuedEvents(t *testing.T) {
	persister := &fakePersister{}
	w := store.NewSnapshotWriter(persister, time.Hour) // flush manually via Close
	w.Start()

	w.Enqueue("c1", strokeAt(1))
	w.Enqueue("c1", strokeAt(2))
	w.Enqueue("c1", &model.DrawingEvent{Kind: model.EventKindClear})
	assert.Equal(t, 1, w.PendingCount("c1"))

	w.Enqueue("c1", strokeAt(3))
	w.Close() // final drain

	require.Equal(t, 1, persister.flushCount())
	got := persister.flushAt(0)
	require.Len(t, got.events, 2)
	assert.Equal(t, model.EventKindClear, got.events[0].Kind)
	assert.Equal(t, model.EventKindStroke, got.events[1].Kind)
}

func TestSnapshotWriter_ReportsFlushedVersion(t *testing.T) {
	persister := &fakePersister{version: 41}

	var mu sync.Mutex
	type flushed struct {
		canvasID string
		version  int64
	}
	var reported []flushed

	w := store.NewSnapshotWriter(persister, 30*time.Millisecond)
	w.OnFlush(func(canvasID string, version int64) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, flushed{canvasID: canvasID, version: version})
	})
	w.Start()
	defer w.Close()

	w.Enqueue("c1", strokeAt(1))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "c1", reported[0].canvasID)
	assert.Equal(t, int64(42), reported[0].version)
}

func TestSnapshotWriter_RetriesFailedFlush(t *testing.T) {
	persister := &fakePersister{fail: 2}
	w := store.NewSnapshotWriter(persister, 30*time.Millisecond)
	w.Start()
	defer w.Close()

	w.Enqueue("c1", strokeAt(1))

	require.Eventually(t, func() bool {
		return persister.flushCount() == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSnapshotWriter_CloseDrainsPending(t *testing.T) {
	persister := &fakePersister{}
	w := store.NewSnapshotWriter(persister, time.Hour)
	w.Start()

	w.Enqueue("c1", strokeAt(1))
	w.Close()

	assert.Equal(t, 1, persister.flushCount())
}

// workers/snapshot_worker.go
package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"reading-club-system/models"
	"reading-club-system/storage"
)

// Snapshotter produces a consistent copy of the club state.
type Snapshotter interface {
	Snapshot() *models.Snapshot
}

// SnapshotWorker periodically writes the club snapshot to a store. A failed
// save is only logged; the next tick writes the then-current state.
type SnapshotWorker struct {
	source   Snapshotter
	store    storage.Store
	interval time.Duration

	mu        sync.Mutex
	lastSaved time.Time
	failures  int
}

func NewSnapshotWorker(source Snapshotter, store storage.Store, interval time.Duration) *SnapshotWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SnapshotWorker{source: source, store: store, interval: interval}
}

// Flush saves one snapshot now. Concurrent flushes are serialized.
func (w *SnapshotWorker) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := w.source.Snapshot()
	if err := w.store.Save(ctx, snap); err != nil {
		w.failures++
		log.Printf("[Snapshot] ❌ save failed (%d in a row): %v", w.failures, err)
		return err
	}
	if w.failures > 0 {
		log.Printf("[Snapshot] ✅ save recovered after %d failure(s)", w.failures)
	}
	w.failures = 0
	w.lastSaved = snap.TakenAt
	return nil
}

// LastSaved returns the TakenAt of the last successfully stored snapshot.
func (w *SnapshotWorker) LastSaved() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSaved
}

// Run flushes every interval until ctx is done, then flushes once more.
func (w *SnapshotWorker) Run(ctx context.Context) {
	log.Printf("💾 Snapshot worker running (every %s)", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := w.Flush(final); err == nil {
				log.Println("[Snapshot] final snapshot written")
			}
			cancel()
			log.Println("⏹️ Snapshot worker stopped")
			return
		case <-ticker.C:
			_ = w.Flush(ctx)
		}
	}
}

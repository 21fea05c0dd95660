package syncrun

import (
	"sync"
	"time"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// Progress is one live snapshot of a running sync, published in-memory
// for the 5-second status poll. Throughput is items per second since
// the run started; ETA is seconds until done at that rate, -1 when the
// rate is still zero.
type Progress struct {
	SyncLogID  int64   `json:"sync_log_id"`
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Throughput float64 `json:"throughput"`
	ETASeconds float64 `json:"eta_seconds"`
}

// Tracker accumulates page results for one run and produces snapshots.
// Safe for concurrent use: the engine advances it while the status
// endpoint reads it.
type Tracker struct {
	mu         sync.Mutex
	clock      shared.Clock
	syncLogID  int64
	startedAt  time.Time
	page       int
	totalPages int
	processed  int
	total      int
}

// NewTracker starts the throughput window at the current clock time.
func NewTracker(clock shared.Clock, syncLogID int64) *Tracker {
	return &Tracker{
		clock:     clock,
		syncLogID: syncLogID,
		startedAt: clock.Now(),
	}
}

// SetTotal records the totals announced by the first page.
func (t *Tracker) SetTotal(totalItems, totalPages int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = totalItems
	t.totalPages = totalPages
}

// Advance records a finished page.
func (t *Tracker) Advance(page, itemsOnPage int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.page = page
	t.processed += itemsOnPage
}

// Snapshot returns the current progress view.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := Progress{
		SyncLogID:  t.syncLogID,
		Page:       t.page,
		TotalPages: t.totalPages,
		Processed:  t.processed,
		Total:      t.total,
		ETASeconds: -1,
	}
	elapsed := t.clock.Now().Sub(t.startedAt).Seconds()
	if elapsed > 0 && t.processed > 0 {
		p.Throughput = float64(t.processed) / elapsed
		if remaining := t.total - t.processed; remaining >= 0 && p.Throughput > 0 {
			p.ETASeconds = float64(remaining) / p.Throughput
		}
	}
	return p
}

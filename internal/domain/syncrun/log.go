package syncrun

import (
	"fmt"
	"time"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// Status is the sync log lifecycle value. queued and running are live;
// the other three are terminal and write-once.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Log is the durable record of one sync invocation. One row per
// submission, never deleted; the latest row per (account, resource) is
// the public status source.
//
// Transitions:
//
//	queued → running → succeeded | failed | cancelled
//	queued → failed | cancelled            (submission abandoned)
//
// Counters only grow, and processed never exceeds the total announced
// by the first page.
type Log struct {
	ID    int64
	RunID string

	Account  shared.Account
	Resource Resource
	Mode     Mode
	Strategy ConflictStrategy
	Actor    string

	Status       Status
	ErrorMessage string
	Note         string

	TotalItems     int
	ProcessedItems int
	CreatedCount   int
	UpdatedCount   int
	SkippedCount   int
	FailedCount    int

	CancelRequested bool

	StartedAt   *time.Time
	FinishedAt  *time.Time
	HeartbeatAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewLog creates the queued row for a validated request.
func NewLog(runID string, req Request, now time.Time) *Log {
	return &Log{
		RunID:     runID,
		Account:   req.Account,
		Resource:  req.Resource,
		Mode:      req.Mode,
		Strategy:  req.Strategy,
		Actor:     req.Actor,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Start transitions queued → running and stamps started_at.
func (l *Log) Start(now time.Time) error {
	if l.Status != StatusQueued {
		return fmt.Errorf("cannot start sync log from %s", l.Status)
	}
	l.Status = StatusRunning
	l.StartedAt = &now
	l.HeartbeatAt = &now
	l.UpdatedAt = now
	return nil
}

// Succeed transitions running → succeeded. A run with per-item
// failures still succeeds; failed is reserved for runs the engine
// could not drive to completion.
func (l *Log) Succeed(now time.Time) error {
	if l.Status != StatusRunning {
		return fmt.Errorf("cannot succeed sync log from %s", l.Status)
	}
	l.Status = StatusSucceeded
	l.FinishedAt = &now
	l.UpdatedAt = now
	return nil
}

// Fail transitions a live row to failed with a terminal message.
func (l *Log) Fail(now time.Time, message string) error {
	if l.Status.Terminal() {
		return fmt.Errorf("cannot fail sync log from %s", l.Status)
	}
	l.Status = StatusFailed
	l.ErrorMessage = message
	l.FinishedAt = &now
	l.UpdatedAt = now
	return nil
}

// Cancel transitions a live row to cancelled.
func (l *Log) Cancel(now time.Time) error {
	if l.Status.Terminal() {
		return fmt.Errorf("cannot cancel sync log from %s", l.Status)
	}
	l.Status = StatusCancelled
	l.FinishedAt = &now
	l.UpdatedAt = now
	return nil
}

// SetTotal records the item count announced by the first page. It is
// write-once; later pages must agree with it.
func (l *Log) SetTotal(total int) error {
	if total < 0 {
		return shared.NewValidationError("total_items", "must not be negative")
	}
	if l.TotalItems != 0 && l.TotalItems != total {
		return fmt.Errorf("total already set to %d, refusing %d", l.TotalItems, total)
	}
	l.TotalItems = total
	return nil
}

// RecordPage folds one processed page into the counters.
func (l *Log) RecordPage(created, updated, skipped, failed int, now time.Time) error {
	if l.Status != StatusRunning {
		return fmt.Errorf("cannot record page on %s sync log", l.Status)
	}
	if created < 0 || updated < 0 || skipped < 0 || failed < 0 {
		return shared.NewValidationError("counters", "must not be negative")
	}
	processed := l.ProcessedItems + created + updated + skipped + failed
	if l.TotalItems > 0 && processed > l.TotalItems {
		return fmt.Errorf("processed %d would exceed total %d", processed, l.TotalItems)
	}
	l.ProcessedItems = processed
	l.CreatedCount += created
	l.UpdatedCount += updated
	l.SkippedCount += skipped
	l.FailedCount += failed
	l.HeartbeatAt = &now
	l.UpdatedAt = now
	return nil
}

// Heartbeat refreshes the liveness stamp the orphan sweeper inspects.
func (l *Log) Heartbeat(now time.Time) {
	l.HeartbeatAt = &now
	l.UpdatedAt = now
}

// Orphaned reports whether a running row has been silent longer than
// ttl, which means its process died without committing a terminal
// state.
func (l *Log) Orphaned(now time.Time, ttl time.Duration) bool {
	if l.Status != StatusRunning {
		return false
	}
	last := l.UpdatedAt
	if l.HeartbeatAt != nil {
		last = *l.HeartbeatAt
	}
	return now.Sub(last) > ttl
}

// Duration returns the wall-clock runtime so far, or the final runtime
// once finished. Zero before the run starts.
func (l *Log) Duration(now time.Time) time.Duration {
	if l.StartedAt == nil {
		return 0
	}
	end := now
	if l.FinishedAt != nil {
		end = *l.FinishedAt
	}
	return end.Sub(*l.StartedAt)
}

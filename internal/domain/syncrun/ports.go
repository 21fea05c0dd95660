package syncrun

import (
	"context"
	"time"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// HistoryFilter narrows history queries. Empty fields match everything.
type HistoryFilter struct {
	Account  shared.Account
	Resource Resource
	Limit    int
}

// LogRepository defines the interface for sync log persistence
// operations. Rows are never deleted.
type LogRepository interface {
	Create(ctx context.Context, log *Log) error
	Update(ctx context.Context, log *Log) error
	FindByID(ctx context.Context, id int64) (*Log, error)
	FindByRunID(ctx context.Context, runID string) (*Log, error)
	// Latest returns the most recent row for the scope, terminal or
	// not. This is the public status source.
	Latest(ctx context.Context, account shared.Account, resource Resource) (*Log, error)
	// LatestSuccess returns the most recent succeeded row, which
	// anchors the incremental watermark.
	LatestSuccess(ctx context.Context, account shared.Account, resource Resource) (*Log, error)
	History(ctx context.Context, filter HistoryFilter) ([]*Log, error)
	// RequestCancel sets the cooperative cancel flag on a live row.
	RequestCancel(ctx context.Context, id int64) error
	CancelRequested(ctx context.Context, id int64) (bool, error)
	// MarkOrphans fails running rows whose heartbeat predates the
	// cutoff, and queued rows created before it that never started,
	// returning how many were swept.
	MarkOrphans(ctx context.Context, cutoff time.Time, now time.Time) (int64, error)
	AppendItems(ctx context.Context, logID int64, items []Item) error
	Items(ctx context.Context, logID int64) ([]Item, error)
}

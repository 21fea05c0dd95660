package syncrun

import "time"

// ItemAction tags one per-item audit row.
type ItemAction string

const (
	ItemCreated ItemAction = "created"
	ItemUpdated ItemAction = "updated"
	ItemSkipped ItemAction = "skipped"
	ItemFailed  ItemAction = "failed"
	ItemReview  ItemAction = "review"
)

// Item is one audit row of a sync run: what happened to one SKU (or
// order id) and why. Append-only.
type Item struct {
	ID        int64
	SyncLogID int64
	SKU       string
	Action    ItemAction
	Message   string
	CreatedAt time.Time
}

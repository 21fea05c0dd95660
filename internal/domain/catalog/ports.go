package catalog

import (
	"context"
	"time"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// ProductFilter narrows product list queries.
type ProductFilter struct {
	CategoryIDs        []int64
	ValidationStatuses []int
	OnlyActive         bool
	Limit              int
	Offset             int
}

// ProductRepository defines the interface for product persistence operations
type ProductRepository interface {
	FindBySKU(ctx context.Context, account shared.Account, sku string) (*Product, error)
	// FindBySKUs loads one page worth of existing rows keyed by SKU.
	// Missing SKUs are simply absent from the map.
	FindBySKUs(ctx context.Context, account shared.Account, skus []string) (map[string]*Product, error)
	// FindByIDs loads rows across accounts keyed by local id. Missing
	// ids are simply absent from the map.
	FindByIDs(ctx context.Context, ids []int64) (map[int64]*Product, error)
	// UpsertBatch writes the given rows in one transaction, keyed by
	// (account, sku). The caller decides what to write; unchanged rows
	// should not be passed in.
	UpsertBatch(ctx context.Context, products []*Product) error
	// Upsert writes a single row. Batch callers fall back to it to
	// isolate the row that poisoned a batch.
	Upsert(ctx context.Context, product *Product) error
	// TouchSynced refreshes synced_at for rows the caller saw but did
	// not rewrite, so staleness sweeps don't deactivate them.
	TouchSynced(ctx context.Context, account shared.Account, skus []string, at time.Time) error
	// DeactivateStale deactivates active rows not seen since the given
	// watermark. Used by full syncs to retire delisted products.
	DeactivateStale(ctx context.Context, account shared.Account, before time.Time) (int64, error)
	// FlagStaleForReview marks active rows not seen since the watermark
	// for manual review instead of deactivating them.
	FlagStaleForReview(ctx context.Context, account shared.Account, before time.Time) (int64, error)
	SetReviewRequired(ctx context.Context, account shared.Account, sku string, required bool) error
	List(ctx context.Context, account shared.Account, filter ProductFilter) ([]*Product, error)
	// Saleable returns the rows eligible for stock push-back.
	Saleable(ctx context.Context, account shared.Account) ([]*Product, error)
}

// OrderFilter narrows order list queries.
type OrderFilter struct {
	Status *OrderStatus
	Limit  int
}

// OrderRepository defines the interface for marketplace order
// persistence operations
type OrderRepository interface {
	FindByRemoteID(ctx context.Context, account shared.Account, remoteID int64) (*Order, error)
	// FindByRemoteIDs loads one page worth of existing rows keyed by
	// remote id. Missing ids are simply absent from the map.
	FindByRemoteIDs(ctx context.Context, account shared.Account, remoteIDs []int64) (map[int64]*Order, error)
	// UpsertBatch writes the given rows in one transaction, keyed by
	// (account, remote_id).
	UpsertBatch(ctx context.Context, orders []*Order) error
	MarkAcknowledged(ctx context.Context, account shared.Account, remoteID int64, at time.Time) error
	List(ctx context.Context, account shared.Account, filter OrderFilter) ([]*Order, error)
}

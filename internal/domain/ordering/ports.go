package ordering

import (
	"context"

	"github.com/shopspring/decimal"
)

// SupplierRepository defines the interface for supplier persistence
// operations, including the spreadsheet price entries that ride along
// with each supplier.
type SupplierRepository interface {
	Create(ctx context.Context, s *Supplier) error
	FindByID(ctx context.Context, id int64) (*Supplier, error)
	FindByCode(ctx context.Context, code string) (*Supplier, error)
	List(ctx context.Context) ([]*Supplier, error)
	UpsertSheetEntry(ctx context.Context, e *SheetEntry) error
	// SheetPrices returns the sheet price per product for one
	// supplier, restricted to the given products.
	SheetPrices(ctx context.Context, supplierID int64, productIDs []int64) (map[int64]decimal.Decimal, error)
}

// InventoryRepository defines the interface for inventory persistence
// operations
type InventoryRepository interface {
	Upsert(ctx context.Context, item *InventoryItem) error
	FindByProduct(ctx context.Context, productID int64) ([]*InventoryItem, error)
	// ListBelowMinimum returns the rows whose available quantity sits
	// under the minimum stock level.
	ListBelowMinimum(ctx context.Context) ([]*InventoryItem, error)
}

// PurchaseOrderRepository defines the interface for purchase order
// persistence operations
type PurchaseOrderRepository interface {
	// CreateDraft persists a draft, assigning the daily sequential
	// order number inside the transaction. When the idempotency key
	// already exists the stored order is returned with created=false.
	CreateDraft(ctx context.Context, po *PurchaseOrder) (*PurchaseOrder, bool, error)
	FindByID(ctx context.Context, id int64) (*PurchaseOrder, error)
	FindByNumber(ctx context.Context, number string) (*PurchaseOrder, error)
	Save(ctx context.Context, po *PurchaseOrder) error
	AppendHistory(ctx context.Context, entry *HistoryEntry) error
	History(ctx context.Context, purchaseOrderID int64) ([]*HistoryEntry, error)
	// PendingInbound sums not-yet-received quantities per product over
	// orders in the pending statuses.
	PendingInbound(ctx context.Context, productIDs []int64) (map[int64]int, error)
	ListByStatus(ctx context.Context, statuses ...POStatus) ([]*PurchaseOrder, error)
}

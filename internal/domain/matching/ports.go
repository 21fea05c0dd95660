package matching

import "context"

// SupplierProductRepository defines the interface for supplier product
// persistence operations
type SupplierProductRepository interface {
	Create(ctx context.Context, sp *SupplierProduct) error
	CreateBatch(ctx context.Context, sps []*SupplierProduct) error
	Save(ctx context.Context, sp *SupplierProduct) error
	// ConfirmExclusive persists a confirmed row while enforcing at
	// most one confirmed match per (supplier, local product). A second
	// confirmation for the pair fails with ConflictExists.
	ConfirmExclusive(ctx context.Context, sp *SupplierProduct) error
	FindByID(ctx context.Context, id int64) (*SupplierProduct, error)
	// ListBySupplier returns the supplier's rows, optionally filtered
	// to one derived state.
	ListBySupplier(ctx context.Context, supplierID int64, state *State) ([]*SupplierProduct, error)
	// UnlinkPending clears every pending link for the supplier in one
	// statement and reports how many rows it touched. Confirmed rows
	// are never affected.
	UnlinkPending(ctx context.Context, supplierID int64) (int64, error)
}

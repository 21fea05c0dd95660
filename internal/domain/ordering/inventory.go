package ordering

import (
	"time"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// InventoryItem tracks warehouse stock levels for one local product.
type InventoryItem struct {
	ID          int64
	ProductID   int64
	WarehouseID int64

	Quantity         int
	ReservedQuantity int

	MinimumStock          int
	ReorderPoint          int
	MaximumStock          *int
	ManualReorderQuantity *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces the quantity invariants.
func (i *InventoryItem) Validate() error {
	if i.Quantity < 0 || i.ReservedQuantity < 0 || i.MinimumStock < 0 || i.ReorderPoint < 0 {
		return shared.NewValidationError("inventory", "quantities must not be negative")
	}
	if i.ReservedQuantity > i.Quantity {
		return shared.NewValidationError("reserved_quantity", "must not exceed quantity")
	}
	if i.MaximumStock != nil && *i.MaximumStock < 0 {
		return shared.NewValidationError("maximum_stock", "must not be negative")
	}
	if i.ManualReorderQuantity != nil && *i.ManualReorderQuantity < 0 {
		return shared.NewValidationError("manual_reorder_quantity", "must not be negative")
	}
	return nil
}

// Available is the sellable on-hand quantity.
func (i *InventoryItem) Available() int {
	return i.Quantity - i.ReservedQuantity
}

// ReorderQuantity computes how many units to reorder. The manual
// override always wins; otherwise the target is the maximum stock
// level when one is set, twice the reorder point when one is set, and
// three times the minimum stock as the fallback.
func (i *InventoryItem) ReorderQuantity() int {
	if i.ManualReorderQuantity != nil {
		return *i.ManualReorderQuantity
	}
	available := i.Available()
	switch {
	case i.MaximumStock != nil:
		return maxInt(0, *i.MaximumStock-available)
	case i.ReorderPoint > 0:
		return maxInt(0, 2*i.ReorderPoint-available)
	default:
		return maxInt(0, 3*i.MinimumStock-available)
	}
}

// AdjustedReorder nets the computed reorder against quantities already
// inbound on open purchase orders.
func (i *InventoryItem) AdjustedReorder(pendingIn int) int {
	return maxInt(0, i.ReorderQuantity()-pendingIn)
}

// BelowMinimum reports whether available stock sits under the minimum
// level, which is what puts the product on the low-stock report.
func (i *InventoryItem) BelowMinimum() bool {
	return i.Available() < i.MinimumStock
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

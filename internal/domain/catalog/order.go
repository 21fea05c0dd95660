package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// OrderLine is one product position on a marketplace order.
type OrderLine struct {
	ProductRemoteID int64           `json:"product_id"`
	PartNumberKey   string          `json:"part_number_key,omitempty"`
	Quantity        int             `json:"quantity"`
	SalePrice       decimal.Decimal `json:"sale_price"`
}

// Order is a marketplace order as the sync engine stores it. The
// remote is the source of truth; local rows mirror it for reporting
// and acknowledgement tracking.
type Order struct {
	ID           int64
	Account      shared.Account
	RemoteID     int64
	Status       OrderStatus
	CustomerName string
	TotalAmount  decimal.Decimal
	Currency     string
	PaymentMode  string
	DeliveryMode string
	Lines        []OrderLine

	AcknowledgedAt *time.Time
	RemoteDate     time.Time
	RemoteModified time.Time
	SyncedAt       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the row invariants before persistence.
func (o *Order) Validate() error {
	if o.RemoteID <= 0 {
		return shared.NewValidationError("remote_id", "must be positive")
	}
	if !o.Status.Valid() {
		return shared.NewValidationError("status", "unknown order status")
	}
	for _, l := range o.Lines {
		if l.Quantity <= 0 {
			return shared.NewValidationError("lines", "quantity must be positive")
		}
	}
	return nil
}

// Acknowledged reports whether this order was already confirmed back
// to the marketplace.
func (o *Order) Acknowledged() bool {
	return o.AcknowledgedAt != nil
}

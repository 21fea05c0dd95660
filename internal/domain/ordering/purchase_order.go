package ordering

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// POStatus is the purchase order lifecycle value.
type POStatus string

const (
	PODraft             POStatus = "draft"
	POSent              POStatus = "sent"
	POConfirmed         POStatus = "confirmed"
	POPartiallyReceived POStatus = "partially_received"
	POReceived          POStatus = "received"
	POCancelled         POStatus = "cancelled"
)

// PendingStatuses are the statuses whose lines count as inbound stock
// for reorder netting.
var PendingStatuses = []POStatus{POSent, POConfirmed, POPartiallyReceived}

// Terminal reports whether the order can no longer change.
func (s POStatus) Terminal() bool {
	return s == POReceived || s == POCancelled
}

// Line is one product position on a purchase order. Received quantity
// grows monotonically toward the ordered one.
type Line struct {
	ID              int64
	PurchaseOrderID int64
	ProductID       int64
	OrderedQty      int
	ReceivedQty     int
	UnitCost        decimal.Decimal
}

// Pending is the quantity still expected in.
func (l *Line) Pending() int {
	return l.OrderedQty - l.ReceivedQty
}

// PurchaseOrder aggregates its lines; lines never outlive the order.
type PurchaseOrder struct {
	ID             int64
	OrderNumber    string
	SupplierID     int64
	Status         POStatus
	Currency       string
	ExchangeRate   decimal.Decimal
	TotalValue     decimal.Decimal
	OrderDate      time.Time
	ExpectedAt     *time.Time
	IdempotencyKey string
	CreatedBy      string
	Lines          []Line

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDraft builds a draft order. Drafts never touch stock: no
// reservation, no deduction, nothing but the rows themselves.
func NewDraft(orderNumber string, supplierID int64, currency string, rate decimal.Decimal, lines []Line, actor string, now time.Time) (*PurchaseOrder, error) {
	if len(lines) == 0 {
		return nil, shared.NewValidationError("lines", "a draft needs at least one line")
	}
	total := decimal.Zero
	for i := range lines {
		if lines[i].OrderedQty <= 0 {
			return nil, shared.NewValidationError("lines", "ordered quantity must be positive")
		}
		if lines[i].ReceivedQty != 0 {
			return nil, shared.NewValidationError("lines", "draft lines must not carry received quantity")
		}
		total = total.Add(lines[i].UnitCost.Mul(decimal.NewFromInt(int64(lines[i].OrderedQty))))
	}
	return &PurchaseOrder{
		OrderNumber:  orderNumber,
		SupplierID:   supplierID,
		Status:       PODraft,
		Currency:     currency,
		ExchangeRate: rate,
		TotalValue:   total,
		OrderDate:    now,
		CreatedBy:    actor,
		Lines:        lines,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// MarkSent moves draft → sent.
func (po *PurchaseOrder) MarkSent(now time.Time) error {
	if po.Status != PODraft {
		return fmt.Errorf("cannot send purchase order from %s", po.Status)
	}
	po.Status = POSent
	po.UpdatedAt = now
	return nil
}

// Confirm moves sent → confirmed.
func (po *PurchaseOrder) Confirm(now time.Time) error {
	if po.Status != POSent {
		return fmt.Errorf("cannot confirm purchase order from %s", po.Status)
	}
	po.Status = POConfirmed
	po.UpdatedAt = now
	return nil
}

// Cancel aborts any non-terminal order.
func (po *PurchaseOrder) Cancel(now time.Time) error {
	if po.Status.Terminal() {
		return fmt.Errorf("cannot cancel purchase order from %s", po.Status)
	}
	po.Status = POCancelled
	po.UpdatedAt = now
	return nil
}

// Receive books qty units against a line and re-derives the status:
// received when every line is complete, partially_received when
// anything has landed but not everything.
func (po *PurchaseOrder) Receive(lineID int64, qty int, now time.Time) error {
	if qty <= 0 {
		return shared.NewValidationError("quantity", "must be positive")
	}
	switch po.Status {
	case POSent, POConfirmed, POPartiallyReceived:
	default:
		return fmt.Errorf("cannot receive against %s purchase order", po.Status)
	}
	idx := -1
	for i := range po.Lines {
		if po.Lines[i].ID == lineID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: line %d", shared.ErrNotFound, lineID)
	}
	line := &po.Lines[idx]
	if line.ReceivedQty+qty > line.OrderedQty {
		return shared.NewValidationError("quantity",
			fmt.Sprintf("receiving %d would exceed ordered %d (already %d)", qty, line.OrderedQty, line.ReceivedQty))
	}
	line.ReceivedQty += qty
	po.Status = po.deriveReceiptStatus()
	po.UpdatedAt = now
	return nil
}

func (po *PurchaseOrder) deriveReceiptStatus() POStatus {
	full, any := true, false
	for i := range po.Lines {
		if po.Lines[i].ReceivedQty > 0 {
			any = true
		}
		if po.Lines[i].ReceivedQty != po.Lines[i].OrderedQty {
			full = false
		}
	}
	switch {
	case full:
		return POReceived
	case any:
		return POPartiallyReceived
	default:
		return po.Status
	}
}

// PendingIn sums the not-yet-received quantity for a product across
// this order's lines. Callers filter orders to PendingStatuses.
func (po *PurchaseOrder) PendingIn(productID int64) int {
	total := 0
	for i := range po.Lines {
		if po.Lines[i].ProductID == productID {
			total += po.Lines[i].Pending()
		}
	}
	return total
}

// FormatOrderNumber renders the sequential order number for a day.
func FormatOrderNumber(date time.Time, seq int) string {
	return fmt.Sprintf("PO-%s-%04d", date.Format("20060102"), seq)
}

// IdempotencyKey digests what makes two bulk submissions "the same
// click": the supplier, the product set, the actor and the minute. A
// duplicate submission inside the bucket resolves to the existing
// draft instead of a second one.
func IdempotencyKey(supplierID int64, productIDs []int64, actor string, at time.Time) string {
	ids := append([]int64(nil), productIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, 0, len(ids)+3)
	parts = append(parts, strconv.FormatInt(supplierID, 10))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	parts = append(parts, actor, at.UTC().Truncate(time.Minute).Format("200601021504"))
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// HistoryAction tags an append-only purchase order history row.
type HistoryAction string

const (
	HistoryCreated   HistoryAction = "created"
	HistorySent      HistoryAction = "sent"
	HistoryConfirmed HistoryAction = "confirmed"
	HistoryReceived  HistoryAction = "received"
	HistoryCancelled HistoryAction = "cancelled"
)

// HistoryEntry records one lifecycle event on a purchase order.
type HistoryEntry struct {
	ID              int64
	PurchaseOrderID int64
	Action          HistoryAction
	Details         string
	Actor           string
	CreatedAt       time.Time
}

package reorder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/modula-erp/emag-sync-go/internal/domain/ordering"
)

// Send moves a draft to sent and records the transition.
func (e *Engine) Send(ctx context.Context, orderNumber, actor string) (*ordering.PurchaseOrder, error) {
	return e.transition(ctx, orderNumber, actor, ordering.HistorySent, "marked sent",
		func(po *ordering.PurchaseOrder) error { return po.MarkSent(e.clock.Now()) })
}

// Confirm records the supplier's confirmation of a sent order.
func (e *Engine) Confirm(ctx context.Context, orderNumber, actor string) (*ordering.PurchaseOrder, error) {
	return e.transition(ctx, orderNumber, actor, ordering.HistoryConfirmed, "confirmed by supplier",
		func(po *ordering.PurchaseOrder) error { return po.Confirm(e.clock.Now()) })
}

// CancelOrder aborts a non-terminal order.
func (e *Engine) CancelOrder(ctx context.Context, orderNumber, actor string) (*ordering.PurchaseOrder, error) {
	return e.transition(ctx, orderNumber, actor, ordering.HistoryCancelled, "cancelled",
		func(po *ordering.PurchaseOrder) error { return po.Cancel(e.clock.Now()) })
}

// Receive books qty units against one line. The order's status is
// re-derived from what has landed so far.
func (e *Engine) Receive(ctx context.Context, orderNumber string, lineID int64, qty int, actor string) (*ordering.PurchaseOrder, error) {
	return e.transition(ctx, orderNumber, actor, ordering.HistoryReceived,
		fmt.Sprintf("line %d received %d", lineID, qty),
		func(po *ordering.PurchaseOrder) error { return po.Receive(lineID, qty, e.clock.Now()) })
}

func (e *Engine) transition(ctx context.Context, orderNumber, actor string, action ordering.HistoryAction, details string, apply func(*ordering.PurchaseOrder) error) (*ordering.PurchaseOrder, error) {
	po, err := e.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if err := apply(po); err != nil {
		return nil, err
	}
	if err := e.orders.Save(ctx, po); err != nil {
		return nil, err
	}
	now := e.clock.Now()
	e.appendHistory(ctx, po.ID, action, details, actor, now)
	e.logger.Info("purchase order updated",
		zap.String("order_number", po.OrderNumber),
		zap.String("status", string(po.Status)),
		zap.String("action", string(action)))
	return po, nil
}

// Get loads one order with its lines.
func (e *Engine) Get(ctx context.Context, orderNumber string) (*ordering.PurchaseOrder, error) {
	return e.orders.FindByNumber(ctx, orderNumber)
}

// History lists the audit trail of one order.
func (e *Engine) History(ctx context.Context, orderNumber string) ([]*ordering.HistoryEntry, error) {
	po, err := e.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	return e.orders.History(ctx, po.ID)
}

// ListByStatus lists orders in the given statuses; with none given it
// lists the open ones.
func (e *Engine) ListByStatus(ctx context.Context, statuses ...ordering.POStatus) ([]*ordering.PurchaseOrder, error) {
	if len(statuses) == 0 {
		statuses = append([]ordering.POStatus{ordering.PODraft}, ordering.PendingStatuses...)
	}
	return e.orders.ListByStatus(ctx, statuses...)
}

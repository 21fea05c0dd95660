package reorder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/matching"
	"github.com/modula-erp/emag-sync-go/internal/domain/ordering"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// Config tunes replenishment drafting.
type Config struct {
	// CNYRate is the RON value of one CNY, applied to Chinese suppliers.
	CNYRate decimal.Decimal
	// LeadTimeDays sets the expected-delivery estimate on new drafts.
	LeadTimeDays int
}

func (c Config) withDefaults() Config {
	if c.CNYRate.IsZero() {
		c.CNYRate = decimal.NewFromFloat(0.65)
	}
	if c.LeadTimeDays <= 0 {
		c.LeadTimeDays = 45
	}
	return c
}

// Suggestion is one low-stock report row: the inventory position, the
// catalog row behind it when one still exists, and the reorder math.
type Suggestion struct {
	Item      *ordering.InventoryItem
	Product   *catalog.Product
	Reorder   int
	PendingIn int
	Adjusted  int
}

// Selection names one product the operator wants drafted from one
// supplier. Quantity zero lets the engine fall back to the adjusted
// reorder quantity.
type Selection struct {
	ProductID  int64
	SupplierID int64
	Quantity   int
}

// SupplierFailure explains why one supplier group produced no draft.
type SupplierFailure struct {
	SupplierID int64
	Reason     string
}

// DraftReport summarises a bulk assembly. Duplicates are order numbers
// resolved through the idempotency key instead of drafted anew.
type DraftReport struct {
	Created    []string
	Duplicates []string
	Failed     []SupplierFailure
}

// Engine drives replenishment: it computes what to reorder, nets the
// quantities already inbound on open purchase orders, and assembles
// draft orders grouped by supplier.
type Engine struct {
	inventory        ordering.InventoryRepository
	orders           ordering.PurchaseOrderRepository
	suppliers        ordering.SupplierRepository
	supplierProducts matching.SupplierProductRepository
	products         catalog.ProductRepository
	clock            shared.Clock
	logger           *zap.Logger
	cfg              Config
}

// NewEngine creates a reorder engine. logger may be nil.
func NewEngine(
	inventory ordering.InventoryRepository,
	orders ordering.PurchaseOrderRepository,
	suppliers ordering.SupplierRepository,
	supplierProducts matching.SupplierProductRepository,
	products catalog.ProductRepository,
	clock shared.Clock,
	logger *zap.Logger,
	cfg Config,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		inventory:        inventory,
		orders:           orders,
		suppliers:        suppliers,
		supplierProducts: supplierProducts,
		products:         products,
		clock:            clock,
		logger:           logger,
		cfg:              cfg.withDefaults(),
	}
}

// LowStock reports every inventory position under its minimum, with the
// computed reorder quantity and the netting against quantities already
// on open orders.
func (e *Engine) LowStock(ctx context.Context) ([]Suggestion, error) {
	items, err := e.inventory.ListBelowMinimum(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list low-stock items: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	pending, err := e.orders.PendingInbound(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to net pending inbound: %w", err)
	}
	rows, err := e.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog rows: %w", err)
	}

	out := make([]Suggestion, 0, len(items))
	for _, it := range items {
		in := pending[it.ProductID]
		out = append(out, Suggestion{
			Item:      it,
			Product:   rows[it.ProductID],
			Reorder:   it.ReorderQuantity(),
			PendingIn: in,
			Adjusted:  it.AdjustedReorder(in),
		})
	}
	return out, nil
}

// AssembleDrafts turns operator selections into draft purchase orders,
// one per supplier. A supplier whose group cannot be drafted is
// reported under Failed; the rest of the batch still goes through.
func (e *Engine) AssembleDrafts(ctx context.Context, selections []Selection, actor string) (*DraftReport, error) {
	if len(selections) == 0 {
		return nil, shared.NewValidationError("selections", "nothing to draft")
	}
	groups := make(map[int64][]Selection)
	seen := make(map[[2]int64]bool, len(selections))
	for _, sel := range selections {
		if sel.ProductID <= 0 || sel.SupplierID <= 0 {
			return nil, shared.NewValidationError("selections", "product and supplier ids must be positive")
		}
		if sel.Quantity < 0 {
			return nil, shared.NewValidationError("quantity", "must not be negative")
		}
		pair := [2]int64{sel.SupplierID, sel.ProductID}
		if seen[pair] {
			return nil, shared.NewValidationError("selections",
				fmt.Sprintf("product %d selected twice for supplier %d", sel.ProductID, sel.SupplierID))
		}
		seen[pair] = true
		groups[sel.SupplierID] = append(groups[sel.SupplierID], sel)
	}

	supplierIDs := make([]int64, 0, len(groups))
	for id := range groups {
		supplierIDs = append(supplierIDs, id)
	}
	sort.Slice(supplierIDs, func(i, j int) bool { return supplierIDs[i] < supplierIDs[j] })

	now := e.clock.Now()
	report := &DraftReport{}
	for _, sid := range supplierIDs {
		number, dup, err := e.draftForSupplier(ctx, sid, groups[sid], actor, now)
		if err != nil {
			e.logger.Warn("draft assembly failed for supplier",
				zap.Int64("supplier_id", sid),
				zap.Error(err))
			report.Failed = append(report.Failed, SupplierFailure{SupplierID: sid, Reason: err.Error()})
			continue
		}
		if dup {
			report.Duplicates = append(report.Duplicates, number)
		} else {
			report.Created = append(report.Created, number)
		}
	}

	e.logger.Info("bulk draft assembly finished",
		zap.String("actor", actor),
		zap.Int("suppliers", len(supplierIDs)),
		zap.Int("created", len(report.Created)),
		zap.Int("duplicates", len(report.Duplicates)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

func (e *Engine) draftForSupplier(ctx context.Context, supplierID int64, sels []Selection, actor string, now time.Time) (string, bool, error) {
	supplier, err := e.suppliers.FindByID(ctx, supplierID)
	if err != nil {
		return "", false, err
	}
	currency, rate := supplier.Pricing(e.cfg.CNYRate)

	productIDs := make([]int64, 0, len(sels))
	for _, sel := range sels {
		productIDs = append(productIDs, sel.ProductID)
	}
	sheet, err := e.suppliers.SheetPrices(ctx, supplierID, productIDs)
	if err != nil {
		return "", false, fmt.Errorf("failed to load sheet prices: %w", err)
	}
	feed, err := e.feedPrices(ctx, supplierID)
	if err != nil {
		return "", false, err
	}
	rows, err := e.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return "", false, fmt.Errorf("failed to load catalog rows: %w", err)
	}
	pending, err := e.orders.PendingInbound(ctx, productIDs)
	if err != nil {
		return "", false, fmt.Errorf("failed to net pending inbound: %w", err)
	}

	lines := make([]ordering.Line, 0, len(sels))
	for _, sel := range sels {
		product, ok := rows[sel.ProductID]
		if !ok {
			return "", false, fmt.Errorf("product %d is not in the local catalog", sel.ProductID)
		}
		qty := sel.Quantity
		if qty == 0 {
			qty, err = e.computedQuantity(ctx, sel.ProductID, pending[sel.ProductID])
			if err != nil {
				return "", false, err
			}
		}
		if qty == 0 {
			e.logger.Debug("selection already covered by inbound stock",
				zap.Int64("supplier_id", supplierID),
				zap.Int64("product_id", sel.ProductID))
			continue
		}
		var sheetPrice decimal.NullDecimal
		if v, ok := sheet[sel.ProductID]; ok {
			sheetPrice = decimal.NewNullDecimal(v)
		}
		lines = append(lines, ordering.Line{
			ProductID:  sel.ProductID,
			OrderedQty: qty,
			UnitCost:   ordering.UnitCost(sheetPrice, feed[sel.ProductID], product.SalePrice),
		})
	}
	if len(lines) == 0 {
		return "", false, fmt.Errorf("nothing left to order after netting inbound quantities")
	}

	po, err := ordering.NewDraft("", supplierID, currency, rate, lines, actor, now)
	if err != nil {
		return "", false, err
	}
	expected := now.AddDate(0, 0, e.cfg.LeadTimeDays)
	po.ExpectedAt = &expected
	po.IdempotencyKey = ordering.IdempotencyKey(supplierID, productIDs, actor, now)

	stored, created, err := e.orders.CreateDraft(ctx, po)
	if err != nil {
		return "", false, err
	}
	if created {
		e.appendHistory(ctx, stored.ID, ordering.HistoryCreated,
			fmt.Sprintf("draft with %d lines, total %s %s", len(stored.Lines), stored.TotalValue.StringFixed(2), currency),
			actor, now)
		e.logger.Info("purchase order drafted",
			zap.String("order_number", stored.OrderNumber),
			zap.Int64("supplier_id", supplierID),
			zap.String("currency", currency),
			zap.Int("lines", len(stored.Lines)))
	}
	return stored.OrderNumber, !created, nil
}

// computedQuantity sums the reorder quantity across the product's
// inventory positions and nets it against inbound stock.
func (e *Engine) computedQuantity(ctx context.Context, productID int64, pendingIn int) (int, error) {
	items, err := e.inventory.FindByProduct(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("failed to load inventory for product %d: %w", productID, err)
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("product %d has no inventory position", productID)
	}
	if len(items) == 1 {
		return items[0].AdjustedReorder(pendingIn), nil
	}
	total := 0
	for _, it := range items {
		total += it.ReorderQuantity()
	}
	if total < pendingIn {
		return 0, nil
	}
	return total - pendingIn, nil
}

// feedPrices maps linked supplier products to their feed price.
// Confirmed links win over pending ones; zero prices are ignored so
// they never mask the catalog fallback.
func (e *Engine) feedPrices(ctx context.Context, supplierID int64) (map[int64]decimal.NullDecimal, error) {
	rows, err := e.supplierProducts.ListBySupplier(ctx, supplierID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load supplier feed: %w", err)
	}
	out := make(map[int64]decimal.NullDecimal)
	for _, state := range []matching.State{matching.StateConfirmed, matching.StatePending} {
		for _, sp := range rows {
			if sp.State() != state || sp.LinkedProductID == nil || sp.Price.IsZero() {
				continue
			}
			if _, ok := out[*sp.LinkedProductID]; !ok {
				out[*sp.LinkedProductID] = decimal.NewNullDecimal(sp.Price)
			}
		}
	}
	return out, nil
}

func (e *Engine) appendHistory(ctx context.Context, poID int64, action ordering.HistoryAction, details, actor string, now time.Time) {
	entry := &ordering.HistoryEntry{
		PurchaseOrderID: poID,
		Action:          action,
		Details:         details,
		Actor:           actor,
		CreatedAt:       now,
	}
	if err := e.orders.AppendHistory(ctx, entry); err != nil {
		e.logger.Warn("failed to append purchase order history",
			zap.Int64("purchase_order_id", poID),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

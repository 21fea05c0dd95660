package reorder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modula-erp/emag-sync-go/internal/adapters/persistence"
	"github.com/modula-erp/emag-sync-go/internal/application/reorder"
	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/matching"
	"github.com/modula-erp/emag-sync-go/internal/domain/ordering"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/test/helpers"
)

var t0 = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

type reorderFixture struct {
	clock            *shared.MockClock
	inventory        *persistence.GormInventoryRepository
	orders           *persistence.GormPurchaseOrderRepository
	suppliers        *persistence.GormSupplierRepository
	supplierProducts *persistence.GormSupplierProductRepository
	products         *persistence.GormProductRepository
	engine           *reorder.Engine
}

func newReorderFixture(t *testing.T) *reorderFixture {
	t.Helper()
	db := helpers.NewTestDB(t)
	f := &reorderFixture{
		clock:            shared.NewMockClock(t0),
		inventory:        persistence.NewGormInventoryRepository(db),
		orders:           persistence.NewGormPurchaseOrderRepository(db),
		suppliers:        persistence.NewGormSupplierRepository(db),
		supplierProducts: persistence.NewGormSupplierProductRepository(db),
		products:         persistence.NewGormProductRepository(db),
	}
	f.engine = reorder.NewEngine(f.inventory, f.orders, f.suppliers, f.supplierProducts, f.products,
		f.clock, nil, reorder.Config{CNYRate: decimal.NewFromFloat(0.65)})
	return f
}

func (f *reorderFixture) seedProduct(t *testing.T, sku string, salePrice float64) *catalog.Product {
	t.Helper()
	now := f.clock.Now()
	p := &catalog.Product{
		Account:               shared.AccountMain,
		SKU:                   sku,
		Name:                  "Local " + sku,
		Brand:                 "ACME",
		SalePrice:             decimal.NewFromFloat(salePrice),
		Currency:              "RON",
		Stock:                 5,
		Status:                catalog.OfferStatusActive,
		ValidationStatus:      catalog.ValidationApproved,
		OfferValidationStatus: catalog.OfferValid,
		Active:                true,
		SyncedAt:              now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	p.ContentHash = p.ComputeContentHash()
	require.NoError(t, f.products.Upsert(context.Background(), p))
	loaded, err := f.products.FindBySKU(context.Background(), shared.AccountMain, sku)
	require.NoError(t, err)
	return loaded
}

func (f *reorderFixture) seedInventory(t *testing.T, item *ordering.InventoryItem) {
	t.Helper()
	now := f.clock.Now()
	if item.WarehouseID == 0 {
		item.WarehouseID = 1
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	require.NoError(t, f.inventory.Upsert(context.Background(), item))
}

func (f *reorderFixture) seedSupplier(t *testing.T, code, country string) *ordering.Supplier {
	t.Helper()
	now := f.clock.Now()
	s := &ordering.Supplier{
		Name:        "Supplier " + code,
		Code:        code,
		CountryCode: country,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.suppliers.Create(context.Background(), s))
	return s
}

func (f *reorderFixture) seedSheetPrice(t *testing.T, supplierID, productID int64, price float64) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.suppliers.UpsertSheetEntry(context.Background(), &ordering.SheetEntry{
		SupplierID: supplierID,
		ProductID:  productID,
		Price:      decimal.NewFromFloat(price),
		Currency:   "CNY",
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

// seedOpenOrder puts a sent order with one line into the store, with
// part of it already received, so pending netting has something to see.
func (f *reorderFixture) seedOpenOrder(t *testing.T, supplierID, productID int64, ordered, received int) *ordering.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()
	lines := []ordering.Line{{ProductID: productID, OrderedQty: ordered, UnitCost: decimal.NewFromFloat(10)}}
	po, err := ordering.NewDraft("", supplierID, "CNY", decimal.NewFromFloat(0.65), lines, "seeder", now)
	require.NoError(t, err)
	stored, created, err := f.orders.CreateDraft(ctx, po)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, stored.MarkSent(now))
	require.NoError(t, f.orders.Save(ctx, stored))
	if received > 0 {
		require.NoError(t, stored.Receive(stored.Lines[0].ID, received, now))
		require.NoError(t, f.orders.Save(ctx, stored))
	}
	return stored
}

func lineFor(t *testing.T, po *ordering.PurchaseOrder, productID int64) *ordering.Line {
	t.Helper()
	for i := range po.Lines {
		if po.Lines[i].ProductID == productID {
			return &po.Lines[i]
		}
	}
	t.Fatalf("no line for product %d on %s", productID, po.OrderNumber)
	return nil
}

func TestEngine_LowStockNetsPendingInbound(t *testing.T) {
	f := newReorderFixture(t)
	ctx := context.Background()

	empty, err := f.engine.LowStock(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	p1 := f.seedProduct(t, "SKU-P1", 19.90)
	f.seedInventory(t, &ordering.InventoryItem{ProductID: p1.ID, Quantity: 5, MinimumStock: 10})
	s1 := f.seedSupplier(t, "sheet_cn1", "CN")
	open := f.seedOpenOrder(t, s1.ID, p1.ID, 20, 5)
	assert.Equal(t, "PO-20251001-0001", open.OrderNumber)

	sugs, err := f.engine.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, sugs, 1)

	// Available 5 against minimum 10, no reorder point or maximum set:
	// target is triple the minimum, netted by the 15 still inbound.
	assert.Equal(t, 25, sugs[0].Reorder)
	assert.Equal(t, 15, sugs[0].PendingIn)
	assert.Equal(t, 10, sugs[0].Adjusted)
	assert.True(t, sugs[0].Item.BelowMinimum())
	require.NotNil(t, sugs[0].Product)
	assert.Equal(t, "SKU-P1", sugs[0].Product.SKU)
}

func TestEngine_AssembleDraftsChineseSupplierSheetPrice(t *testing.T) {
	f := newReorderFixture(t)
	ctx := context.Background()

	p1 := f.seedProduct(t, "SKU-P1", 19.90)
	f.seedInventory(t, &ordering.InventoryItem{ProductID: p1.ID, Quantity: 5, MinimumStock: 10})
	s1 := f.seedSupplier(t, "sheet_cn1", "CN")
	f.seedSheetPrice(t, s1.ID, p1.ID, 12.34)
	f.seedOpenOrder(t, s1.ID, p1.ID, 20, 5)

	// A linked feed row exists too; the sheet price still wins.
	feed := matching.NewSupplierProduct(s1.ID, "键盘模块", f.clock.Now())
	feed.Price = decimal.NewFromFloat(11.11)
	require.NoError(t, f.supplierProducts.Create(ctx, feed))
	require.NoError(t, feed.LinkPending(p1.ID, 0.9, f.clock.Now()))
	require.NoError(t, f.supplierProducts.Save(ctx, feed))

	report, err := f.engine.AssembleDrafts(ctx, []reorder.Selection{{ProductID: p1.ID, SupplierID: s1.ID}}, "operator")
	require.NoError(t, err)
	require.Len(t, report.Created, 1)
	assert.Empty(t, report.Failed)
	assert.Regexp(t, `^PO-\d{8}-\d{4}$`, report.Created[0])
	assert.Equal(t, "PO-20251001-0002", report.Created[0])

	po, err := f.engine.Get(ctx, report.Created[0])
	require.NoError(t, err)
	assert.Equal(t, ordering.PODraft, po.Status)
	assert.Equal(t, "CNY", po.Currency)
	assert.True(t, po.ExchangeRate.Equal(decimal.NewFromFloat(0.65)))
	assert.Equal(t, "operator", po.CreatedBy)
	assert.Equal(t, time.UTC, po.OrderDate.Location())
	assert.True(t, po.OrderDate.Equal(t0))
	require.NotNil(t, po.ExpectedAt)
	assert.True(t, po.ExpectedAt.Equal(t0.AddDate(0, 0, 45)))

	require.Len(t, po.Lines, 1)
	assert.Equal(t, 10, po.Lines[0].OrderedQty)
	assert.True(t, po.Lines[0].UnitCost.Equal(decimal.NewFromFloat(12.34)))
	assert.True(t, po.TotalValue.Equal(decimal.NewFromFloat(123.40)))

	entries, err := f.engine.History(ctx, po.OrderNumber)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ordering.HistoryCreated, entries[0].Action)
	assert.Equal(t, "operator", entries[0].Actor)
	assert.Contains(t, entries[0].Details, "total 123.40 CNY")
}

func TestEngine_ReassemblySameMinuteResolvesToExistingDraft(t *testing.T) {
	f := newReorderFixture(t)
	ctx := context.Background()

	p1 := f.seedProduct(t, "SKU-P1", 19.90)
	f.seedInventory(t, &ordering.InventoryItem{ProductID: p1.ID, Quantity: 5, MinimumStock: 10})
	s1 := f.seedSupplier(t, "1688_cn9", "CN")
	sel := []reorder.Selection{{ProductID: p1.ID, SupplierID: s1.ID}}

	first, err := f.engine.AssembleDrafts(ctx, sel, "operator")
	require.NoError(t, err)
	require.Len(t, first.Created, 1)

	again, err := f.engine.AssembleDrafts(ctx, sel, "operator")
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	require.Len(t, again.Duplicates, 1)
	assert.Equal(t, first.Created[0], again.Duplicates[0])

	drafts, err := f.engine.ListByStatus(ctx, ordering.PODraft)
	require.NoError(t, err)
	assert.Len(t, drafts, 1)

	// A different minute is a different submission.
	f.clock.Advance(2 * time.Minute)
	later, err := f.engine.AssembleDrafts(ctx, sel, "operator")
	require.NoError(t, err)
	require.Len(t, later.Created, 1)
	assert.NotEqual(t, first.Created[0], later.Created[0])
}

func TestEngine_UnitCostFallsBackToFeedThenCatalog(t *testing.T) {
	f := newReorderFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	p2 := f.seedProduct(t, "SKU-P2", 19.90)
	p3 := f.seedProduct(t, "SKU-P3", 31.25)
	s := f.seedSupplier(t, "acme_ro", "RO")

	// Two feed rows point at P2; the confirmed one must price the line.
	pending := matching.NewSupplierProduct(s.ID, "待定货源", now)
	pending.Price = decimal.NewFromFloat(9.50)
	require.NoError(t, f.supplierProducts.Create(ctx, pending))
	require.NoError(t, pending.LinkPending(p2.ID, 0.9, now))
	require.NoError(t, f.supplierProducts.Save(ctx, pending))

	confirmed := matching.NewSupplierProduct(s.ID, "已确认货源", now)
	confirmed.Price = decimal.NewFromFloat(8.80)
	require.NoError(t, f.supplierProducts.Create(ctx, confirmed))
	require.NoError(t, confirmed.LinkPending(p2.ID, 0.95, now))
	require.NoError(t, f.supplierProducts.Save(ctx, confirmed))
	require.NoError(t, confirmed.Confirm("ops", now))
	require.NoError(t, f.supplierProducts.ConfirmExclusive(ctx, confirmed))

	report, err := f.engine.AssembleDrafts(ctx, []reorder.Selection{
		{ProductID: p2.ID, SupplierID: s.ID, Quantity: 4},
		{ProductID: p3.ID, SupplierID: s.ID, Quantity: 2},
	}, "operator")
	require.NoError(t, err)
	require.Len(t, report.Created, 1)

	po, err := f.engine.Get(ctx, report.Created[0])
	require.NoError(t, err)
	assert.Equal(t, ordering.BaseCurrency, po.Currency)
	assert.True(t, po.ExchangeRate.Equal(decimal.NewFromInt(1)))
	require.Len(t, po.Lines, 2)
	assert.True(t, lineFor(t, po, p2.ID).UnitCost.Equal(decimal.NewFromFloat(8.80)))
	assert.True(t, lineFor(t, po, p3.ID).UnitCost.Equal(decimal.NewFromFloat(31.25)))
	assert.True(t, po.TotalValue.Equal(decimal.NewFromFloat(97.70)))
}

func TestEngine_PerSupplierFailureKeepsBatchGoing(t *testing.T) {
	f := newReorderFixture(t)
	ctx := context.Background()

	p1 := f.seedProduct(t, "SKU-P1", 19.90)
	good := f.seedSupplier(t, "acme_ro", "RO")
	other := f.seedSupplier(t, "acme_de", "DE")

	report, err := f.engine.AssembleDrafts(ctx, []reorder.Selection{
		{ProductID: p1.ID, SupplierID: good.ID, Quantity: 3},
		{ProductID: p1.ID, SupplierID: 9999, Quantity: 3},
		{ProductID: 888, SupplierID: other.ID, Quantity: 3},
	}, "operator")
	require.NoError(t, err)
	assert.Len(t, report.Created, 1)
	require.Len(t, report.Failed, 2)

	byID := map[int64]string{}
	for _, fail := range report.Failed {
		byID[fail.SupplierID] = fail.Reason
	}
	assert.Contains(t, byID[9999], "not found")
	assert.Contains(t, byID[other.ID], "not in the local catalog")
}

func TestEngine_DraftSkipsLinesCoveredByInbound(t *testing.T) {
	f := newReorderFixture(t)
	ctx := context.Background()

	needy := f.seedProduct(t, "SKU-A", 10.00)
	covered := f.seedProduct(t, "SKU-B", 10.00)
	s := f.seedSupplier(t, "acme_ro", "RO")

	f.seedInventory(t, &ordering.InventoryItem{ProductID: needy.ID, Quantity: 0, MinimumStock: 2})
	manual := 5
	f.seedInventory(t, &ordering.InventoryItem{ProductID: covered.ID, Quantity: 1, MinimumStock: 2, ManualReorderQuantity: &manual})
	f.seedOpenOrder(t, s.ID, covered.ID, 30, 0)

	report, err := f.engine.AssembleDrafts(ctx, []reorder.Selection{
		{ProductID: needy.ID, SupplierID: s.ID},
		{ProductID: covered.ID, SupplierID: s.ID},
	}, "operator")
	require.NoError(t, err)
	require.Len(t, report.Created, 1)

	po, err := f.engine.Get(ctx, report.Created[0])
	require.NoError(t, err)
	require.Len(t, po.Lines, 1)
	assert.Equal(t, needy.ID, po.Lines[0].ProductID)
	assert.Equal(t, 6, po.Lines[0].OrderedQty)

	// With every selection already covered there is nothing to draft.
	f.clock.Advance(time.Minute)
	report, err = f.engine.AssembleDrafts(ctx, []reorder.Selection{
		{ProductID: covered.ID, SupplierID: s.ID},
	}, "operator")
	require.NoError(t, err)
	assert.Empty(t, report.Created)
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Reason, "nothing left to order")
}

func TestEngine_ReceiveWalksStatusToReceived(t *testing.T) {
	f := newReorderFixture(t)
	ctx := context.Background()

	p := f.seedProduct(t, "SKU-P1", 19.90)
	s := f.seedSupplier(t, "acme_ro", "RO")
	report, err := f.engine.AssembleDrafts(ctx, []reorder.Selection{
		{ProductID: p.ID, SupplierID: s.ID, Quantity: 10},
	}, "operator")
	require.NoError(t, err)
	require.Len(t, report.Created, 1)
	number := report.Created[0]

	_, err = f.engine.Receive(ctx, number, 1, 4, "warehouse")
	require.ErrorContains(t, err, "cannot receive against draft")

	po, err := f.engine.Send(ctx, number, "operator")
	require.NoError(t, err)
	assert.Equal(t, ordering.POSent, po.Status)
	_, err = f.engine.Send(ctx, number, "operator")
	require.ErrorContains(t, err, "cannot send purchase order from sent")

	po, err = f.engine.Confirm(ctx, number, "operator")
	require.NoError(t, err)
	assert.Equal(t, ordering.POConfirmed, po.Status)

	lineID := po.Lines[0].ID
	_, err = f.engine.Receive(ctx, number, lineID, 100, "warehouse")
	require.ErrorContains(t, err, "would exceed ordered")

	po, err = f.engine.Receive(ctx, number, lineID, 4, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, ordering.POPartiallyReceived, po.Status)

	po, err = f.engine.Receive(ctx, number, lineID, 6, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, ordering.POReceived, po.Status)
	assert.Equal(t, 10, po.Lines[0].ReceivedQty)

	_, err = f.engine.Receive(ctx, number, lineID, 1, "warehouse")
	require.ErrorContains(t, err, "cannot receive against received")
	_, err = f.engine.CancelOrder(ctx, number, "operator")
	require.ErrorContains(t, err, "cannot cancel purchase order from received")

	entries, err := f.engine.History(ctx, number)
	require.NoError(t, err)
	actions := make([]ordering.HistoryAction, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []ordering.HistoryAction{
		ordering.HistoryCreated,
		ordering.HistorySent,
		ordering.HistoryConfirmed,
		ordering.HistoryReceived,
		ordering.HistoryReceived,
	}, actions)

	open, err := f.engine.ListByStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
	done, err := f.engine.ListByStatus(ctx, ordering.POReceived)
	require.NoError(t, err)
	assert.Len(t, done, 1)
}

func TestEngine_CancelClosesOpenOrder(t *testing.T) {
	f := newReorderFixture(t)
	ctx := context.Background()

	p := f.seedProduct(t, "SKU-P1", 19.90)
	s := f.seedSupplier(t, "acme_ro", "RO")
	report, err := f.engine.AssembleDrafts(ctx, []reorder.Selection{
		{ProductID: p.ID, SupplierID: s.ID, Quantity: 5},
	}, "operator")
	require.NoError(t, err)
	number := report.Created[0]

	_, err = f.engine.Confirm(ctx, number, "operator")
	require.ErrorContains(t, err, "cannot confirm purchase order from draft")

	_, err = f.engine.Send(ctx, number, "operator")
	require.NoError(t, err)
	po, err := f.engine.CancelOrder(ctx, number, "operator")
	require.NoError(t, err)
	assert.Equal(t, ordering.POCancelled, po.Status)

	_, err = f.engine.Receive(ctx, number, po.Lines[0].ID, 1, "warehouse")
	require.ErrorContains(t, err, "cannot receive against cancelled")

	entries, err := f.engine.History(ctx, number)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ordering.HistoryCancelled, entries[2].Action)
}

func TestEngine_AssembleDraftsValidatesSelections(t *testing.T) {
	f := newReorderFixture(t)
	ctx := context.Background()

	_, err := f.engine.AssembleDrafts(ctx, nil, "operator")
	require.ErrorContains(t, err, "nothing to draft")

	_, err = f.engine.AssembleDrafts(ctx, []reorder.Selection{
		{ProductID: 1, SupplierID: 1, Quantity: -2},
	}, "operator")
	require.ErrorContains(t, err, "must not be negative")

	_, err = f.engine.AssembleDrafts(ctx, []reorder.Selection{
		{ProductID: 1, SupplierID: 2, Quantity: 1},
		{ProductID: 1, SupplierID: 2, Quantity: 4},
	}, "operator")
	require.ErrorContains(t, err, "selected twice")

	// A product the system holds no inventory for cannot have its
	// quantity computed; that surfaces per supplier, not as a batch error.
	p := f.seedProduct(t, "SKU-P1", 19.90)
	s := f.seedSupplier(t, "acme_ro", "RO")
	report, err := f.engine.AssembleDrafts(ctx, []reorder.Selection{
		{ProductID: p.ID, SupplierID: s.ID},
	}, "operator")
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Reason, "no inventory position")
}

func TestEngine_GetUnknownOrderNumber(t *testing.T) {
	f := newReorderFixture(t)
	_, err := f.engine.Get(context.Background(), "PO-20250101-0001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

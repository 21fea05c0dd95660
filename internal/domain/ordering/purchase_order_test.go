package ordering_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modula-erp/emag-sync-go/internal/domain/ordering"
)

var poNow = time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func draftWithLines(t *testing.T, lines []ordering.Line) *ordering.PurchaseOrder {
	t.Helper()
	po, err := ordering.NewDraft("PO-20251001-0001", 1, "CNY", dec("0.65"), lines, "ops", poNow)
	require.NoError(t, err)
	return po
}

func TestNewDraft_TotalsAndInvariants(t *testing.T) {
	po := draftWithLines(t, []ordering.Line{
		{ID: 1, ProductID: 10, OrderedQty: 10, UnitCost: dec("12.50")},
		{ID: 2, ProductID: 11, OrderedQty: 3, UnitCost: dec("7.00")},
	})

	assert.Equal(t, ordering.PODraft, po.Status)
	assert.True(t, po.TotalValue.Equal(dec("146.00")), "10·12.50 + 3·7.00, got %s", po.TotalValue)
	assert.Equal(t, "CNY", po.Currency)

	_, err := ordering.NewDraft("PO-20251001-0002", 1, "RON", dec("1"), nil, "ops", poNow)
	assert.Error(t, err, "empty draft")

	_, err = ordering.NewDraft("PO-20251001-0003", 1, "RON", dec("1"),
		[]ordering.Line{{ProductID: 1, OrderedQty: 0, UnitCost: dec("1")}}, "ops", poNow)
	assert.Error(t, err, "zero quantity")

	_, err = ordering.NewDraft("PO-20251001-0004", 1, "RON", dec("1"),
		[]ordering.Line{{ProductID: 1, OrderedQty: 1, ReceivedQty: 1, UnitCost: dec("1")}}, "ops", poNow)
	assert.Error(t, err, "pre-received line")
}

func TestPurchaseOrder_ReceiveDerivesStatus(t *testing.T) {
	po := draftWithLines(t, []ordering.Line{
		{ID: 1, ProductID: 10, OrderedQty: 20, UnitCost: dec("1.00")},
		{ID: 2, ProductID: 11, OrderedQty: 5, UnitCost: dec("2.00")},
	})
	require.NoError(t, po.MarkSent(poNow))

	require.NoError(t, po.Receive(1, 5, poNow))
	assert.Equal(t, ordering.POPartiallyReceived, po.Status)

	require.NoError(t, po.Receive(1, 15, poNow))
	assert.Equal(t, ordering.POPartiallyReceived, po.Status, "second line still open")

	require.NoError(t, po.Receive(2, 5, poNow))
	assert.Equal(t, ordering.POReceived, po.Status)

	assert.Error(t, po.Receive(2, 1, poNow), "terminal order")
}

func TestPurchaseOrder_ReceiveBounds(t *testing.T) {
	po := draftWithLines(t, []ordering.Line{
		{ID: 1, ProductID: 10, OrderedQty: 20, UnitCost: dec("1.00")},
	})

	assert.Error(t, po.Receive(1, 5, poNow), "cannot receive against a draft")

	require.NoError(t, po.MarkSent(poNow))
	assert.Error(t, po.Receive(1, 21, poNow), "over-receipt")
	assert.Error(t, po.Receive(1, 0, poNow), "zero quantity")
	assert.Error(t, po.Receive(99, 1, poNow), "unknown line")

	require.NoError(t, po.Receive(1, 20, poNow))
	assert.Equal(t, ordering.POReceived, po.Status)
}

func TestPurchaseOrder_PendingIn(t *testing.T) {
	po := draftWithLines(t, []ordering.Line{
		{ID: 1, ProductID: 10, OrderedQty: 20, UnitCost: dec("1.00")},
	})
	require.NoError(t, po.MarkSent(poNow))
	require.NoError(t, po.Receive(1, 5, poNow))

	assert.Equal(t, 15, po.PendingIn(10))
	assert.Equal(t, 0, po.PendingIn(999))
}

func TestPurchaseOrder_Transitions(t *testing.T) {
	po := draftWithLines(t, []ordering.Line{{ID: 1, ProductID: 1, OrderedQty: 1, UnitCost: dec("1")}})

	assert.Error(t, po.Confirm(poNow), "confirm before sending")
	require.NoError(t, po.MarkSent(poNow))
	assert.Error(t, po.MarkSent(poNow), "double send")
	require.NoError(t, po.Confirm(poNow))
	require.NoError(t, po.Cancel(poNow))
	assert.Error(t, po.Cancel(poNow), "terminal")
}

func TestFormatOrderNumber(t *testing.T) {
	got := ordering.FormatOrderNumber(poNow, 12)

	assert.Equal(t, "PO-20251001-0012", got)
	assert.Regexp(t, regexp.MustCompile(`^PO-\d{8}-\d{4}$`), got)
}

func TestIdempotencyKey(t *testing.T) {
	at := time.Date(2025, 10, 1, 10, 30, 45, 0, time.UTC)

	k1 := ordering.IdempotencyKey(1, []int64{3, 1, 2}, "ops", at)
	k2 := ordering.IdempotencyKey(1, []int64{1, 2, 3}, "ops", at.Add(10*time.Second))

	assert.Equal(t, k1, k2, "product order and seconds within the minute do not matter")

	assert.NotEqual(t, k1, ordering.IdempotencyKey(2, []int64{1, 2, 3}, "ops", at), "supplier differs")
	assert.NotEqual(t, k1, ordering.IdempotencyKey(1, []int64{1, 2}, "ops", at), "product set differs")
	assert.NotEqual(t, k1, ordering.IdempotencyKey(1, []int64{1, 2, 3}, "other", at), "actor differs")
	assert.NotEqual(t, k1, ordering.IdempotencyKey(1, []int64{1, 2, 3}, "ops", at.Add(time.Minute)), "next minute bucket")
}

func TestSupplier_Pricing(t *testing.T) {
	cnyRate := dec("0.65")

	cases := []struct {
		name         string
		supplier     ordering.Supplier
		wantCurrency string
		wantRate     string
	}{
		{"chinese by country", ordering.Supplier{CountryCode: "CN"}, "CNY", "0.65"},
		{"chinese by 1688 marker", ordering.Supplier{Code: "1688_8821"}, "CNY", "0.65"},
		{"chinese by sheet marker", ordering.Supplier{Code: "sheet_q3"}, "CNY", "0.65"},
		{"domestic default", ordering.Supplier{CountryCode: "RO"}, "RON", "1"},
		{"explicit currency wins", ordering.Supplier{CountryCode: "CN", Currency: "EUR"}, "EUR", "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			currency, rate := tc.supplier.Pricing(cnyRate)
			assert.Equal(t, tc.wantCurrency, currency)
			assert.True(t, rate.Equal(dec(tc.wantRate)), "rate %s", rate)
		})
	}
}

func TestUnitCost_Priority(t *testing.T) {
	sheet := decimal.NewNullDecimal(dec("5.50"))
	feed := decimal.NewNullDecimal(dec("6.10"))
	base := dec("9.99")

	assert.True(t, ordering.UnitCost(sheet, feed, base).Equal(dec("5.50")), "sheet first")
	assert.True(t, ordering.UnitCost(decimal.NullDecimal{}, feed, base).Equal(dec("6.10")), "feed second")
	assert.True(t, ordering.UnitCost(decimal.NullDecimal{}, decimal.NullDecimal{}, base).Equal(dec("9.99")), "base last")
}

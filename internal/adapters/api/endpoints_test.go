package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modula-erp/emag-sync-go/internal/adapters/api"
	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestReadProductOffers_MapsRowsAndSkipsBadOnes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, float64(2), body["currentPage"])
		assert.Equal(t, float64(100), body["itemsPerPage"])

		fmt.Fprint(w, `{
			"isError": false,
			"messages": [],
			"results": [
				{
					"id": 243409,
					"status": 1,
					"name": "USB cable",
					"part_number": "CB-001",
					"part_number_key": "ES0NKBBBM",
					"sale_price": "19.99",
					"currency": "RON",
					"general_stock": 20,
					"ean": ["5941234567890", " 4006381333931 "],
					"validation_status": [{"value": 9}],
					"offer_validation_status": {"value": 1},
					"modified": "2025-03-14T10:30:00+02:00"
				},
				{
					"id": 243410,
					"status": 1,
					"name": "Broken row",
					"part_number": "CB-002",
					"sale_price": "9.99",
					"modified": "not-a-date"
				}
			],
			"pagination": {"total": 250, "page": 2, "itemsPerPage": 100}
		}`)
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

	page, err := client.ReadProductOffers(context.Background(), shared.AccountMain, 2, 100, time.Time{})

	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	require.Len(t, page.Failures, 1)
	assert.Equal(t, int64(243410), page.Failures[0].RemoteID)
	assert.Equal(t, 250, page.Pagination.Total)

	p := page.Products[0]
	assert.Equal(t, "CB-001", p.SKU)
	assert.Equal(t, int64(243409), *p.RemoteID)
	assert.Equal(t, []string{"5941234567890", "4006381333931"}, p.EANs, "sanitized, order kept")
	assert.True(t, p.SalePrice.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, time.Date(2025, 3, 14, 8, 30, 0, 0, time.UTC), p.RemoteModifiedAt, "wire offset folded to UTC")
	assert.Equal(t, time.UTC, p.RemoteModifiedAt.Location())
	assert.NotEmpty(t, p.ContentHash)
}

func TestReadProductOffers_SendsModifiedAfter(t *testing.T) {
	var gotModified string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		gotModified, _ = body["modified_after"].(string)
		fmt.Fprint(w, okEnvelope(t, []any{}))
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

	since := time.Date(2025, 3, 13, 10, 0, 0, 0, time.UTC)
	_, err := client.ReadProductOffers(context.Background(), shared.AccountMain, 1, 0, since)

	require.NoError(t, err)
	assert.Equal(t, "2025-03-13T10:00:00Z", gotModified)
}

func TestSaveProductOffers_EnforcesBulkCap(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, okEnvelope(t, []any{}))
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

	oversized := make([]*api.OfferSave, 51)
	for i := range oversized {
		oversized[i] = &api.OfferSave{ID: int64(i + 1)}
	}
	err := client.SaveProductOffers(context.Background(), shared.AccountMain, oversized)
	require.Error(t, err)
	assert.Zero(t, hits.Load(), "rejected before any network attempt")

	require.NoError(t, client.SaveProductOffers(context.Background(), shared.AccountMain, oversized[:50]))
	assert.Equal(t, int32(1), hits.Load())
}

func TestUpdateStock_PatchesSingleOffer(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		fmt.Fprint(w, okEnvelope(t, []any{}))
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

	require.NoError(t, client.UpdateStock(context.Background(), shared.AccountMain, 243409, 1, 35))
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/offer_stock/243409", gotPath)

	err := client.UpdateStock(context.Background(), shared.AccountMain, 243409, 1, -1)
	require.Error(t, err)
}

func TestReadOrders_FiltersByStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, float64(1), body["status"])
		fmt.Fprint(w, `{
			"isError": false,
			"messages": [],
			"results": [{
				"id": 93472,
				"status": 1,
				"customer": {"name": "Ion Popescu"},
				"payment_mode": "card",
				"total": "149.50",
				"currency": "RON",
				"products": [{"product_id": 243409, "part_number_key": "ES0NKBBBM", "quantity": 2, "sale_price": "74.75"}],
				"date": "2025-03-14T12:00:00+02:00",
				"modified": "2025-03-14T12:05:00+02:00"
			}],
			"pagination": {"total": 1, "page": 1, "itemsPerPage": 100}
		}`)
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

	newOnly := catalog.OrderNew
	page, err := client.ReadOrders(context.Background(), shared.AccountMain, 1, 100, api.OrderFilter{Status: &newOnly})

	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	o := page.Orders[0]
	assert.Equal(t, int64(93472), o.RemoteID)
	assert.True(t, o.Status.NeedsAcknowledgement())
	assert.Equal(t, "Ion Popescu", o.CustomerName)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.Equal(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC), o.RemoteDate)
}

func TestAcknowledgeOrder_HitsOrderPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, okEnvelope(t, []any{}))
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

	require.NoError(t, client.AcknowledgeOrder(context.Background(), shared.AccountMain, 93472))
	assert.Equal(t, "/order/acknowledge/93472", gotPath)
}

func TestReadCategory_PagesCharacteristicValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, float64(506), body["id"])
		assert.Equal(t, float64(2), body["valuesCurrentPage"])
		assert.Equal(t, float64(10), body["valuesPerPage"])
		fmt.Fprint(w, okEnvelope(t, []map[string]any{{
			"id": 506, "name": "Cables", "is_allowed": 1,
			"characteristics": []map[string]any{{"id": 30, "name": "Length", "values": []string{"1 m", "2 m"}}},
		}}))
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

	cat, err := client.ReadCategory(context.Background(), shared.AccountMain, 506, 2, 10)

	require.NoError(t, err)
	assert.Equal(t, "Cables", cat.Name)
	require.Len(t, cat.Characteristics, 1)
	assert.Equal(t, []string{"1 m", "2 m"}, cat.Characteristics[0].Values)
}

func TestFindByEANs_ChunksAtLookupLimit(t *testing.T) {
	var calls []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eans := r.URL.Query()["eans[]"]
		calls = append(calls, len(eans))
		fmt.Fprint(w, okEnvelope(t, []map[string]any{{"part_number_key": "PNK", "eans": eans[:1]}}))
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))

	eans := make([]string, 250)
	for i := range eans {
		eans[i] = fmt.Sprintf("59412345%05d", i)
	}
	matches, err := client.FindByEANs(context.Background(), shared.AccountMain, eans)

	require.NoError(t, err)
	assert.Equal(t, []int{100, 100, 50}, calls)
	assert.Len(t, matches, 3)
}

func TestReferenceCache_CachesUntilInvalidated(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, okEnvelope(t, []map[string]any{{"vat_id": 1, "vat_rate": "0.19"}}))
	}))
	defer server.Close()
	client, _ := newTestClient(t, server.URL, shared.NewMockClock(t0))
	cache := api.NewReferenceCache(client, 0)

	first, err := cache.VatRates(context.Background(), shared.AccountMain)
	require.NoError(t, err)
	second, err := cache.VatRates(context.Background(), shared.AccountMain)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load(), "second read served from cache")

	cache.Invalidate(shared.AccountMain)
	_, err = cache.VatRates(context.Background(), shared.AccountMain)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

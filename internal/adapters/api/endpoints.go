package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
)

const (
	pathProductOfferRead = "product_offer/read"
	pathProductOfferSave = "product_offer/save"
	pathOfferStock       = "offer_stock/%d"
	pathOrderRead        = "order/read"
	pathOrderSave        = "order/save"
	pathOrderAcknowledge = "order/acknowledge/%d"
	pathCategoryRead     = "category/read"
	pathVatRead          = "vat/read"
	pathHandlingTimeRead = "handling_time/read"
	pathFindByEANs       = "documentation/find_by_eans"
)

const (
	// DefaultPageSize is the read page size the engine requests.
	DefaultPageSize = 100

	// MaxBulkEntities caps entities per write call.
	MaxBulkEntities = 50

	// maxEANsPerLookup caps codes per bulk EAN lookup call.
	maxEANsPerLookup = 100
)

// ItemError is a per-row conversion failure inside an otherwise good
// page. The engine records these without aborting the run.
type ItemError struct {
	RemoteID int64
	Err      error
}

// ProductPage is one page of remote offers mapped to domain products.
type ProductPage struct {
	Products   []*catalog.Product
	Failures   []ItemError
	Pagination Pagination
}

// ReadProductOffers pulls one page of product offers. A non-zero
// modifiedSince narrows the read to records changed after it.
func (c *Client) ReadProductOffers(ctx context.Context, account shared.Account, page, perPage int, modifiedSince time.Time) (*ProductPage, error) {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	body := map[string]any{
		"currentPage":  page,
		"itemsPerPage": perPage,
	}
	if !modifiedSince.IsZero() {
		body["modified_after"] = shared.FormatWireTime(modifiedSince)
	}

	env, err := c.Call(ctx, http.MethodPost, pathProductOfferRead, account, syncrun.ClassOther, body, nil)
	if err != nil {
		return nil, err
	}

	var rows []productOfferDTO
	if err := env.DecodeResults(&rows); err != nil {
		return nil, err
	}

	result := &ProductPage{Products: make([]*catalog.Product, 0, len(rows))}
	if env.Pagination != nil {
		result.Pagination = *env.Pagination
	}
	for _, row := range rows {
		p, convErr := row.toProduct(account)
		if convErr != nil {
			result.Failures = append(result.Failures, ItemError{RemoteID: row.ID, Err: convErr})
			continue
		}
		result.Products = append(result.Products, p)
	}
	return result, nil
}

// SaveProductOffers pushes up to MaxBulkEntities offer writes in one
// call. Callers chunk larger sets.
func (c *Client) SaveProductOffers(ctx context.Context, account shared.Account, saves []*OfferSave) error {
	if len(saves) == 0 {
		return nil
	}
	if len(saves) > MaxBulkEntities {
		return shared.NewValidationError("saves",
			fmt.Sprintf("bulk write limited to %d entities, got %d", MaxBulkEntities, len(saves)))
	}
	_, err := c.Call(ctx, http.MethodPost, pathProductOfferSave, account, syncrun.ClassOther, saves, nil)
	return err
}

// UpdateStock PATCHes a single offer's stock without touching the rest
// of the offer document.
func (c *Client) UpdateStock(ctx context.Context, account shared.Account, remoteID int64, warehouseID, value int) error {
	if value < 0 {
		return shared.NewValidationError("stock", "stock cannot be negative")
	}
	body := map[string]any{
		"stock": []stockDTO{{WarehouseID: warehouseID, Value: value}},
	}
	path := fmt.Sprintf(pathOfferStock, remoteID)
	_, err := c.Call(ctx, http.MethodPatch, path, account, syncrun.ClassOther, body, nil)
	return err
}

// OrderPage is one page of remote orders mapped to domain orders.
type OrderPage struct {
	Orders     []*catalog.Order
	Failures   []ItemError
	Pagination Pagination
}

// OrderFilter narrows an order read.
type OrderFilter struct {
	Status        *catalog.OrderStatus
	ModifiedAfter time.Time
}

// ReadOrders pulls one page of orders on the orders rate class.
func (c *Client) ReadOrders(ctx context.Context, account shared.Account, page, perPage int, filter OrderFilter) (*OrderPage, error) {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	body := map[string]any{
		"currentPage":  page,
		"itemsPerPage": perPage,
	}
	if filter.Status != nil {
		body["status"] = int(*filter.Status)
	}
	if !filter.ModifiedAfter.IsZero() {
		body["modified_after"] = shared.FormatWireTime(filter.ModifiedAfter)
	}

	env, err := c.Call(ctx, http.MethodPost, pathOrderRead, account, syncrun.ClassOrders, body, nil)
	if err != nil {
		return nil, err
	}

	var rows []orderDTO
	if err := env.DecodeResults(&rows); err != nil {
		return nil, err
	}

	result := &OrderPage{Orders: make([]*catalog.Order, 0, len(rows))}
	if env.Pagination != nil {
		result.Pagination = *env.Pagination
	}
	for _, row := range rows {
		o, convErr := row.toOrder(account)
		if convErr != nil {
			result.Failures = append(result.Failures, ItemError{RemoteID: row.ID, Err: convErr})
			continue
		}
		result.Orders = append(result.Orders, o)
	}
	return result, nil
}

// OrderStatusUpdate moves one remote order to a new status.
type OrderStatusUpdate struct {
	ID     int64 `json:"id"`
	Status int   `json:"status"`
}

// SaveOrderStatus pushes order status transitions, up to
// MaxBulkEntities per call.
func (c *Client) SaveOrderStatus(ctx context.Context, account shared.Account, updates []OrderStatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if len(updates) > MaxBulkEntities {
		return shared.NewValidationError("updates",
			fmt.Sprintf("bulk write limited to %d entities, got %d", MaxBulkEntities, len(updates)))
	}
	_, err := c.Call(ctx, http.MethodPost, pathOrderSave, account, syncrun.ClassOrders, updates, nil)
	return err
}

// AcknowledgeOrder confirms receipt of a new order so the marketplace
// stops re-notifying and unlocks status progression.
func (c *Client) AcknowledgeOrder(ctx context.Context, account shared.Account, remoteID int64) error {
	path := fmt.Sprintf(pathOrderAcknowledge, remoteID)
	_, err := c.Call(ctx, http.MethodPost, path, account, syncrun.ClassOrders, nil, nil)
	return err
}

// ReadCategory fetches one category with a window of its
// characteristic values. valuesPage and valuesPerPage drive the
// marketplace's value pagination.
func (c *Client) ReadCategory(ctx context.Context, account shared.Account, categoryID int64, valuesPage, valuesPerPage int) (*Category, error) {
	body := map[string]any{
		"id": categoryID,
	}
	if valuesPage > 0 {
		body["valuesCurrentPage"] = valuesPage
	}
	if valuesPerPage > 0 {
		body["valuesPerPage"] = valuesPerPage
	}

	env, err := c.Call(ctx, http.MethodPost, pathCategoryRead, account, syncrun.ClassOther, body, nil)
	if err != nil {
		return nil, err
	}
	var rows []Category
	if err := env.DecodeResults(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("category %d: %w", categoryID, shared.ErrNotFound)
	}
	return &rows[0], nil
}

// ListCategories pulls one page of the category tree.
func (c *Client) ListCategories(ctx context.Context, account shared.Account, page, perPage int) ([]Category, *Pagination, error) {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	body := map[string]any{
		"currentPage":  page,
		"itemsPerPage": perPage,
	}
	env, err := c.Call(ctx, http.MethodPost, pathCategoryRead, account, syncrun.ClassOther, body, nil)
	if err != nil {
		return nil, nil, err
	}
	var rows []Category
	if err := env.DecodeResults(&rows); err != nil {
		return nil, nil, err
	}
	return rows, env.Pagination, nil
}

// ReadVatRates fetches the remote VAT registry.
func (c *Client) ReadVatRates(ctx context.Context, account shared.Account) ([]VatRate, error) {
	env, err := c.Call(ctx, http.MethodPost, pathVatRead, account, syncrun.ClassOther, nil, nil)
	if err != nil {
		return nil, err
	}
	var rows []VatRate
	if err := env.DecodeResults(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadHandlingTimes fetches the remote handling-time registry.
func (c *Client) ReadHandlingTimes(ctx context.Context, account shared.Account) ([]HandlingTime, error) {
	env, err := c.Call(ctx, http.MethodPost, pathHandlingTimeRead, account, syncrun.ClassOther, nil, nil)
	if err != nil {
		return nil, err
	}
	var rows []HandlingTime
	if err := env.DecodeResults(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FindByEANs resolves codes against the remote catalog, chunking to
// the lookup's 100-code limit. Results come back in remote order,
// concatenated across chunks.
func (c *Client) FindByEANs(ctx context.Context, account shared.Account, eans []string) ([]EANMatch, error) {
	var matches []EANMatch
	for start := 0; start < len(eans); start += maxEANsPerLookup {
		end := start + maxEANsPerLookup
		if end > len(eans) {
			end = len(eans)
		}
		query := url.Values{}
		for _, ean := range eans[start:end] {
			query.Add("eans[]", ean)
		}

		env, err := c.Call(ctx, http.MethodGet, pathFindByEANs, account, syncrun.ClassOther, nil, query)
		if err != nil {
			return nil, err
		}
		var rows []EANMatch
		if err := env.DecodeResults(&rows); err != nil {
			return nil, err
		}
		matches = append(matches, rows...)
	}
	return matches, nil
}

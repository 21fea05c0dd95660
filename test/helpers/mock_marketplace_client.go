package helpers

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/modula-erp/emag-sync-go/internal/adapters/api"
	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// StockUpdate captures one UpdateStock call.
type StockUpdate struct {
	Account     shared.Account
	RemoteID    int64
	WarehouseID int
	Value       int
}

// MockMarketplaceClient is a test double for ports.MarketplaceClient.
// Fixtures are served page by page the way the remote would; errors
// and hooks let tests steer mid-run behavior.
//
// Hooks run while the mock's lock is held: they may touch repositories
// and clocks but must not call back into the mock.
type MockMarketplaceClient struct {
	mu sync.Mutex

	products map[shared.Account][]*catalog.Product
	orders   map[shared.Account][]*catalog.Order

	productFailures map[int][]api.ItemError

	vatRates      []api.VatRate
	handlingTimes []api.HandlingTime
	eanMatches    []api.EANMatch
	categories    []api.Category

	readProductCalls int
	readOrderCalls   int
	stockUpdates     []StockUpdate
	offerSaves       []*api.OfferSave
	statusSaves      []api.OrderStatusUpdate
	ackedOrders      []int64

	productsErr     error
	productsPageErr map[int]error
	ordersErr       error
	ordersPageErr   map[int]error
	saveOffersErr   error
	stockErr        map[int64]error
	ackErr          map[int64]error

	// OnProductsRead runs after a product page is served, before it is
	// returned. OnOrdersRead is its order-side twin.
	OnProductsRead func(page int)
	OnOrdersRead   func(page int)
}

// NewMockMarketplaceClient creates an empty mock.
func NewMockMarketplaceClient() *MockMarketplaceClient {
	return &MockMarketplaceClient{
		products:        make(map[shared.Account][]*catalog.Product),
		orders:          make(map[shared.Account][]*catalog.Order),
		productFailures: make(map[int][]api.ItemError),
		productsPageErr: make(map[int]error),
		ordersPageErr:   make(map[int]error),
		stockErr:        make(map[int64]error),
		ackErr:          make(map[int64]error),
	}
}

// SetProducts replaces the remote product fixture for an account.
func (m *MockMarketplaceClient) SetProducts(account shared.Account, products ...*catalog.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[account] = products
}

// SetOrders replaces the remote order fixture for an account.
func (m *MockMarketplaceClient) SetOrders(account shared.Account, orders ...*catalog.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[account] = orders
}

// AddProductFailures injects per-row conversion failures onto a page.
func (m *MockMarketplaceClient) AddProductFailures(page int, failures ...api.ItemError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.productFailures[page] = append(m.productFailures[page], failures...)
}

// SetVatRates sets the VAT registry fixture.
func (m *MockMarketplaceClient) SetVatRates(rates ...api.VatRate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vatRates = rates
}

// SetHandlingTimes sets the handling-time registry fixture.
func (m *MockMarketplaceClient) SetHandlingTimes(times ...api.HandlingTime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlingTimes = times
}

// SetEANMatches sets the bulk EAN lookup fixture.
func (m *MockMarketplaceClient) SetEANMatches(matches ...api.EANMatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eanMatches = matches
}

// SetCategories sets the category tree fixture.
func (m *MockMarketplaceClient) SetCategories(categories ...api.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = categories
}

// SetProductsError makes every product read fail.
func (m *MockMarketplaceClient) SetProductsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.productsErr = err
}

// FailProductsPageOnce makes one product page read fail a single time.
func (m *MockMarketplaceClient) FailProductsPageOnce(page int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.productsPageErr[page] = err
}

// SetOrdersError makes every order read fail.
func (m *MockMarketplaceClient) SetOrdersError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ordersErr = err
}

// FailOrdersPageOnce makes one order page read fail a single time.
func (m *MockMarketplaceClient) FailOrdersPageOnce(page int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ordersPageErr[page] = err
}

// SetSaveOffersError makes offer writes fail.
func (m *MockMarketplaceClient) SetSaveOffersError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveOffersErr = err
}

// SetStockError makes stock PATCHes for one offer fail.
func (m *MockMarketplaceClient) SetStockError(remoteID int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stockErr[remoteID] = err
}

// SetAckError makes acknowledgements for one order fail.
func (m *MockMarketplaceClient) SetAckError(remoteID int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ackErr[remoteID] = err
}

// ClearAckError removes an acknowledgement failure injection.
func (m *MockMarketplaceClient) ClearAckError(remoteID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ackErr, remoteID)
}

// ReadProductCalls reports how many product pages were requested.
func (m *MockMarketplaceClient) ReadProductCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readProductCalls
}

// ReadOrderCalls reports how many order pages were requested.
func (m *MockMarketplaceClient) ReadOrderCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readOrderCalls
}

// StockUpdates returns the captured stock PATCHes in call order.
func (m *MockMarketplaceClient) StockUpdates() []StockUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StockUpdate(nil), m.stockUpdates...)
}

// OfferSaves returns the captured offer writes in call order.
func (m *MockMarketplaceClient) OfferSaves() []*api.OfferSave {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*api.OfferSave(nil), m.offerSaves...)
}

// StatusSaves returns the captured order status writes in call order.
func (m *MockMarketplaceClient) StatusSaves() []api.OrderStatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]api.OrderStatusUpdate(nil), m.statusSaves...)
}

// AckedOrders returns the remote ids acknowledged, in call order.
func (m *MockMarketplaceClient) AckedOrders() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.ackedOrders...)
}

// ReadProductOffers serves one page of the product fixture.
func (m *MockMarketplaceClient) ReadProductOffers(ctx context.Context, account shared.Account, page, perPage int, modifiedSince time.Time) (*api.ProductPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readProductCalls++
	if m.productsErr != nil {
		return nil, m.productsErr
	}
	if err, ok := m.productsPageErr[page]; ok {
		delete(m.productsPageErr, page)
		return nil, err
	}
	if perPage <= 0 {
		perPage = api.DefaultPageSize
	}

	var rows []*catalog.Product
	for _, p := range m.products[account] {
		if !modifiedSince.IsZero() && !p.RemoteModifiedAt.After(modifiedSince) {
			continue
		}
		rows = append(rows, p)
	}

	// The announced total covers rows that will fail conversion too;
	// the remote cannot know which rows the client will reject.
	totalFailures := 0
	for _, fs := range m.productFailures {
		totalFailures += len(fs)
	}

	resp := &api.ProductPage{
		Pagination: api.Pagination{Total: len(rows) + totalFailures, Page: page, ItemsPerPage: perPage},
	}
	start := (page - 1) * perPage
	if start < len(rows) {
		end := start + perPage
		if end > len(rows) {
			end = len(rows)
		}
		resp.Products = append(resp.Products, rows[start:end]...)
	}
	resp.Failures = append(resp.Failures, m.productFailures[page]...)

	if m.OnProductsRead != nil {
		m.OnProductsRead(page)
	}
	return resp, nil
}

// SaveProductOffers captures offer writes.
func (m *MockMarketplaceClient) SaveProductOffers(ctx context.Context, account shared.Account, saves []*api.OfferSave) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveOffersErr != nil {
		return m.saveOffersErr
	}
	if len(saves) > api.MaxBulkEntities {
		return fmt.Errorf("bulk write limited to %d entities, got %d", api.MaxBulkEntities, len(saves))
	}
	m.offerSaves = append(m.offerSaves, saves...)
	return nil
}

// UpdateStock captures stock PATCHes.
func (m *MockMarketplaceClient) UpdateStock(ctx context.Context, account shared.Account, remoteID int64, warehouseID, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.stockErr[remoteID]; ok {
		return err
	}
	m.stockUpdates = append(m.stockUpdates, StockUpdate{
		Account:     account,
		RemoteID:    remoteID,
		WarehouseID: warehouseID,
		Value:       value,
	})
	return nil
}

// ReadOrders serves one page of the order fixture.
func (m *MockMarketplaceClient) ReadOrders(ctx context.Context, account shared.Account, page, perPage int, filter api.OrderFilter) (*api.OrderPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOrderCalls++
	if m.ordersErr != nil {
		return nil, m.ordersErr
	}
	if err, ok := m.ordersPageErr[page]; ok {
		delete(m.ordersPageErr, page)
		return nil, err
	}
	if perPage <= 0 {
		perPage = api.DefaultPageSize
	}

	var rows []*catalog.Order
	for _, o := range m.orders[account] {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if !filter.ModifiedAfter.IsZero() && !o.RemoteModified.After(filter.ModifiedAfter) {
			continue
		}
		rows = append(rows, o)
	}

	resp := &api.OrderPage{
		Pagination: api.Pagination{Total: len(rows), Page: page, ItemsPerPage: perPage},
	}
	start := (page - 1) * perPage
	if start < len(rows) {
		end := start + perPage
		if end > len(rows) {
			end = len(rows)
		}
		resp.Orders = append(resp.Orders, rows[start:end]...)
	}

	if m.OnOrdersRead != nil {
		m.OnOrdersRead(page)
	}
	return resp, nil
}

// SaveOrderStatus captures order status writes.
func (m *MockMarketplaceClient) SaveOrderStatus(ctx context.Context, account shared.Account, updates []api.OrderStatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusSaves = append(m.statusSaves, updates...)
	return nil
}

// AcknowledgeOrder captures acknowledgements.
func (m *MockMarketplaceClient) AcknowledgeOrder(ctx context.Context, account shared.Account, remoteID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.ackErr[remoteID]; ok {
		return err
	}
	m.ackedOrders = append(m.ackedOrders, remoteID)
	return nil
}

// ReadCategory serves one category from the fixture.
func (m *MockMarketplaceClient) ReadCategory(ctx context.Context, account shared.Account, categoryID int64, valuesPage, valuesPerPage int) (*api.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.categories {
		if m.categories[i].ID == categoryID {
			return &m.categories[i], nil
		}
	}
	return nil, fmt.Errorf("category %d: %w", categoryID, shared.ErrNotFound)
}

// ListCategories serves the category fixture as a single page.
func (m *MockMarketplaceClient) ListCategories(ctx context.Context, account shared.Account, page, perPage int) ([]api.Category, *api.Pagination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if page > 1 {
		return nil, &api.Pagination{Total: len(m.categories), Page: page, ItemsPerPage: perPage}, nil
	}
	out := append([]api.Category(nil), m.categories...)
	return out, &api.Pagination{Total: len(out), Page: page, ItemsPerPage: perPage}, nil
}

// ReadVatRates serves the VAT registry fixture.
func (m *MockMarketplaceClient) ReadVatRates(ctx context.Context, account shared.Account) ([]api.VatRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]api.VatRate(nil), m.vatRates...), nil
}

// ReadHandlingTimes serves the handling-time registry fixture.
func (m *MockMarketplaceClient) ReadHandlingTimes(ctx context.Context, account shared.Account) ([]api.HandlingTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]api.HandlingTime(nil), m.handlingTimes...), nil
}

// FindByEANs serves the lookup fixture for the requested codes.
func (m *MockMarketplaceClient) FindByEANs(ctx context.Context, account shared.Account, eans []string) ([]api.EANMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []api.EANMatch
	for _, match := range m.eanMatches {
		for _, ean := range match.EANs {
			if slices.Contains(eans, ean) {
				out = append(out, match)
				break
			}
		}
	}
	return out, nil
}

package ports

import (
	"context"
	"time"

	"github.com/modula-erp/emag-sync-go/internal/adapters/api"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// MarketplaceClient defines operations against the eMAG Marketplace API.
// This is in infrastructure/ports because it's an external service interface;
// the application layer depends on it rather than on the concrete adapter.
type MarketplaceClient interface {
	// Product and offer operations
	ReadProductOffers(ctx context.Context, account shared.Account, page, perPage int, modifiedSince time.Time) (*api.ProductPage, error)
	SaveProductOffers(ctx context.Context, account shared.Account, saves []*api.OfferSave) error
	UpdateStock(ctx context.Context, account shared.Account, remoteID int64, warehouseID, value int) error

	// Order operations
	ReadOrders(ctx context.Context, account shared.Account, page, perPage int, filter api.OrderFilter) (*api.OrderPage, error)
	SaveOrderStatus(ctx context.Context, account shared.Account, updates []api.OrderStatusUpdate) error
	AcknowledgeOrder(ctx context.Context, account shared.Account, remoteID int64) error

	// Reference data operations
	ReadCategory(ctx context.Context, account shared.Account, categoryID int64, valuesPage, valuesPerPage int) (*api.Category, error)
	ListCategories(ctx context.Context, account shared.Account, page, perPage int) ([]api.Category, *api.Pagination, error)
	ReadVatRates(ctx context.Context, account shared.Account) ([]api.VatRate, error)
	ReadHandlingTimes(ctx context.Context, account shared.Account) ([]api.HandlingTime, error)

	// Catalog lookup
	FindByEANs(ctx context.Context, account shared.Account, eans []string) ([]api.EANMatch, error)
}

package persistence

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/modula-erp/emag-sync-go/internal/domain/ordering"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// GormSupplierRepository implements ordering.SupplierRepository using GORM
type GormSupplierRepository struct {
	db *gorm.DB
}

// NewGormSupplierRepository creates a new GORM supplier repository
func NewGormSupplierRepository(db *gorm.DB) *GormSupplierRepository {
	return &GormSupplierRepository{db: db}
}

// Create inserts a supplier and copies back the generated ID
func (r *GormSupplierRepository) Create(ctx context.Context, s *ordering.Supplier) error {
	model := r.entityToModel(s)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to create supplier: %w", result.Error)
	}
	s.ID = model.ID
	return nil
}

// FindByID retrieves one supplier
func (r *GormSupplierRepository) FindByID(ctx context.Context, id int64) (*ordering.Supplier, error) {
	var model SupplierModel
	result := r.db.WithContext(ctx).First(&model, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: supplier %d", shared.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find supplier: %w", result.Error)
	}
	return r.modelToEntity(&model), nil
}

// FindByCode retrieves one supplier by its unique code
func (r *GormSupplierRepository) FindByCode(ctx context.Context, code string) (*ordering.Supplier, error) {
	var model SupplierModel
	result := r.db.WithContext(ctx).Where("code = ?", code).First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: supplier %q", shared.ErrNotFound, code)
		}
		return nil, fmt.Errorf("failed to find supplier: %w", result.Error)
	}
	return r.modelToEntity(&model), nil
}

// List returns all suppliers ordered by name
func (r *GormSupplierRepository) List(ctx context.Context) ([]*ordering.Supplier, error) {
	var models []SupplierModel
	if err := r.db.WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	out := make([]*ordering.Supplier, 0, len(models))
	for i := range models {
		out = append(out, r.modelToEntity(&models[i]))
	}
	return out, nil
}

// UpsertSheetEntry writes one spreadsheet price, keyed by (supplier,
// product)
func (r *GormSupplierRepository) UpsertSheetEntry(ctx context.Context, e *ordering.SheetEntry) error {
	model := &SupplierSheetEntryModel{
		ID:         e.ID,
		SupplierID: e.SupplierID,
		ProductID:  e.ProductID,
		Price:      e.Price,
		Currency:   e.Currency,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "supplier_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "currency", "updated_at"}),
	}).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert sheet entry: %w", result.Error)
	}
	e.ID = model.ID
	return nil
}

// SheetPrices returns the sheet price per product for one supplier,
// restricted to the given products
func (r *GormSupplierRepository) SheetPrices(ctx context.Context, supplierID int64, productIDs []int64) (map[int64]decimal.Decimal, error) {
	if len(productIDs) == 0 {
		return map[int64]decimal.Decimal{}, nil
	}
	var models []SupplierSheetEntryModel
	result := r.db.WithContext(ctx).
		Where("supplier_id = ? AND product_id IN ?", supplierID, productIDs).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load sheet prices: %w", result.Error)
	}
	prices := make(map[int64]decimal.Decimal, len(models))
	for _, m := range models {
		prices[m.ProductID] = m.Price
	}
	return prices, nil
}

// modelToEntity converts database model to domain entity
func (r *GormSupplierRepository) modelToEntity(model *SupplierModel) *ordering.Supplier {
	return &ordering.Supplier{
		ID:          model.ID,
		Name:        model.Name,
		Code:        model.Code,
		CountryCode: model.CountryCode,
		Currency:    model.Currency,
		ContactInfo: model.ContactInfo,
		CreatedAt:   model.CreatedAt.UTC(),
		UpdatedAt:   model.UpdatedAt.UTC(),
	}
}

// entityToModel converts domain entity to database model
func (r *GormSupplierRepository) entityToModel(s *ordering.Supplier) *SupplierModel {
	return &SupplierModel{
		ID:          s.ID,
		Name:        s.Name,
		Code:        s.Code,
		CountryCode: s.CountryCode,
		Currency:    s.Currency,
		ContactInfo: s.ContactInfo,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/modula-erp/emag-sync-go/internal/domain/ordering"
)

// GormInventoryRepository implements ordering.InventoryRepository using GORM
type GormInventoryRepository struct {
	db *gorm.DB
}

// NewGormInventoryRepository creates a new GORM inventory repository
func NewGormInventoryRepository(db *gorm.DB) *GormInventoryRepository {
	return &GormInventoryRepository{db: db}
}

// Upsert writes one inventory row, keyed by (product, warehouse)
func (r *GormInventoryRepository) Upsert(ctx context.Context, item *ordering.InventoryItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	model := r.entityToModel(item)
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}, {Name: "warehouse_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"quantity", "reserved_quantity", "minimum_stock", "reorder_point",
			"maximum_stock", "manual_reorder_quantity", "updated_at",
		}),
	}).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert inventory item: %w", result.Error)
	}
	item.ID = model.ID
	return nil
}

// FindByProduct returns the per-warehouse rows for one product
func (r *GormInventoryRepository) FindByProduct(ctx context.Context, productID int64) ([]*ordering.InventoryItem, error) {
	var models []InventoryItemModel
	result := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("warehouse_id").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find inventory items: %w", result.Error)
	}
	out := make([]*ordering.InventoryItem, 0, len(models))
	for i := range models {
		out = append(out, r.modelToEntity(&models[i]))
	}
	return out, nil
}

// ListBelowMinimum returns rows whose available quantity sits under
// the minimum stock level
func (r *GormInventoryRepository) ListBelowMinimum(ctx context.Context) ([]*ordering.InventoryItem, error) {
	var models []InventoryItemModel
	result := r.db.WithContext(ctx).
		Where("quantity - reserved_quantity < minimum_stock").
		Order("product_id").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list low-stock items: %w", result.Error)
	}
	out := make([]*ordering.InventoryItem, 0, len(models))
	for i := range models {
		out = append(out, r.modelToEntity(&models[i]))
	}
	return out, nil
}

// modelToEntity converts database model to domain entity
func (r *GormInventoryRepository) modelToEntity(model *InventoryItemModel) *ordering.InventoryItem {
	return &ordering.InventoryItem{
		ID:                    model.ID,
		ProductID:             model.ProductID,
		WarehouseID:           model.WarehouseID,
		Quantity:              model.Quantity,
		ReservedQuantity:      model.ReservedQuantity,
		MinimumStock:          model.MinimumStock,
		ReorderPoint:          model.ReorderPoint,
		MaximumStock:          model.MaximumStock,
		ManualReorderQuantity: model.ManualReorderQuantity,
		CreatedAt:             model.CreatedAt.UTC(),
		UpdatedAt:             model.UpdatedAt.UTC(),
	}
}

// entityToModel converts domain entity to database model
func (r *GormInventoryRepository) entityToModel(item *ordering.InventoryItem) *InventoryItemModel {
	return &InventoryItemModel{
		ID:                    item.ID,
		ProductID:             item.ProductID,
		WarehouseID:           item.WarehouseID,
		Quantity:              item.Quantity,
		ReservedQuantity:      item.ReservedQuantity,
		MinimumStock:          item.MinimumStock,
		ReorderPoint:          item.ReorderPoint,
		MaximumStock:          item.MaximumStock,
		ManualReorderQuantity: item.ManualReorderQuantity,
		CreatedAt:             item.CreatedAt,
		UpdatedAt:             item.UpdatedAt,
	}
}

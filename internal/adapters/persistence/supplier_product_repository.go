package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/modula-erp/emag-sync-go/internal/domain/matching"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// GormSupplierProductRepository implements
// matching.SupplierProductRepository using GORM
type GormSupplierProductRepository struct {
	db *gorm.DB
}

// NewGormSupplierProductRepository creates a new GORM supplier product
// repository
func NewGormSupplierProductRepository(db *gorm.DB) *GormSupplierProductRepository {
	return &GormSupplierProductRepository{db: db}
}

// Create inserts one feed row and copies back the generated ID
func (r *GormSupplierProductRepository) Create(ctx context.Context, sp *matching.SupplierProduct) error {
	if err := sp.Validate(); err != nil {
		return err
	}
	model := r.entityToModel(sp)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to create supplier product: %w", result.Error)
	}
	sp.ID = model.ID
	return nil
}

// CreateBatch inserts feed rows in one transaction
func (r *GormSupplierProductRepository) CreateBatch(ctx context.Context, sps []*matching.SupplierProduct) error {
	if len(sps) == 0 {
		return nil
	}
	models := make([]SupplierProductModel, 0, len(sps))
	for _, sp := range sps {
		if err := sp.Validate(); err != nil {
			return err
		}
		models = append(models, *r.entityToModel(sp))
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.CreateInBatches(models, upsertBatchSize)
		if result.Error != nil {
			return fmt.Errorf("failed to create supplier products: %w", result.Error)
		}
		for i, sp := range sps {
			sp.ID = models[i].ID
		}
		return nil
	})
}

// Save persists link-state changes on one row
func (r *GormSupplierProductRepository) Save(ctx context.Context, sp *matching.SupplierProduct) error {
	if err := sp.Validate(); err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&SupplierProductModel{}).
		Where("id = ?", sp.ID).
		Updates(r.linkColumns(sp))
	if result.Error != nil {
		return fmt.Errorf("failed to save supplier product %d: %w", sp.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: supplier product %d", shared.ErrNotFound, sp.ID)
	}
	return nil
}

// ConfirmExclusive persists a confirmed row while holding the
// one-confirmed-match-per-(supplier, product) rule inside one
// transaction.
func (r *GormSupplierProductRepository) ConfirmExclusive(ctx context.Context, sp *matching.SupplierProduct) error {
	if err := sp.Validate(); err != nil {
		return err
	}
	if sp.State() != matching.StateConfirmed || sp.LinkedProductID == nil {
		return shared.NewValidationError("match", "row is not a confirmed link")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&SupplierProductModel{}).
			Where("supplier_id = ? AND linked_product_id = ? AND manual_confirmed = ? AND id <> ?",
				sp.SupplierID, *sp.LinkedProductID, true, sp.ID).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to check confirmed matches: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: supplier %d already has a confirmed match for product %d",
				shared.ErrConflictExists, sp.SupplierID, *sp.LinkedProductID)
		}
		result := tx.Model(&SupplierProductModel{}).
			Where("id = ?", sp.ID).
			Updates(r.linkColumns(sp))
		if result.Error != nil {
			return fmt.Errorf("failed to confirm supplier product %d: %w", sp.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: supplier product %d", shared.ErrNotFound, sp.ID)
		}
		return nil
	})
}

// FindByID retrieves one supplier product
func (r *GormSupplierProductRepository) FindByID(ctx context.Context, id int64) (*matching.SupplierProduct, error) {
	var model SupplierProductModel
	result := r.db.WithContext(ctx).First(&model, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: supplier product %d", shared.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find supplier product: %w", result.Error)
	}
	return r.modelToEntity(&model), nil
}

// ListBySupplier returns the supplier's rows, optionally narrowed to
// one derived state
func (r *GormSupplierProductRepository) ListBySupplier(ctx context.Context, supplierID int64, state *matching.State) ([]*matching.SupplierProduct, error) {
	q := r.db.WithContext(ctx).Where("supplier_id = ?", supplierID)
	if state != nil {
		switch *state {
		case matching.StateUnmatched:
			q = q.Where("linked_product_id IS NULL")
		case matching.StatePending:
			q = q.Where("linked_product_id IS NOT NULL AND manual_confirmed = ?", false)
		case matching.StateConfirmed:
			q = q.Where("manual_confirmed = ?", true)
		default:
			return nil, shared.NewValidationError("state", fmt.Sprintf("unknown match state %q", *state))
		}
	}
	var models []SupplierProductModel
	if err := q.Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list supplier products: %w", err)
	}
	out := make([]*matching.SupplierProduct, 0, len(models))
	for i := range models {
		out = append(out, r.modelToEntity(&models[i]))
	}
	return out, nil
}

// UnlinkPending clears every pending link for the supplier in one
// statement. Confirmed rows are never touched.
func (r *GormSupplierProductRepository) UnlinkPending(ctx context.Context, supplierID int64) (int64, error) {
	result := r.db.WithContext(ctx).Model(&SupplierProductModel{}).
		Where("supplier_id = ? AND linked_product_id IS NOT NULL AND manual_confirmed = ?",
			supplierID, false).
		Updates(map[string]interface{}{
			"linked_product_id": nil,
			"similarity_score":  nil,
			"manual_confirmed":  nil,
			"confirmed_by":      "",
			"confirmed_at":      nil,
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to unlink pending matches: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// linkColumns is the update set for link-state changes. Identity and
// feed content stay untouched.
func (r *GormSupplierProductRepository) linkColumns(sp *matching.SupplierProduct) map[string]interface{} {
	return map[string]interface{}{
		"linked_product_id": sp.LinkedProductID,
		"similarity_score":  sp.SimilarityScore,
		"manual_confirmed":  sp.ManualConfirmed,
		"confirmed_by":      sp.ConfirmedBy,
		"confirmed_at":      sp.ConfirmedAt,
		"updated_at":        sp.UpdatedAt,
	}
}

// modelToEntity converts database model to domain entity
func (r *GormSupplierProductRepository) modelToEntity(model *SupplierProductModel) *matching.SupplierProduct {
	return &matching.SupplierProduct{
		ID:              model.ID,
		SupplierID:      model.SupplierID,
		RawName:         model.RawName,
		NormalizedName:  model.NormalizedName,
		EAN:             model.EAN,
		PartNumberKey:   model.PartNumberKey,
		ImageURL:        model.ImageURL,
		URL:             model.URL,
		Price:           model.Price,
		Currency:        model.Currency,
		LinkedProductID: model.LinkedProductID,
		SimilarityScore: model.SimilarityScore,
		ManualConfirmed: model.ManualConfirmed,
		ConfirmedBy:     model.ConfirmedBy,
		ConfirmedAt:     utcPtr(model.ConfirmedAt),
		CreatedAt:       model.CreatedAt.UTC(),
		UpdatedAt:       model.UpdatedAt.UTC(),
	}
}

// entityToModel converts domain entity to database model
func (r *GormSupplierProductRepository) entityToModel(sp *matching.SupplierProduct) *SupplierProductModel {
	return &SupplierProductModel{
		ID:              sp.ID,
		SupplierID:      sp.SupplierID,
		RawName:         sp.RawName,
		NormalizedName:  sp.NormalizedName,
		EAN:             sp.EAN,
		PartNumberKey:   sp.PartNumberKey,
		ImageURL:        sp.ImageURL,
		URL:             sp.URL,
		Price:           sp.Price,
		Currency:        sp.Currency,
		LinkedProductID: sp.LinkedProductID,
		SimilarityScore: sp.SimilarityScore,
		ManualConfirmed: sp.ManualConfirmed,
		ConfirmedBy:     sp.ConfirmedBy,
		ConfirmedAt:     sp.ConfirmedAt,
		CreatedAt:       sp.CreatedAt,
		UpdatedAt:       sp.UpdatedAt,
	}
}

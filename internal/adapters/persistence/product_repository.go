package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// upsertBatchSize bounds how many rows one INSERT carries.
const upsertBatchSize = 100

// GormProductRepository implements catalog.ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GORM product repository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindBySKU retrieves one product by its (account, sku) identity
func (r *GormProductRepository) FindBySKU(ctx context.Context, account shared.Account, sku string) (*catalog.Product, error) {
	var model ProductModel
	result := r.db.WithContext(ctx).
		Where("account = ? AND sku = ?", string(account), sku).
		First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: product %s/%s", shared.ErrNotFound, account, sku)
		}
		return nil, fmt.Errorf("failed to find product: %w", result.Error)
	}
	return r.modelToEntity(&model)
}

// FindBySKUs loads existing rows for one page of SKUs, keyed by SKU
func (r *GormProductRepository) FindBySKUs(ctx context.Context, account shared.Account, skus []string) (map[string]*catalog.Product, error) {
	if len(skus) == 0 {
		return map[string]*catalog.Product{}, nil
	}
	var models []ProductModel
	result := r.db.WithContext(ctx).
		Where("account = ? AND sku IN ?", string(account), skus).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load products by sku: %w", result.Error)
	}
	out := make(map[string]*catalog.Product, len(models))
	for i := range models {
		entity, err := r.modelToEntity(&models[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert product %s: %w", models[i].SKU, err)
		}
		out[entity.SKU] = entity
	}
	return out, nil
}

// FindByIDs loads rows across accounts keyed by local id.
func (r *GormProductRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]*catalog.Product, error) {
	if len(ids) == 0 {
		return map[int64]*catalog.Product{}, nil
	}
	var models []ProductModel
	result := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load products by id: %w", result.Error)
	}
	out := make(map[int64]*catalog.Product, len(models))
	for i := range models {
		entity, err := r.modelToEntity(&models[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert product %s: %w", models[i].SKU, err)
		}
		out[entity.ID] = entity
	}
	return out, nil
}

// UpsertBatch writes the rows in one transaction, keyed by (account,
// sku). All-or-nothing: callers isolate bad rows via Upsert.
func (r *GormProductRepository) UpsertBatch(ctx context.Context, products []*catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	models := make([]ProductModel, 0, len(products))
	for _, p := range products {
		model, err := r.entityToModel(p)
		if err != nil {
			return err
		}
		models = append(models, *model)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}, {Name: "sku"}},
			DoUpdates: clause.AssignmentColumns(productUpsertColumns),
		}).CreateInBatches(models, upsertBatchSize)
		if result.Error != nil {
			return fmt.Errorf("failed to upsert products: %w", result.Error)
		}
		return nil
	})
}

// Upsert writes a single row, keyed by (account, sku)
func (r *GormProductRepository) Upsert(ctx context.Context, p *catalog.Product) error {
	model, err := r.entityToModel(p)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}, {Name: "sku"}},
		DoUpdates: clause.AssignmentColumns(productUpsertColumns),
	}).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.SKU, result.Error)
	}
	return nil
}

// productUpsertColumns are the columns a conflicting upsert rewrites:
// the marketplace-owned content. Identity and created_at stay
// untouched, as do chinese_name and review_required, which belong to
// the matching flow and the manual review queue respectively.
var productUpsertColumns = []string{
	"remote_id", "part_number_key", "name", "brand", "category_id",
	"sale_price", "min_sale_price", "max_sale_price",
	"currency", "stock", "status", "validation_status",
	"offer_validation_status", "active", "ean_codes",
	"images_json", "characteristics_json", "content_hash",
	"remote_modified_at", "synced_at", "updated_at",
}

// TouchSynced refreshes synced_at for unchanged rows so staleness
// sweeps keep them alive. updated_at stays put: a no-op re-run must
// leave no visible trace on the row.
func (r *GormProductRepository) TouchSynced(ctx context.Context, account shared.Account, skus []string, at time.Time) error {
	if len(skus) == 0 {
		return nil
	}
	at, err := shared.EnsureNaiveUTC(at)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("account = ? AND sku IN ?", string(account), skus).
		UpdateColumn("synced_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to touch products: %w", result.Error)
	}
	return nil
}

// DeactivateStale deactivates active rows not seen since the watermark
func (r *GormProductRepository) DeactivateStale(ctx context.Context, account shared.Account, before time.Time) (int64, error) {
	before, err := shared.EnsureNaiveUTC(before)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("account = ? AND active = ? AND synced_at < ?", string(account), true, before).
		Updates(map[string]interface{}{"active": false, "updated_at": now})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to deactivate stale products: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// FlagStaleForReview marks active rows not seen since the watermark for
// manual review. Runs under the manual conflict strategy use it in
// place of deactivation.
func (r *GormProductRepository) FlagStaleForReview(ctx context.Context, account shared.Account, before time.Time) (int64, error) {
	before, err := shared.EnsureNaiveUTC(before)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("account = ? AND active = ? AND review_required = ? AND synced_at < ?",
			string(account), true, false, before).
		Updates(map[string]interface{}{"review_required": true, "updated_at": now})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to flag stale products for review: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SetReviewRequired flips the manual-review flag on one row
func (r *GormProductRepository) SetReviewRequired(ctx context.Context, account shared.Account, sku string, required bool) error {
	result := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("account = ? AND sku = ?", string(account), sku).
		Updates(map[string]interface{}{"review_required": required, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return fmt.Errorf("failed to set review flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: product %s/%s", shared.ErrNotFound, account, sku)
	}
	return nil
}

// List returns products for an account, narrowed by the filter
func (r *GormProductRepository) List(ctx context.Context, account shared.Account, filter catalog.ProductFilter) ([]*catalog.Product, error) {
	q := r.db.WithContext(ctx).Where("account = ?", string(account))
	if len(filter.CategoryIDs) > 0 {
		q = q.Where("category_id IN ?", filter.CategoryIDs)
	}
	if len(filter.ValidationStatuses) > 0 {
		q = q.Where("validation_status IN ?", filter.ValidationStatuses)
	}
	if filter.OnlyActive {
		q = q.Where("active = ?", true)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var models []ProductModel
	if err := q.Order("sku").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return r.modelsToEntities(models)
}

// Saleable returns the rows eligible for stock push-back. The final
// saleability gate lives on the entity; SQL only pre-narrows.
func (r *GormProductRepository) Saleable(ctx context.Context, account shared.Account) ([]*catalog.Product, error) {
	var models []ProductModel
	result := r.db.WithContext(ctx).
		Where("account = ? AND active = ? AND stock > 0 AND status = ?",
			string(account), true, int(catalog.OfferStatusActive)).
		Order("sku").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list saleable products: %w", result.Error)
	}
	entities, err := r.modelsToEntities(models)
	if err != nil {
		return nil, err
	}
	out := entities[:0]
	for _, p := range entities {
		if p.Saleable() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *GormProductRepository) modelsToEntities(models []ProductModel) ([]*catalog.Product, error) {
	entities := make([]*catalog.Product, 0, len(models))
	for i := range models {
		entity, err := r.modelToEntity(&models[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert product %s: %w", models[i].SKU, err)
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// modelToEntity converts database model to domain entity
func (r *GormProductRepository) modelToEntity(model *ProductModel) (*catalog.Product, error) {
	p := &catalog.Product{
		ID:                    model.ID,
		Account:               shared.Account(model.Account),
		SKU:                   model.SKU,
		RemoteID:              model.RemoteID,
		Name:                  model.Name,
		Brand:                 model.Brand,
		CategoryID:            model.CategoryID,
		ChineseName:           model.ChineseName,
		SalePrice:             model.SalePrice,
		MinSalePrice:          model.MinSalePrice,
		MaxSalePrice:          model.MaxSalePrice,
		Currency:              model.Currency,
		Stock:                 model.Stock,
		Status:                catalog.OfferStatus(model.Status),
		ValidationStatus:      catalog.ValidationStatus(model.ValidationStatus),
		OfferValidationStatus: catalog.OfferValidationStatus(model.OfferValidationStatus),
		Active:                model.Active,
		ReviewRequired:        model.ReviewRequired,
		ContentHash:           model.ContentHash,
		RemoteModifiedAt:      model.RemoteModifiedAt.UTC(),
		SyncedAt:              model.SyncedAt.UTC(),
		CreatedAt:             model.CreatedAt.UTC(),
		UpdatedAt:             model.UpdatedAt.UTC(),
	}
	if model.PartNumberKey != nil {
		p.PartNumberKey = *model.PartNumberKey
	}
	if model.EANCodes != "" {
		if err := json.Unmarshal([]byte(model.EANCodes), &p.EANs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ean codes: %w", err)
		}
	}
	if model.ImagesJSON != "" {
		if err := json.Unmarshal([]byte(model.ImagesJSON), &p.Images); err != nil {
			return nil, fmt.Errorf("failed to unmarshal images: %w", err)
		}
	}
	if model.CharacteristicsJSON != "" {
		if err := json.Unmarshal([]byte(model.CharacteristicsJSON), &p.Characteristics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal characteristics: %w", err)
		}
	}
	return p, nil
}

// entityToModel converts domain entity to database model. Timestamps
// must already be naive UTC; anything else is a bug upstream.
func (r *GormProductRepository) entityToModel(p *catalog.Product) (*ProductModel, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for _, ts := range []time.Time{p.RemoteModifiedAt, p.SyncedAt, p.CreatedAt, p.UpdatedAt} {
		if _, err := shared.EnsureNaiveUTC(ts); err != nil {
			return nil, fmt.Errorf("product %s: %w", p.SKU, err)
		}
	}

	eans, err := json.Marshal(p.EANs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ean codes: %w", err)
	}
	images, err := json.Marshal(p.Images)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal images: %w", err)
	}
	chars, err := json.Marshal(p.Characteristics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal characteristics: %w", err)
	}

	model := &ProductModel{
		ID:                    p.ID,
		Account:               string(p.Account),
		SKU:                   p.SKU,
		RemoteID:              p.RemoteID,
		Name:                  p.Name,
		Brand:                 p.Brand,
		CategoryID:            p.CategoryID,
		ChineseName:           p.ChineseName,
		SalePrice:             p.SalePrice,
		MinSalePrice:          p.MinSalePrice,
		MaxSalePrice:          p.MaxSalePrice,
		Currency:              p.Currency,
		Stock:                 p.Stock,
		Status:                int(p.Status),
		ValidationStatus:      int(p.ValidationStatus),
		OfferValidationStatus: int(p.OfferValidationStatus),
		Active:                p.Active,
		ReviewRequired:        p.ReviewRequired,
		EANCodes:              string(eans),
		ImagesJSON:            string(images),
		CharacteristicsJSON:   string(chars),
		ContentHash:           p.ContentHash,
		RemoteModifiedAt:      p.RemoteModifiedAt,
		SyncedAt:              p.SyncedAt,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
	if p.PartNumberKey != "" {
		pnk := p.PartNumberKey
		model.PartNumberKey = &pnk
	}
	return model, nil
}

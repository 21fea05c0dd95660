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

// GormOrderRepository implements catalog.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GORM order repository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByRemoteID retrieves one order by its (account, remote_id) identity
func (r *GormOrderRepository) FindByRemoteID(ctx context.Context, account shared.Account, remoteID int64) (*catalog.Order, error) {
	var model MarketplaceOrderModel
	result := r.db.WithContext(ctx).
		Where("account = ? AND remote_id = ?", string(account), remoteID).
		First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: order %s/%d", shared.ErrNotFound, account, remoteID)
		}
		return nil, fmt.Errorf("failed to find order: %w", result.Error)
	}
	return r.modelToEntity(&model)
}

// FindByRemoteIDs loads the existing rows for one page of pulled
// orders, keyed by remote id
func (r *GormOrderRepository) FindByRemoteIDs(ctx context.Context, account shared.Account, remoteIDs []int64) (map[int64]*catalog.Order, error) {
	found := make(map[int64]*catalog.Order, len(remoteIDs))
	if len(remoteIDs) == 0 {
		return found, nil
	}
	var models []MarketplaceOrderModel
	result := r.db.WithContext(ctx).
		Where("account = ? AND remote_id IN ?", string(account), remoteIDs).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find orders: %w", result.Error)
	}
	for i := range models {
		entity, err := r.modelToEntity(&models[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert order %d: %w", models[i].RemoteID, err)
		}
		found[entity.RemoteID] = entity
	}
	return found, nil
}

// UpsertBatch writes the rows in one transaction, keyed by (account,
// remote_id). Acknowledgement stamps are not rewritten: the remote
// does not know them.
func (r *GormOrderRepository) UpsertBatch(ctx context.Context, orders []*catalog.Order) error {
	if len(orders) == 0 {
		return nil
	}
	models := make([]MarketplaceOrderModel, 0, len(orders))
	for _, o := range orders {
		model, err := r.entityToModel(o)
		if err != nil {
			return err
		}
		models = append(models, *model)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account"}, {Name: "remote_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "customer_name", "total_amount", "currency",
				"payment_mode", "delivery_mode", "lines_json",
				"remote_date", "remote_modified", "synced_at", "updated_at",
			}),
		}).CreateInBatches(models, upsertBatchSize)
		if result.Error != nil {
			return fmt.Errorf("failed to upsert orders: %w", result.Error)
		}
		return nil
	})
}

// MarkAcknowledged stamps the acknowledgement time on one order
func (r *GormOrderRepository) MarkAcknowledged(ctx context.Context, account shared.Account, remoteID int64, at time.Time) error {
	at, err := shared.EnsureNaiveUTC(at)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&MarketplaceOrderModel{}).
		Where("account = ? AND remote_id = ?", string(account), remoteID).
		Updates(map[string]interface{}{"acknowledged_at": at, "updated_at": at})
	if result.Error != nil {
		return fmt.Errorf("failed to mark order acknowledged: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: order %s/%d", shared.ErrNotFound, account, remoteID)
	}
	return nil
}

// List returns orders for an account, newest remote date first
func (r *GormOrderRepository) List(ctx context.Context, account shared.Account, filter catalog.OrderFilter) ([]*catalog.Order, error) {
	q := r.db.WithContext(ctx).Where("account = ?", string(account))
	if filter.Status != nil {
		q = q.Where("status = ?", int(*filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var models []MarketplaceOrderModel
	if err := q.Order("remote_date DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	orders := make([]*catalog.Order, 0, len(models))
	for i := range models {
		entity, err := r.modelToEntity(&models[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert order %d: %w", models[i].RemoteID, err)
		}
		orders = append(orders, entity)
	}
	return orders, nil
}

// modelToEntity converts database model to domain entity
func (r *GormOrderRepository) modelToEntity(model *MarketplaceOrderModel) (*catalog.Order, error) {
	o := &catalog.Order{
		ID:             model.ID,
		Account:        shared.Account(model.Account),
		RemoteID:       model.RemoteID,
		Status:         catalog.OrderStatus(model.Status),
		CustomerName:   model.CustomerName,
		TotalAmount:    model.TotalAmount,
		Currency:       model.Currency,
		PaymentMode:    model.PaymentMode,
		DeliveryMode:   model.DeliveryMode,
		AcknowledgedAt: utcPtr(model.AcknowledgedAt),
		RemoteDate:     model.RemoteDate.UTC(),
		RemoteModified: model.RemoteModified.UTC(),
		SyncedAt:       model.SyncedAt.UTC(),
		CreatedAt:      model.CreatedAt.UTC(),
		UpdatedAt:      model.UpdatedAt.UTC(),
	}
	if model.LinesJSON != "" {
		if err := json.Unmarshal([]byte(model.LinesJSON), &o.Lines); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order lines: %w", err)
		}
	}
	return o, nil
}

// entityToModel converts domain entity to database model
func (r *GormOrderRepository) entityToModel(o *catalog.Order) (*MarketplaceOrderModel, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	for _, ts := range []time.Time{o.RemoteDate, o.RemoteModified, o.SyncedAt, o.CreatedAt, o.UpdatedAt} {
		if _, err := shared.EnsureNaiveUTC(ts); err != nil {
			return nil, fmt.Errorf("order %d: %w", o.RemoteID, err)
		}
	}
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order lines: %w", err)
	}
	return &MarketplaceOrderModel{
		ID:             o.ID,
		Account:        string(o.Account),
		RemoteID:       o.RemoteID,
		Status:         int(o.Status),
		CustomerName:   o.CustomerName,
		TotalAmount:    o.TotalAmount,
		Currency:       o.Currency,
		PaymentMode:    o.PaymentMode,
		DeliveryMode:   o.DeliveryMode,
		LinesJSON:      string(lines),
		AcknowledgedAt: o.AcknowledgedAt,
		RemoteDate:     o.RemoteDate,
		RemoteModified: o.RemoteModified,
		SyncedAt:       o.SyncedAt,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}, nil
}

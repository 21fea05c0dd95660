package persistence

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/modula-erp/emag-sync-go/internal/domain/ordering"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// GormPurchaseOrderRepository implements ordering.PurchaseOrderRepository
// using GORM
type GormPurchaseOrderRepository struct {
	db *gorm.DB
}

// NewGormPurchaseOrderRepository creates a new GORM purchase order
// repository
func NewGormPurchaseOrderRepository(db *gorm.DB) *GormPurchaseOrderRepository {
	return &GormPurchaseOrderRepository{db: db}
}

// CreateDraft persists a draft inside one transaction: the idempotency
// key is re-checked, the daily sequential order number assigned, and
// the lines inserted with the header. A duplicate submission returns
// the stored order with created=false.
func (r *GormPurchaseOrderRepository) CreateDraft(ctx context.Context, po *ordering.PurchaseOrder) (*ordering.PurchaseOrder, bool, error) {
	var (
		stored  *ordering.PurchaseOrder
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if po.IdempotencyKey != "" {
			var existing PurchaseOrderModel
			err := tx.Preload("Lines").
				Where("idempotency_key = ?", po.IdempotencyKey).
				First(&existing).Error
			if err == nil {
				stored = r.modelToEntity(&existing)
				created = false
				return nil
			}
			if err != gorm.ErrRecordNotFound {
				return fmt.Errorf("failed to check idempotency key: %w", err)
			}
		}

		seq, err := r.nextDailySequence(tx, po)
		if err != nil {
			return err
		}
		po.OrderNumber = ordering.FormatOrderNumber(po.OrderDate, seq)

		model := r.entityToModel(po)
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to create purchase order: %w", err)
		}
		stored = r.modelToEntity(model)
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// nextDailySequence finds the highest sequence already issued for the
// order's day and returns the next one.
func (r *GormPurchaseOrderRepository) nextDailySequence(tx *gorm.DB, po *ordering.PurchaseOrder) (int, error) {
	prefix := fmt.Sprintf("PO-%s-", po.OrderDate.Format("20060102"))
	var last PurchaseOrderModel
	err := tx.Where("order_number LIKE ?", prefix+"%").
		Order("order_number DESC").
		First(&last).Error
	if err == gorm.ErrRecordNotFound {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find last order number: %w", err)
	}
	seq, convErr := strconv.Atoi(strings.TrimPrefix(last.OrderNumber, prefix))
	if convErr != nil {
		return 0, fmt.Errorf("malformed order number %q: %w", last.OrderNumber, convErr)
	}
	return seq + 1, nil
}

// FindByID retrieves one order with its lines
func (r *GormPurchaseOrderRepository) FindByID(ctx context.Context, id int64) (*ordering.PurchaseOrder, error) {
	var model PurchaseOrderModel
	result := r.db.WithContext(ctx).Preload("Lines").First(&model, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find purchase order: %w", result.Error)
	}
	return r.modelToEntity(&model), nil
}

// FindByNumber retrieves one order by its public number
func (r *GormPurchaseOrderRepository) FindByNumber(ctx context.Context, number string) (*ordering.PurchaseOrder, error) {
	var model PurchaseOrderModel
	result := r.db.WithContext(ctx).Preload("Lines").
		Where("order_number = ?", number).
		First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: purchase order %s", shared.ErrNotFound, number)
		}
		return nil, fmt.Errorf("failed to find purchase order: %w", result.Error)
	}
	return r.modelToEntity(&model), nil
}

// Save persists status and receipt changes on the header and lines
func (r *GormPurchaseOrderRepository) Save(ctx context.Context, po *ordering.PurchaseOrder) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&PurchaseOrderModel{}).
			Where("id = ?", po.ID).
			Updates(map[string]interface{}{
				"status":      string(po.Status),
				"total_value": po.TotalValue,
				"expected_at": po.ExpectedAt,
				"updated_at":  po.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to save purchase order %d: %w", po.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, po.ID)
		}
		for i := range po.Lines {
			line := &po.Lines[i]
			err := tx.Model(&PurchaseOrderLineModel{}).
				Where("id = ? AND purchase_order_id = ?", line.ID, po.ID).
				Update("received_qty", line.ReceivedQty).Error
			if err != nil {
				return fmt.Errorf("failed to save line %d: %w", line.ID, err)
			}
		}
		return nil
	})
}

// AppendHistory inserts one lifecycle audit row
func (r *GormPurchaseOrderRepository) AppendHistory(ctx context.Context, entry *ordering.HistoryEntry) error {
	model := &PurchaseOrderHistoryModel{
		PurchaseOrderID: entry.PurchaseOrderID,
		Action:          string(entry.Action),
		Details:         entry.Details,
		Actor:           entry.Actor,
		CreatedAt:       entry.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to append purchase order history: %w", err)
	}
	entry.ID = model.ID
	return nil
}

// History lists the audit rows of one order in insertion order
func (r *GormPurchaseOrderRepository) History(ctx context.Context, purchaseOrderID int64) ([]*ordering.HistoryEntry, error) {
	var models []PurchaseOrderHistoryModel
	result := r.db.WithContext(ctx).
		Where("purchase_order_id = ?", purchaseOrderID).
		Order("id").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list purchase order history: %w", result.Error)
	}
	out := make([]*ordering.HistoryEntry, 0, len(models))
	for _, m := range models {
		out = append(out, &ordering.HistoryEntry{
			ID:              m.ID,
			PurchaseOrderID: m.PurchaseOrderID,
			Action:          ordering.HistoryAction(m.Action),
			Details:         m.Details,
			Actor:           m.Actor,
			CreatedAt:       m.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// PendingInbound sums not-yet-received quantities per product over
// orders in the pending statuses
func (r *GormPurchaseOrderRepository) PendingInbound(ctx context.Context, productIDs []int64) (map[int64]int, error) {
	if len(productIDs) == 0 {
		return map[int64]int{}, nil
	}
	statuses := make([]string, 0, len(ordering.PendingStatuses))
	for _, s := range ordering.PendingStatuses {
		statuses = append(statuses, string(s))
	}
	var rows []struct {
		ProductID int64
		Pending   int
	}
	err := r.db.WithContext(ctx).
		Table("purchase_order_lines").
		Select("purchase_order_lines.product_id AS product_id, SUM(purchase_order_lines.ordered_qty - purchase_order_lines.received_qty) AS pending").
		Joins("JOIN purchase_orders ON purchase_orders.id = purchase_order_lines.purchase_order_id").
		Where("purchase_orders.status IN ? AND purchase_order_lines.product_id IN ?", statuses, productIDs).
		Group("purchase_order_lines.product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum pending inbound: %w", err)
	}
	pending := make(map[int64]int, len(rows))
	for _, row := range rows {
		pending[row.ProductID] = row.Pending
	}
	return pending, nil
}

// ListByStatus returns orders in any of the given statuses, newest first
func (r *GormPurchaseOrderRepository) ListByStatus(ctx context.Context, statuses ...ordering.POStatus) ([]*ordering.PurchaseOrder, error) {
	q := r.db.WithContext(ctx).Preload("Lines")
	if len(statuses) > 0 {
		vals := make([]string, 0, len(statuses))
		for _, s := range statuses {
			vals = append(vals, string(s))
		}
		q = q.Where("status IN ?", vals)
	}
	var models []PurchaseOrderModel
	if err := q.Order("id DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list purchase orders: %w", err)
	}
	out := make([]*ordering.PurchaseOrder, 0, len(models))
	for i := range models {
		out = append(out, r.modelToEntity(&models[i]))
	}
	return out, nil
}

// modelToEntity converts database model to domain entity
func (r *GormPurchaseOrderRepository) modelToEntity(model *PurchaseOrderModel) *ordering.PurchaseOrder {
	po := &ordering.PurchaseOrder{
		ID:           model.ID,
		OrderNumber:  model.OrderNumber,
		SupplierID:   model.SupplierID,
		Status:       ordering.POStatus(model.Status),
		Currency:     model.Currency,
		ExchangeRate: model.ExchangeRate,
		TotalValue:   model.TotalValue,
		OrderDate:    model.OrderDate.UTC(),
		ExpectedAt:   utcPtr(model.ExpectedAt),
		CreatedBy:    model.CreatedBy,
		CreatedAt:    model.CreatedAt.UTC(),
		UpdatedAt:    model.UpdatedAt.UTC(),
	}
	if model.IdempotencyKey != nil {
		po.IdempotencyKey = *model.IdempotencyKey
	}
	po.Lines = make([]ordering.Line, 0, len(model.Lines))
	for _, lm := range model.Lines {
		po.Lines = append(po.Lines, ordering.Line{
			ID:              lm.ID,
			PurchaseOrderID: lm.PurchaseOrderID,
			ProductID:       lm.ProductID,
			OrderedQty:      lm.OrderedQty,
			ReceivedQty:     lm.ReceivedQty,
			UnitCost:        lm.UnitCost,
		})
	}
	return po
}

// entityToModel converts domain entity to database model
func (r *GormPurchaseOrderRepository) entityToModel(po *ordering.PurchaseOrder) *PurchaseOrderModel {
	model := &PurchaseOrderModel{
		ID:           po.ID,
		OrderNumber:  po.OrderNumber,
		SupplierID:   po.SupplierID,
		Status:       string(po.Status),
		Currency:     po.Currency,
		ExchangeRate: po.ExchangeRate,
		TotalValue:   po.TotalValue,
		OrderDate:    po.OrderDate,
		ExpectedAt:   po.ExpectedAt,
		CreatedBy:    po.CreatedBy,
		CreatedAt:    po.CreatedAt,
		UpdatedAt:    po.UpdatedAt,
	}
	if po.IdempotencyKey != "" {
		key := po.IdempotencyKey
		model.IdempotencyKey = &key
	}
	model.Lines = make([]PurchaseOrderLineModel, 0, len(po.Lines))
	for _, l := range po.Lines {
		model.Lines = append(model.Lines, PurchaseOrderLineModel{
			ID:              l.ID,
			PurchaseOrderID: l.PurchaseOrderID,
			ProductID:       l.ProductID,
			OrderedQty:      l.OrderedQty,
			ReceivedQty:     l.ReceivedQty,
			UnitCost:        l.UnitCost,
		})
	}
	return model
}

package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
)

// GormSyncLogRepository implements syncrun.LogRepository using GORM
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GORM sync log repository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Create inserts the queued row and copies back the generated ID
func (r *GormSyncLogRepository) Create(ctx context.Context, log *syncrun.Log) error {
	model := r.entityToModel(log)
	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to create sync log: %w", result.Error)
	}
	log.ID = model.ID
	return nil
}

// Update persists the engine-owned fields of a live row. The
// cooperative cancel flag is deliberately not written here: it belongs
// to RequestCancel, and a full-row save from the engine's stale copy
// must not clear it.
func (r *GormSyncLogRepository) Update(ctx context.Context, log *syncrun.Log) error {
	updates := map[string]interface{}{
		"status":          string(log.Status),
		"error_message":   log.ErrorMessage,
		"note":            log.Note,
		"total_items":     log.TotalItems,
		"processed_items": log.ProcessedItems,
		"created_count":   log.CreatedCount,
		"updated_count":   log.UpdatedCount,
		"skipped_count":   log.SkippedCount,
		"failed_count":    log.FailedCount,
		"started_at":      log.StartedAt,
		"finished_at":     log.FinishedAt,
		"heartbeat_at":    log.HeartbeatAt,
		"updated_at":      log.UpdatedAt,
	}
	result := r.db.WithContext(ctx).Model(&SyncLogModel{}).
		Where("id = ?", log.ID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update sync log %d: %w", log.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: sync log %d", shared.ErrNotFound, log.ID)
	}
	return nil
}

// FindByID retrieves one sync log row
func (r *GormSyncLogRepository) FindByID(ctx context.Context, id int64) (*syncrun.Log, error) {
	var model SyncLogModel
	result := r.db.WithContext(ctx).First(&model, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: sync log %d", shared.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find sync log: %w", result.Error)
	}
	return r.modelToEntity(&model), nil
}

// FindByRunID retrieves one sync log row by its public run id
func (r *GormSyncLogRepository) FindByRunID(ctx context.Context, runID string) (*syncrun.Log, error) {
	var model SyncLogModel
	result := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: sync run %s", shared.ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to find sync log: %w", result.Error)
	}
	return r.modelToEntity(&model), nil
}

// Latest returns the newest row for the scope, terminal or not
func (r *GormSyncLogRepository) Latest(ctx context.Context, account shared.Account, resource syncrun.Resource) (*syncrun.Log, error) {
	var model SyncLogModel
	result := r.db.WithContext(ctx).
		Where("account = ? AND resource = ?", string(account), string(resource)).
		Order("id DESC").
		First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: no sync log for %s/%s", shared.ErrNotFound, account, resource)
		}
		return nil, fmt.Errorf("failed to find latest sync log: %w", result.Error)
	}
	return r.modelToEntity(&model), nil
}

// LatestSuccess returns the newest succeeded row, anchoring the
// incremental watermark
func (r *GormSyncLogRepository) LatestSuccess(ctx context.Context, account shared.Account, resource syncrun.Resource) (*syncrun.Log, error) {
	var model SyncLogModel
	result := r.db.WithContext(ctx).
		Where("account = ? AND resource = ? AND status = ?",
			string(account), string(resource), string(syncrun.StatusSucceeded)).
		Order("started_at DESC").
		First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: no successful sync for %s/%s", shared.ErrNotFound, account, resource)
		}
		return nil, fmt.Errorf("failed to find last successful sync: %w", result.Error)
	}
	return r.modelToEntity(&model), nil
}

// History lists rows newest first, narrowed by the filter
func (r *GormSyncLogRepository) History(ctx context.Context, filter syncrun.HistoryFilter) ([]*syncrun.Log, error) {
	q := r.db.WithContext(ctx).Model(&SyncLogModel{})
	if filter.Account != "" {
		q = q.Where("account = ?", string(filter.Account))
	}
	if filter.Resource != "" {
		q = q.Where("resource = ?", string(filter.Resource))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var models []SyncLogModel
	if err := q.Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list sync history: %w", err)
	}
	logs := make([]*syncrun.Log, 0, len(models))
	for i := range models {
		logs = append(logs, r.modelToEntity(&models[i]))
	}
	return logs, nil
}

// RequestCancel sets the cooperative cancel flag on a live row
func (r *GormSyncLogRepository) RequestCancel(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Model(&SyncLogModel{}).
		Where("id = ? AND status IN ?", id,
			[]string{string(syncrun.StatusQueued), string(syncrun.StatusRunning)}).
		Updates(map[string]interface{}{
			"cancel_requested": true,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to request cancel on sync log %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: no live sync log %d", shared.ErrNotFound, id)
	}
	return nil
}

// CancelRequested reads the cooperative cancel flag
func (r *GormSyncLogRepository) CancelRequested(ctx context.Context, id int64) (bool, error) {
	var model SyncLogModel
	result := r.db.WithContext(ctx).Select("cancel_requested").First(&model, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return false, fmt.Errorf("%w: sync log %d", shared.ErrNotFound, id)
		}
		return false, fmt.Errorf("failed to read cancel flag: %w", result.Error)
	}
	return model.CancelRequested, nil
}

// MarkOrphans fails running rows whose heartbeat predates the cutoff.
// One UPDATE so concurrent sweepers can't double-fail a row.
func (r *GormSyncLogRepository) MarkOrphans(ctx context.Context, cutoff time.Time, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&SyncLogModel{}).
		Where("(status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?)"+
			" OR (status = ? AND created_at < ?)",
			string(syncrun.StatusRunning), cutoff,
			string(syncrun.StatusQueued), cutoff).
		Updates(map[string]interface{}{
			"status":        string(syncrun.StatusFailed),
			"error_message": "orphaned: no heartbeat from owning process",
			"finished_at":   now,
			"updated_at":    now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark orphaned sync logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// AppendItems inserts audit rows for one run
func (r *GormSyncLogRepository) AppendItems(ctx context.Context, logID int64, items []syncrun.Item) error {
	if len(items) == 0 {
		return nil
	}
	models := make([]SyncLogItemModel, 0, len(items))
	for _, it := range items {
		createdAt := it.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		models = append(models, SyncLogItemModel{
			SyncLogID: logID,
			SKU:       it.SKU,
			Action:    string(it.Action),
			Message:   it.Message,
			CreatedAt: createdAt,
		})
	}
	result := r.db.WithContext(ctx).CreateInBatches(models, upsertBatchSize)
	if result.Error != nil {
		return fmt.Errorf("failed to append sync log items: %w", result.Error)
	}
	return nil
}

// Items lists the audit rows of one run in insertion order
func (r *GormSyncLogRepository) Items(ctx context.Context, logID int64) ([]syncrun.Item, error) {
	var models []SyncLogItemModel
	result := r.db.WithContext(ctx).
		Where("sync_log_id = ?", logID).
		Order("id").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list sync log items: %w", result.Error)
	}
	items := make([]syncrun.Item, 0, len(models))
	for _, m := range models {
		items = append(items, syncrun.Item{
			ID:        m.ID,
			SyncLogID: m.SyncLogID,
			SKU:       m.SKU,
			Action:    syncrun.ItemAction(m.Action),
			Message:   m.Message,
			CreatedAt: m.CreatedAt.UTC(),
		})
	}
	return items, nil
}

// modelToEntity converts database model to domain entity
func (r *GormSyncLogRepository) modelToEntity(model *SyncLogModel) *syncrun.Log {
	return &syncrun.Log{
		ID:              model.ID,
		RunID:           model.RunID,
		Account:         shared.Account(model.Account),
		Resource:        syncrun.Resource(model.Resource),
		Mode:            syncrun.Mode(model.Mode),
		Strategy:        syncrun.ConflictStrategy(model.Strategy),
		Actor:           model.Actor,
		Status:          syncrun.Status(model.Status),
		ErrorMessage:    model.ErrorMessage,
		Note:            model.Note,
		TotalItems:      model.TotalItems,
		ProcessedItems:  model.ProcessedItems,
		CreatedCount:    model.CreatedCount,
		UpdatedCount:    model.UpdatedCount,
		SkippedCount:    model.SkippedCount,
		FailedCount:     model.FailedCount,
		CancelRequested: model.CancelRequested,
		StartedAt:       utcPtr(model.StartedAt),
		FinishedAt:      utcPtr(model.FinishedAt),
		HeartbeatAt:     utcPtr(model.HeartbeatAt),
		CreatedAt:       model.CreatedAt.UTC(),
		UpdatedAt:       model.UpdatedAt.UTC(),
	}
}

// entityToModel converts domain entity to database model
func (r *GormSyncLogRepository) entityToModel(log *syncrun.Log) *SyncLogModel {
	return &SyncLogModel{
		ID:              log.ID,
		RunID:           log.RunID,
		Account:         string(log.Account),
		Resource:        string(log.Resource),
		Mode:            string(log.Mode),
		Strategy:        string(log.Strategy),
		Actor:           log.Actor,
		Status:          string(log.Status),
		ErrorMessage:    log.ErrorMessage,
		Note:            log.Note,
		TotalItems:      log.TotalItems,
		ProcessedItems:  log.ProcessedItems,
		CreatedCount:    log.CreatedCount,
		UpdatedCount:    log.UpdatedCount,
		SkippedCount:    log.SkippedCount,
		FailedCount:     log.FailedCount,
		CancelRequested: log.CancelRequested,
		StartedAt:       log.StartedAt,
		FinishedAt:      log.FinishedAt,
		HeartbeatAt:     log.HeartbeatAt,
		CreatedAt:       log.CreatedAt,
		UpdatedAt:       log.UpdatedAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

package syncengine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/modula-erp/emag-sync-go/internal/adapters/api"
	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
)

// pullProducts runs the paged pull shared by the products and offers
// resources. Both read the same remote endpoint; offers runs only
// refresh the offer layer of rows that already exist locally.
func (e *Engine) pullProducts(ctx context.Context, log *syncrun.Log, req syncrun.Request, tracker *syncrun.Tracker, logger *zap.Logger) error {
	runStart := *log.StartedAt
	refreshOnly := log.Resource == syncrun.ResourceOffers

	modifiedSince, note, err := e.watermark(ctx, log)
	if err != nil {
		return err
	}
	if note != "" {
		log.Note = note
		logger.Info("incremental fallback", zap.String("note", note))
	}

	filters := syncrun.Filters{}
	if log.Mode == syncrun.ModeSelective {
		filters = req.Filters
	}

	sawAll, err := e.runPages(ctx, log, req, tracker, logger,
		func(ctx context.Context, page, perPage int) (pageResult, error) {
			remote, err := e.client.ReadProductOffers(ctx, log.Account, page, perPage, modifiedSince)
			if err != nil {
				return pageResult{}, err
			}
			counts, err := e.applyProductPage(ctx, log, remote, refreshOnly, filters, logger)
			if err != nil {
				return pageResult{}, err
			}
			return pageResult{
				pulled: len(remote.Products) + len(remote.Failures),
				total:  remote.Pagination.Total,
				counts: counts,
			}, nil
		})
	if err != nil {
		return err
	}

	// Retiring rows missing remotely is only safe when the run saw the
	// complete catalog: a capped or filtered run leaves unseen rows
	// alone.
	if sawAll && log.Mode == syncrun.ModeFull {
		return e.retireStale(ctx, log, runStart, logger)
	}
	return nil
}

// retireStale handles rows the full pull did not see. Under the manual
// strategy they are queued for review; every other strategy deactivates
// them.
func (e *Engine) retireStale(ctx context.Context, log *syncrun.Log, runStart time.Time, logger *zap.Logger) error {
	if log.Strategy == syncrun.StrategyManual {
		n, err := e.products.FlagStaleForReview(ctx, log.Account, runStart)
		if err != nil {
			return fmt.Errorf("failed to flag stale rows for review: %w", err)
		}
		if n > 0 {
			logger.Info("queued rows missing remotely for review", zap.Int64("count", n))
		}
		return nil
	}
	n, err := e.products.DeactivateStale(ctx, log.Account, runStart)
	if err != nil {
		return fmt.Errorf("failed to deactivate stale rows: %w", err)
	}
	if n > 0 {
		logger.Info("deactivated rows missing remotely", zap.Int64("count", n))
	}
	return nil
}

// applyProductPage folds one pulled page into the local catalog and
// returns what it did per row. Per-row failures are counted and
// audited, never escalated to run failures.
func (e *Engine) applyProductPage(
	ctx context.Context,
	log *syncrun.Log,
	page *api.ProductPage,
	refreshOnly bool,
	filters syncrun.Filters,
	logger *zap.Logger,
) (pageOutcome, error) {
	var out pageOutcome
	now := e.clock.Now()

	skus := make([]string, 0, len(page.Products))
	for _, p := range page.Products {
		skus = append(skus, p.SKU)
	}
	existing, err := e.products.FindBySKUs(ctx, log.Account, skus)
	if err != nil {
		return out, fmt.Errorf("failed to load local rows: %w", err)
	}

	type pendingWrite struct {
		row      *catalog.Product
		decision decision
	}
	var (
		writes []pendingWrite
		touch  []string
		items  []syncrun.Item
	)
	record := func(sku string, action syncrun.ItemAction, message string) {
		items = append(items, syncrun.Item{
			SyncLogID: log.ID,
			SKU:       sku,
			Action:    action,
			Message:   message,
			CreatedAt: now,
		})
	}

	for _, remote := range page.Products {
		if !filters.Empty() && !matchesFilters(remote, filters) {
			out.skipped++
			record(remote.SKU, syncrun.ItemSkipped, "outside selective filters")
			continue
		}
		local := existing[remote.SKU]
		if refreshOnly && local == nil {
			out.skipped++
			record(remote.SKU, syncrun.ItemSkipped, "no local row to refresh; a products sync creates it")
			continue
		}

		var candidate *catalog.Product
		if refreshOnly {
			candidate = mergeRefresh(local, remote, now)
		} else {
			candidate = mergeFull(local, remote, now)
		}

		d := resolve(log.Strategy, local, candidate)
		switch d.action {
		case syncrun.ItemCreated, syncrun.ItemUpdated:
			writes = append(writes, pendingWrite{row: candidate, decision: d})
		case syncrun.ItemSkipped:
			out.skipped++
			touch = append(touch, remote.SKU)
			record(remote.SKU, syncrun.ItemSkipped, d.reason)
		case syncrun.ItemReview:
			if err := e.products.SetReviewRequired(ctx, log.Account, remote.SKU, true); err != nil {
				out.failed++
				record(remote.SKU, syncrun.ItemFailed, fmt.Sprintf("review flag: %v", err))
				continue
			}
			out.review++
			touch = append(touch, remote.SKU)
			record(remote.SKU, syncrun.ItemReview, d.reason)
		}
	}

	if len(writes) > 0 {
		rows := make([]*catalog.Product, 0, len(writes))
		for _, w := range writes {
			rows = append(rows, w.row)
		}
		failed := map[string]error{}
		if err := e.products.UpsertBatch(ctx, rows); err != nil {
			// One poisoned row fails the whole batch; retry row by row
			// so it only takes itself down.
			logger.Warn("batch upsert failed, isolating rows", zap.Error(err))
			for _, w := range writes {
				if rowErr := e.products.Upsert(ctx, w.row); rowErr != nil {
					failed[w.row.SKU] = rowErr
				}
			}
		}
		for _, w := range writes {
			if rowErr, bad := failed[w.row.SKU]; bad {
				out.failed++
				record(w.row.SKU, syncrun.ItemFailed, rowErr.Error())
				continue
			}
			switch w.decision.action {
			case syncrun.ItemCreated:
				out.created++
			default:
				out.updated++
			}
			record(w.row.SKU, w.decision.action, w.decision.reason)
		}
	}

	if err := e.products.TouchSynced(ctx, log.Account, touch, now); err != nil {
		return out, fmt.Errorf("failed to touch unchanged rows: %w", err)
	}

	for _, f := range page.Failures {
		out.failed++
		record(fmt.Sprintf("remote:%d", f.RemoteID), syncrun.ItemFailed, f.Err.Error())
	}

	if err := e.logs.AppendItems(ctx, log.ID, items); err != nil {
		return out, fmt.Errorf("failed to append audit items: %w", err)
	}
	return out, nil
}

// matchesFilters applies the selective-mode predicates to a pulled row.
func matchesFilters(p *catalog.Product, f syncrun.Filters) bool {
	if len(f.CategoryIDs) > 0 {
		if p.CategoryID == nil || !slices.Contains(f.CategoryIDs, *p.CategoryID) {
			return false
		}
	}
	if len(f.ValidationStatuses) > 0 && !slices.Contains(f.ValidationStatuses, int(p.ValidationStatus)) {
		return false
	}
	return true
}

// mergeFull lays the pulled row over the local one. Identity and the
// local-only enrichment (chinese name, review flag) survive; everything
// the marketplace owns is replaced.
func mergeFull(local, remote *catalog.Product, at time.Time) *catalog.Product {
	merged := *remote
	if local != nil {
		merged.ID = local.ID
		merged.ChineseName = local.ChineseName
		merged.ReviewRequired = local.ReviewRequired
		merged.CreatedAt = local.CreatedAt
	} else {
		merged.CreatedAt = at
	}
	merged.SyncedAt = at
	merged.UpdatedAt = at
	merged.ContentHash = merged.ComputeContentHash()
	return &merged
}

// mergeRefresh copies only the offer layer (price, stock, statuses)
// onto the local row; the documentation side stays as it is.
func mergeRefresh(local, remote *catalog.Product, at time.Time) *catalog.Product {
	merged := *local
	merged.RemoteID = remote.RemoteID
	merged.PartNumberKey = remote.PartNumberKey
	merged.SalePrice = remote.SalePrice
	merged.MinSalePrice = remote.MinSalePrice
	merged.MaxSalePrice = remote.MaxSalePrice
	merged.Currency = remote.Currency
	merged.Stock = remote.Stock
	merged.Status = remote.Status
	merged.ValidationStatus = remote.ValidationStatus
	merged.OfferValidationStatus = remote.OfferValidationStatus
	merged.Active = true
	merged.RemoteModifiedAt = remote.RemoteModifiedAt
	merged.SyncedAt = at
	merged.UpdatedAt = at
	merged.ContentHash = merged.ComputeContentHash()
	return &merged
}

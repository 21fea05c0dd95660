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

// pullOrders runs the paged order pull. Orders are remote-owned, so
// conflict strategies do not apply: a changed remote version always
// wins, and only the acknowledgement stamp lives locally.
func (e *Engine) pullOrders(ctx context.Context, log *syncrun.Log, req syncrun.Request, tracker *syncrun.Tracker, logger *zap.Logger) error {
	modifiedSince, _, err := e.watermark(ctx, log)
	if err != nil {
		return err
	}

	filter := api.OrderFilter{ModifiedAfter: modifiedSince}
	var statusSet []int
	if log.Mode == syncrun.ModeSelective {
		statusSet = req.Filters.ValidationStatuses
		if len(statusSet) == 1 {
			// A single status predicate can ride on the remote read.
			status := catalog.OrderStatus(statusSet[0])
			filter.Status = &status
			statusSet = nil
		}
	}

	_, err = e.runPages(ctx, log, req, tracker, logger,
		func(ctx context.Context, page, perPage int) (pageResult, error) {
			remote, err := e.client.ReadOrders(ctx, log.Account, page, perPage, filter)
			if err != nil {
				return pageResult{}, err
			}
			counts, err := e.applyOrderPage(ctx, log, remote, statusSet)
			if err != nil {
				return pageResult{}, err
			}
			return pageResult{
				pulled: len(remote.Orders) + len(remote.Failures),
				total:  remote.Pagination.Total,
				counts: counts,
			}, nil
		})
	return err
}

// applyOrderPage upserts one page of orders and acknowledges the new
// ones. An acknowledgement failure downgrades that order's outcome to
// failed so a later run retries it; it never aborts the run.
func (e *Engine) applyOrderPage(ctx context.Context, log *syncrun.Log, page *api.OrderPage, statusSet []int) (pageOutcome, error) {
	var out pageOutcome
	now := e.clock.Now()

	ids := make([]int64, 0, len(page.Orders))
	for _, o := range page.Orders {
		ids = append(ids, o.RemoteID)
	}
	existing, err := e.orders.FindByRemoteIDs(ctx, log.Account, ids)
	if err != nil {
		return out, fmt.Errorf("failed to load local orders: %w", err)
	}

	type seenOrder struct {
		row    *catalog.Order
		action syncrun.ItemAction
		reason string
		write  bool
	}
	var (
		seen  []seenOrder
		items []syncrun.Item
	)
	record := func(remoteID int64, action syncrun.ItemAction, message string) {
		items = append(items, syncrun.Item{
			SyncLogID: log.ID,
			SKU:       orderKey(remoteID),
			Action:    action,
			Message:   message,
			CreatedAt: now,
		})
	}

	for _, remote := range page.Orders {
		if len(statusSet) > 0 && !slices.Contains(statusSet, int(remote.Status)) {
			out.skipped++
			record(remote.RemoteID, syncrun.ItemSkipped, "outside selective filters")
			continue
		}
		local := existing[remote.RemoteID]
		switch {
		case local == nil:
			seen = append(seen, seenOrder{
				row:    mergeOrder(nil, remote, now),
				action: syncrun.ItemCreated,
				reason: "new from marketplace",
				write:  true,
			})
		case remote.RemoteModified.After(local.RemoteModified) || remote.Status != local.Status:
			seen = append(seen, seenOrder{
				row:    mergeOrder(local, remote, now),
				action: syncrun.ItemUpdated,
				reason: "remote version newer",
				write:  true,
			})
		default:
			// Unchanged rows still go through the acknowledgement pass:
			// a previously failed ack gets retried here.
			seen = append(seen, seenOrder{
				row:    local,
				action: syncrun.ItemSkipped,
				reason: "unchanged",
			})
		}
	}

	writeFailed := map[int64]error{}
	var rows []*catalog.Order
	for _, s := range seen {
		if s.write {
			rows = append(rows, s.row)
		}
	}
	if len(rows) > 0 {
		if err := e.orders.UpsertBatch(ctx, rows); err != nil {
			for _, row := range rows {
				if rowErr := e.orders.UpsertBatch(ctx, []*catalog.Order{row}); rowErr != nil {
					writeFailed[row.RemoteID] = rowErr
				}
			}
		}
	}

	ackFailed := map[int64]error{}
	acked := map[int64]bool{}
	for _, s := range seen {
		if _, bad := writeFailed[s.row.RemoteID]; bad {
			continue
		}
		if !s.row.Status.NeedsAcknowledgement() || s.row.Acknowledged() {
			continue
		}
		if err := e.client.AcknowledgeOrder(ctx, log.Account, s.row.RemoteID); err != nil {
			ackFailed[s.row.RemoteID] = err
			continue
		}
		if err := e.orders.MarkAcknowledged(ctx, log.Account, s.row.RemoteID, e.clock.Now()); err != nil {
			ackFailed[s.row.RemoteID] = err
			continue
		}
		acked[s.row.RemoteID] = true
	}

	for _, s := range seen {
		if rowErr, bad := writeFailed[s.row.RemoteID]; bad {
			out.failed++
			record(s.row.RemoteID, syncrun.ItemFailed, rowErr.Error())
			continue
		}
		if ackErr, bad := ackFailed[s.row.RemoteID]; bad {
			out.failed++
			record(s.row.RemoteID, syncrun.ItemFailed, fmt.Sprintf("acknowledge: %v", ackErr))
			continue
		}
		action, reason := s.action, s.reason
		if action == syncrun.ItemSkipped && acked[s.row.RemoteID] {
			action, reason = syncrun.ItemUpdated, "acknowledged"
		}
		switch action {
		case syncrun.ItemCreated:
			out.created++
		case syncrun.ItemUpdated:
			out.updated++
		default:
			out.skipped++
		}
		record(s.row.RemoteID, action, reason)
	}

	for _, f := range page.Failures {
		out.failed++
		record(f.RemoteID, syncrun.ItemFailed, f.Err.Error())
	}

	if err := e.logs.AppendItems(ctx, log.ID, items); err != nil {
		return out, fmt.Errorf("failed to append audit items: %w", err)
	}
	return out, nil
}

// mergeOrder lays the pulled order over the local one, keeping the
// local acknowledgement stamp the remote knows nothing about.
func mergeOrder(local, remote *catalog.Order, at time.Time) *catalog.Order {
	merged := *remote
	if local != nil {
		merged.ID = local.ID
		merged.AcknowledgedAt = local.AcknowledgedAt
		merged.CreatedAt = local.CreatedAt
	} else {
		merged.CreatedAt = at
	}
	merged.SyncedAt = at
	merged.UpdatedAt = at
	return &merged
}

// orderKey labels order audit items; orders have no SKU.
func orderKey(remoteID int64) string {
	return fmt.Sprintf("order:%d", remoteID)
}

package syncengine

import (
	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
)

// decision is one conflict resolution outcome: what happens to the row
// and the reason recorded on its audit item.
type decision struct {
	action syncrun.ItemAction
	reason string
}

// resolve applies the run's conflict strategy to one pulled row. The
// candidate is the pulled row already merged over the local one, so a
// content-hash match means applying it would change nothing and the
// row is skipped regardless of strategy. A row with no local
// counterpart cannot conflict and is always created.
func resolve(strategy syncrun.ConflictStrategy, local, candidate *catalog.Product) decision {
	if local == nil {
		return decision{action: syncrun.ItemCreated, reason: "new from marketplace"}
	}
	if local.ContentHash == candidate.ContentHash {
		return decision{action: syncrun.ItemSkipped, reason: "content unchanged"}
	}
	switch strategy {
	case syncrun.StrategyLocalPriority:
		return decision{action: syncrun.ItemSkipped, reason: "local version kept"}
	case syncrun.StrategyNewestWins:
		if candidate.RemoteModifiedAt.After(local.UpdatedAt) {
			return decision{action: syncrun.ItemUpdated, reason: "remote version newer"}
		}
		return decision{action: syncrun.ItemSkipped, reason: "local version newer"}
	case syncrun.StrategyManual:
		return decision{action: syncrun.ItemReview, reason: "differs from local version"}
	default:
		return decision{action: syncrun.ItemUpdated, reason: "marketplace version applied"}
	}
}

package matcher

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/modula-erp/emag-sync-go/internal/domain/matching"
)

// FeedRow is one listing from a supplier's feed, as scraped or
// exported. Names are usually Chinese with embedded ASCII model
// numbers; identifiers are best-effort strings.
type FeedRow struct {
	Name          string
	EAN           string
	PartNumberKey string
	ImageURL      string
	URL           string
	Price         decimal.Decimal
	Currency      string
}

// IngestReport summarises one feed import.
type IngestReport struct {
	Ingested int
	Skipped  int
}

// Ingest bulk-inserts feed rows for a supplier, normalizing names on
// the way in. Rows with neither a usable name nor an EAN carry no
// matching signal and are skipped.
func (e *Engine) Ingest(ctx context.Context, supplierID int64, rows []FeedRow) (*IngestReport, error) {
	if _, err := e.suppliers.FindByID(ctx, supplierID); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	batch := make([]*matching.SupplierProduct, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		sp := matching.NewSupplierProduct(supplierID, row.Name, now)
		sp.EAN = strings.TrimSpace(row.EAN)
		if sp.NormalizedName == "" && sp.EAN == "" {
			skipped++
			continue
		}
		sp.PartNumberKey = strings.TrimSpace(row.PartNumberKey)
		sp.ImageURL = row.ImageURL
		sp.URL = row.URL
		sp.Price = row.Price
		sp.Currency = row.Currency
		batch = append(batch, sp)
	}
	if len(batch) > 0 {
		if err := e.supplierProducts.CreateBatch(ctx, batch); err != nil {
			return nil, err
		}
	}

	e.logger.Info("supplier feed ingested",
		zap.Int64("supplier_id", supplierID),
		zap.Int("rows", len(batch)),
		zap.Int("skipped", skipped))
	return &IngestReport{Ingested: len(batch), Skipped: skipped}, nil
}

package syncengine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/modula-erp/emag-sync-go/internal/adapters/api"
	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// PushReport sums one stock push-back.
type PushReport struct {
	Pushed      int
	Failed      int
	Unpublished int
}

// PushStock PATCHes the local stock count of every saleable offer back
// to the marketplace. Rows are walked in slices of the configured bulk
// size with a cancellation check between slices; a single failed PATCH
// never stops the walk.
func (e *Engine) PushStock(ctx context.Context, account shared.Account) (*PushReport, error) {
	products, err := e.products.Saleable(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to load saleable products: %w", err)
	}

	logger := e.logger.With(zap.String("account", string(account)))
	warehouseID := e.cfg.warehouseFor(account)
	report := &PushReport{}

	batch := e.cfg.PushBulkSize
	for start := 0; start < len(products); start += batch {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%w: %v", shared.ErrCancelled, err)
		}
		end := start + batch
		if end > len(products) {
			end = len(products)
		}
		for _, p := range products[start:end] {
			if p.RemoteID == nil {
				report.Unpublished++
				continue
			}
			if err := e.client.UpdateStock(ctx, account, *p.RemoteID, warehouseID, p.Stock); err != nil {
				report.Failed++
				logger.Warn("stock push failed",
					zap.String("sku", p.SKU),
					zap.Error(err))
				continue
			}
			report.Pushed++
		}
	}

	logger.Info("stock push finished",
		zap.Int("pushed", report.Pushed),
		zap.Int("failed", report.Failed),
		zap.Int("unpublished", report.Unpublished))
	return report, nil
}

// PublishOptions carries operator choices for one offer publish.
type PublishOptions struct {
	// Attach target, mutually exclusive. Empty reuses what the row
	// already carries.
	PartNumberKey string
	EAN           string

	// VAT registry id; zero picks the account's first registry entry.
	VatID int64

	// Handling time in days; negative keeps the remote value.
	HandlingDays int
}

// PublishOffer sends one product's offer to the marketplace, either
// attaching it to an existing listing (by part-number-key or EAN) or
// updating the offer it already carries. On first publish the local
// row id doubles as the seller-assigned offer id, and the row is
// updated so later stock pushes can address the offer.
func (e *Engine) PublishOffer(ctx context.Context, account shared.Account, sku string, opts PublishOptions) error {
	p, err := e.products.FindBySKU(ctx, account, sku)
	if err != nil {
		return err
	}

	send := *p
	switch {
	case opts.PartNumberKey != "" || opts.EAN != "":
		if err := catalog.OfferAttachment(opts.PartNumberKey, opts.EAN); err != nil {
			return err
		}
		if opts.PartNumberKey != "" {
			send.PartNumberKey = opts.PartNumberKey
			send.EANs = nil
		} else {
			ean, err := catalog.NormalizeEAN(opts.EAN)
			if err != nil {
				return err
			}
			send.PartNumberKey = ""
			send.EANs = []string{ean}
		}
	case p.PartNumberKey == "" && len(p.EANs) == 0:
		return shared.NewValidationError("offer", "product carries neither part_number_key nor ean codes")
	}

	firstPublish := send.RemoteID == nil
	if firstPublish {
		// The seller assigns the offer id on first publish; the local
		// row id is stable and unique, so it serves.
		id := p.ID
		send.RemoteID = &id
	}

	vatID, err := e.resolveVatID(ctx, account, opts.VatID)
	if err != nil {
		return err
	}
	handlingDays, err := e.resolveHandlingDays(ctx, account, opts.HandlingDays)
	if err != nil {
		return err
	}

	warehouseID := e.cfg.warehouseFor(account)
	save, err := api.NewOfferSave(&send, vatID, warehouseID, handlingDays)
	if err != nil {
		return err
	}
	if err := e.client.SaveProductOffers(ctx, account, []*api.OfferSave{save}); err != nil {
		return fmt.Errorf("failed to publish offer %s: %w", sku, err)
	}

	if firstPublish {
		send.UpdatedAt = e.clock.Now()
		send.ContentHash = send.ComputeContentHash()
		if err := e.products.Upsert(ctx, &send); err != nil {
			return fmt.Errorf("offer published but local row not updated: %w", err)
		}
	}

	e.logger.Info("offer published",
		zap.String("account", string(account)),
		zap.String("sku", sku),
		zap.Int64("offer_id", *send.RemoteID),
		zap.Bool("first_publish", firstPublish))
	return nil
}

// resolveVatID returns the explicit vat id, or the first entry of the
// account's VAT registry when none was given.
func (e *Engine) resolveVatID(ctx context.Context, account shared.Account, vatID int64) (int64, error) {
	if vatID > 0 {
		return vatID, nil
	}
	if e.refs == nil {
		return 0, shared.NewValidationError("vat_id", "required when no reference source is configured")
	}
	rates, err := e.refs.VatRates(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("failed to load vat registry: %w", err)
	}
	if len(rates) == 0 {
		return 0, shared.NewValidationError("vat_id", "remote vat registry is empty")
	}
	return rates[0].VatID, nil
}

// resolveHandlingDays validates an explicit handling time against the
// account's registry. The marketplace rejects values outside it, so
// catching that here saves a doomed write.
func (e *Engine) resolveHandlingDays(ctx context.Context, account shared.Account, days int) (int, error) {
	if days < 0 {
		return -1, nil
	}
	if e.refs == nil {
		return days, nil
	}
	registry, err := e.refs.HandlingTimes(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("failed to load handling-time registry: %w", err)
	}
	for _, h := range registry {
		if h.Value == days {
			return days, nil
		}
	}
	return 0, shared.NewValidationError("handling_time",
		fmt.Sprintf("%d days is not in the account's registry", days))
}

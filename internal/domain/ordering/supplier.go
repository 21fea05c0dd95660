package ordering

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the ledger currency drafts are valued against.
const BaseCurrency = "RON"

// Supplier is a purchasing source. Code carries provenance markers:
// suppliers imported from 1688 storefronts get a "1688_" prefix,
// spreadsheet imports get "sheet_"; both imply Chinese sourcing.
type Supplier struct {
	ID          int64
	Name        string
	Code        string
	CountryCode string
	Currency    string
	ContactInfo string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chinese reports whether the supplier sources from China, either by
// country code or by the code marker.
func (s *Supplier) Chinese() bool {
	return strings.EqualFold(s.CountryCode, "CN") ||
		strings.HasPrefix(s.Code, "1688_") ||
		strings.HasPrefix(s.Code, "sheet_")
}

// Pricing resolves the draft currency and the exchange rate to the
// base currency. An explicit supplier currency wins; otherwise Chinese
// suppliers default to CNY at the configured rate and everyone else to
// the base currency at 1.0.
func (s *Supplier) Pricing(cnyRate decimal.Decimal) (string, decimal.Decimal) {
	currency := s.Currency
	if currency == "" {
		if s.Chinese() {
			currency = "CNY"
		} else {
			currency = BaseCurrency
		}
	}
	if currency == "CNY" {
		return currency, cnyRate
	}
	return currency, decimal.NewFromInt(1)
}

// SheetEntry is a spreadsheet-sourced price for one (supplier,
// product) pair. Sheet prices take precedence over feed prices when a
// draft line picks its unit cost.
type SheetEntry struct {
	ID         int64
	SupplierID int64
	ProductID  int64
	Price      decimal.Decimal
	Currency   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UnitCost picks a draft line's unit cost: supplier sheet price, then
// supplier feed price, then the product's own base price.
func UnitCost(sheet, supplierFeed decimal.NullDecimal, productBase decimal.Decimal) decimal.Decimal {
	if sheet.Valid {
		return sheet.Decimal
	}
	if supplierFeed.Valid {
		return supplierFeed.Decimal
	}
	return productBase
}

package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// Image is one catalog image reference. Role follows the marketplace
// convention: "main" for the primary image, "secondary" otherwise.
type Image struct {
	URL  string `json:"url"`
	Role string `json:"role"`
}

// Characteristic is one marketplace characteristic value. Tag is only
// set for multi-valued families (e.g. size grids).
type Characteristic struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
}

// Product is the local catalog row. MAIN and FBE rows never merge:
// (Account, SKU) is the identity everywhere.
//
// RemoteID and PartNumberKey are weak references into the marketplace
// catalog; either may be absent on a row that was created locally and
// not yet published.
type Product struct {
	ID            int64
	Account       shared.Account
	SKU           string
	RemoteID      *int64
	PartNumberKey string

	Name        string
	Brand       string
	CategoryID  *int64
	ChineseName string

	SalePrice    decimal.Decimal
	MinSalePrice decimal.NullDecimal
	MaxSalePrice decimal.NullDecimal
	Currency     string

	Stock int

	Status                OfferStatus
	ValidationStatus      ValidationStatus
	OfferValidationStatus OfferValidationStatus
	Active                bool
	ReviewRequired        bool

	EANs            []string
	Images          []Image
	Characteristics []Characteristic

	ContentHash      string
	RemoteModifiedAt time.Time
	SyncedAt         time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate checks the row invariants before it may be persisted.
func (p *Product) Validate() error {
	if p.SKU == "" {
		return shared.NewValidationError("sku", "must not be empty")
	}
	if p.Account != shared.AccountMain && p.Account != shared.AccountFBE {
		return shared.NewValidationError("account", "must be main or fbe")
	}
	if p.Stock < 0 {
		return shared.NewValidationError("stock", "must not be negative")
	}
	if p.MinSalePrice.Valid && p.MaxSalePrice.Valid && !p.SalePrice.IsZero() {
		if p.SalePrice.LessThan(p.MinSalePrice.Decimal) || p.SalePrice.GreaterThan(p.MaxSalePrice.Decimal) {
			return shared.NewValidationError("sale_price", "outside [min_sale_price, max_sale_price]")
		}
	}
	seen := make(map[string]struct{}, len(p.EANs))
	for _, ean := range p.EANs {
		if _, dup := seen[ean]; dup {
			return shared.NewValidationError("ean_codes", "duplicate entry "+ean)
		}
		seen[ean] = struct{}{}
	}
	return nil
}

// Saleable combines the four gates the marketplace applies before an
// offer is visible to buyers.
func (p *Product) Saleable() bool {
	return p.Status == OfferStatusActive &&
		p.OfferValidationStatus.Saleable() &&
		p.ValidationStatus.Saleable() &&
		p.Stock > 0
}

// ComputeContentHash digests the identity and content fields that the
// marketplace controls. Two pulls of the same remote record hash
// identically, which is what lets a re-run skip the upsert; local-only
// state (chinese name, review flag, audit timestamps) deliberately
// stays out.
func (p *Product) ComputeContentHash() string {
	var b strings.Builder
	sep := func() { b.WriteByte(0x1f) }

	b.WriteString(string(p.Account))
	sep()
	b.WriteString(p.SKU)
	sep()
	if p.RemoteID != nil {
		b.WriteString(strconv.FormatInt(*p.RemoteID, 10))
	}
	sep()
	b.WriteString(p.PartNumberKey)
	sep()
	b.WriteString(p.Name)
	sep()
	b.WriteString(p.Brand)
	sep()
	if p.CategoryID != nil {
		b.WriteString(strconv.FormatInt(*p.CategoryID, 10))
	}
	sep()
	b.WriteString(p.SalePrice.String())
	sep()
	if p.MinSalePrice.Valid {
		b.WriteString(p.MinSalePrice.Decimal.String())
	}
	sep()
	if p.MaxSalePrice.Valid {
		b.WriteString(p.MaxSalePrice.Decimal.String())
	}
	sep()
	b.WriteString(p.Currency)
	sep()
	b.WriteString(strconv.Itoa(p.Stock))
	sep()
	b.WriteString(strconv.Itoa(int(p.Status)))
	sep()
	b.WriteString(strconv.Itoa(int(p.ValidationStatus)))
	sep()
	b.WriteString(strconv.Itoa(int(p.OfferValidationStatus)))
	sep()
	b.WriteString(strconv.FormatBool(p.Active))
	sep()

	eans := append([]string(nil), p.EANs...)
	sort.Strings(eans)
	b.WriteString(strings.Join(eans, ","))
	sep()
	for _, img := range p.Images {
		b.WriteString(img.URL)
		b.WriteByte('|')
		b.WriteString(img.Role)
		b.WriteByte(';')
	}
	sep()
	for _, c := range p.Characteristics {
		b.WriteString(strconv.FormatInt(c.ID, 10))
		b.WriteByte('|')
		b.WriteString(c.Value)
		b.WriteByte('|')
		b.WriteString(c.Tag)
		b.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// OfferAttachment validates the write-side rule for attaching an offer
// to a remote listing: exactly one of PNK or EAN identifies the
// target, never both and never neither.
func OfferAttachment(pnk, ean string) error {
	hasPNK := strings.TrimSpace(pnk) != ""
	hasEAN := strings.TrimSpace(ean) != ""
	switch {
	case hasPNK && hasEAN:
		return shared.NewValidationError("offer", "part_number_key and ean are mutually exclusive")
	case !hasPNK && !hasEAN:
		return shared.NewValidationError("offer", "one of part_number_key or ean is required")
	}
	if hasEAN {
		if _, err := NormalizeEAN(ean); err != nil {
			return err
		}
	}
	return nil
}

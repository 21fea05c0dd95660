package matching

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// State is the derived match state of a supplier product.
type State string

const (
	StateUnmatched State = "unmatched"
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
)

// DefaultMinSimilarity is the acceptance bar for name matches.
const DefaultMinSimilarity = 0.75

// SupplierProduct is one row of a supplier's feed. The link to a local
// product is a weak reference: either side may be deleted and the
// other only loses the link.
//
// The three companion fields move together: when LinkedProductID is
// nil, SimilarityScore and ManualConfirmed must be nil too; when it is
// set, ManualConfirmed is false (pending) or true (confirmed).
type SupplierProduct struct {
	ID         int64
	SupplierID int64

	RawName        string
	NormalizedName string
	EAN            string
	PartNumberKey  string
	ImageURL       string
	URL            string
	Price          decimal.Decimal
	Currency       string

	LinkedProductID *int64
	SimilarityScore *float64
	ManualConfirmed *bool
	ConfirmedBy     string
	ConfirmedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSupplierProduct normalizes the feed name on ingest.
func NewSupplierProduct(supplierID int64, rawName string, now time.Time) *SupplierProduct {
	return &SupplierProduct{
		SupplierID:     supplierID,
		RawName:        rawName,
		NormalizedName: Normalize(rawName),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// State derives the match state from the link fields.
func (sp *SupplierProduct) State() State {
	switch {
	case sp.LinkedProductID == nil:
		return StateUnmatched
	case sp.ManualConfirmed != nil && *sp.ManualConfirmed:
		return StateConfirmed
	default:
		return StatePending
	}
}

// Validate enforces the companion-field invariant.
func (sp *SupplierProduct) Validate() error {
	if sp.LinkedProductID == nil {
		if sp.SimilarityScore != nil || sp.ManualConfirmed != nil {
			return shared.NewValidationError("match", "unlinked row must not carry score or confirmation")
		}
		return nil
	}
	if sp.ManualConfirmed == nil {
		return shared.NewValidationError("match", "linked row must be pending or confirmed")
	}
	if sp.SimilarityScore != nil && (*sp.SimilarityScore < 0 || *sp.SimilarityScore > 1) {
		return shared.NewValidationError("similarity_score", "must be within [0,1]")
	}
	return nil
}

// LinkPending attaches an auto-match candidate. Only unmatched rows
// may be linked; re-match unlinks pending rows first and never touches
// confirmed ones.
func (sp *SupplierProduct) LinkPending(productID int64, score float64, now time.Time) error {
	if sp.State() != StateUnmatched {
		return fmt.Errorf("cannot link %s supplier product %d", sp.State(), sp.ID)
	}
	if score < 0 || score > 1 {
		return shared.NewValidationError("similarity_score", "must be within [0,1]")
	}
	pending := false
	sp.LinkedProductID = &productID
	sp.SimilarityScore = &score
	sp.ManualConfirmed = &pending
	sp.UpdatedAt = now
	return nil
}

// Confirm promotes a pending link to confirmed.
func (sp *SupplierProduct) Confirm(by string, now time.Time) error {
	if sp.State() != StatePending {
		return fmt.Errorf("cannot confirm %s supplier product %d", sp.State(), sp.ID)
	}
	confirmed := true
	sp.ManualConfirmed = &confirmed
	sp.ConfirmedBy = by
	sp.ConfirmedAt = &now
	sp.UpdatedAt = now
	return nil
}

// Reject drops a pending link back to unmatched.
func (sp *SupplierProduct) Reject(now time.Time) error {
	if sp.State() != StatePending {
		return fmt.Errorf("cannot reject %s supplier product %d", sp.State(), sp.ID)
	}
	sp.clearLink(now)
	return nil
}

// Unmatch clears any link, pending or confirmed. The score and the
// confirmation fields go with it; a later re-match starts clean.
func (sp *SupplierProduct) Unmatch(now time.Time) error {
	if sp.State() == StateUnmatched {
		return fmt.Errorf("supplier product %d is not matched", sp.ID)
	}
	sp.clearLink(now)
	return nil
}

func (sp *SupplierProduct) clearLink(now time.Time) {
	sp.LinkedProductID = nil
	sp.SimilarityScore = nil
	sp.ManualConfirmed = nil
	sp.ConfirmedBy = ""
	sp.ConfirmedAt = nil
	sp.UpdatedAt = now
}

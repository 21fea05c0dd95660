package catalog

import "fmt"

// ValidationStatus is the marketplace's documentation validation state
// for a product, an integer in 0..17. Only a handful of them permit
// the offer to sell; the rest are various shades of pending, rejected
// or blocked documentation.
type ValidationStatus int

const (
	ValidationDraft              ValidationStatus = 0
	ValidationAwaitingValidation ValidationStatus = 1
	ValidationApproved           ValidationStatus = 9
	ValidationBlocked            ValidationStatus = 10
	ValidationUpdateApproved     ValidationStatus = 11
	ValidationUpdateRejected     ValidationStatus = 12
	ValidationUpdateBlocked      ValidationStatus = 17

	validationStatusMax = 17
)

// saleableValidation holds the statuses under which the documentation
// side of the listing allows sales.
var saleableValidation = map[ValidationStatus]struct{}{
	ValidationApproved:       {},
	ValidationUpdateApproved: {},
	ValidationUpdateRejected: {},
	ValidationUpdateBlocked:  {},
}

// Valid reports whether the integer is inside the carried range.
func (v ValidationStatus) Valid() bool {
	return v >= 0 && v <= validationStatusMax
}

// Saleable reports whether this documentation status permits selling.
func (v ValidationStatus) Saleable() bool {
	_, ok := saleableValidation[v]
	return ok
}

// OfferValidationStatus is the marketplace's price-side verdict on an
// offer: 1 means the offer is valid, 2 means the price was rejected.
type OfferValidationStatus int

const (
	OfferValid        OfferValidationStatus = 1
	OfferInvalidPrice OfferValidationStatus = 2
)

func (o OfferValidationStatus) Valid() bool {
	return o == OfferValid || o == OfferInvalidPrice
}

func (o OfferValidationStatus) Saleable() bool {
	return o == OfferValid
}

// OfferStatus is the seller-controlled activation flag on the offer.
type OfferStatus int

const (
	OfferStatusInactive OfferStatus = 0
	OfferStatusActive   OfferStatus = 1
	OfferStatusEOL      OfferStatus = 2
)

func (s OfferStatus) Valid() bool {
	return s >= OfferStatusInactive && s <= OfferStatusEOL
}

// OrderStatus is the marketplace order lifecycle value.
type OrderStatus int

const (
	OrderCancelled  OrderStatus = 0
	OrderNew        OrderStatus = 1
	OrderInProgress OrderStatus = 2
	OrderPrepared   OrderStatus = 3
	OrderFinalized  OrderStatus = 4
	OrderReturned   OrderStatus = 5
)

func (s OrderStatus) Valid() bool {
	return s >= OrderCancelled && s <= OrderReturned
}

func (s OrderStatus) String() string {
	switch s {
	case OrderCancelled:
		return "cancelled"
	case OrderNew:
		return "new"
	case OrderInProgress:
		return "in_progress"
	case OrderPrepared:
		return "prepared"
	case OrderFinalized:
		return "finalized"
	case OrderReturned:
		return "returned"
	}
	return fmt.Sprintf("order_status_%d", int(s))
}

// NeedsAcknowledgement reports whether the seller still has to ack the
// order so the marketplace stops re-delivering it on every read.
func (s OrderStatus) NeedsAcknowledgement() bool {
	return s == OrderNew
}

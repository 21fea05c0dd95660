package api

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/modula-erp/emag-sync-go/internal/domain/catalog"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// Wire DTOs. Field names mirror the marketplace JSON; conversions to
// domain records live next to each DTO. All datetimes cross this
// boundary as ISO-8601 with offset and are stored as naive UTC.

type statusValueDTO struct {
	Value int `json:"value"`
}

type stockDTO struct {
	WarehouseID int `json:"warehouse_id"`
	Value       int `json:"value"`
}

type imageDTO struct {
	URL         string `json:"url"`
	DisplayType int    `json:"display_type"`
}

// imageRole folds the numeric display_type into the role names the
// catalog stores.
func imageRole(displayType int) string {
	switch displayType {
	case 1:
		return "main"
	case 2:
		return "secondary"
	default:
		return strconv.Itoa(displayType)
	}
}

type characteristicDTO struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
	Tag   string `json:"tag,omitempty"`
}

type productOfferDTO struct {
	ID                    int64               `json:"id"`
	Status                int                 `json:"status"`
	Name                  string              `json:"name"`
	Brand                 string              `json:"brand"`
	PartNumber            string              `json:"part_number"`
	PartNumberKey         string              `json:"part_number_key"`
	CategoryID            *int64              `json:"category_id"`
	SalePrice             decimal.Decimal     `json:"sale_price"`
	MinSalePrice          decimal.NullDecimal `json:"min_sale_price"`
	MaxSalePrice          decimal.NullDecimal `json:"max_sale_price"`
	Currency              string              `json:"currency"`
	EAN                   []string            `json:"ean"`
	GeneralStock          int                 `json:"general_stock"`
	Stock                 []stockDTO          `json:"stock"`
	Images                []imageDTO          `json:"images"`
	Characteristics       []characteristicDTO `json:"characteristics"`
	ValidationStatus      []statusValueDTO    `json:"validation_status"`
	OfferValidationStatus *statusValueDTO     `json:"offer_validation_status"`
	Modified              string              `json:"modified"`
}

// toProduct maps one remote offer row onto a domain product for the
// given account. EANs are sanitized, not checksum-validated: remote
// feeds carry malformed codes and the read path must tolerate them.
func (d *productOfferDTO) toProduct(account shared.Account) (*catalog.Product, error) {
	modified, err := shared.ParseWireTime(d.Modified)
	if err != nil {
		return nil, err
	}

	stock := d.GeneralStock
	if stock == 0 {
		for _, s := range d.Stock {
			stock += s.Value
		}
	}

	images := make([]catalog.Image, 0, len(d.Images))
	for _, img := range d.Images {
		images = append(images, catalog.Image{URL: img.URL, Role: imageRole(img.DisplayType)})
	}
	chars := make([]catalog.Characteristic, 0, len(d.Characteristics))
	for _, ch := range d.Characteristics {
		chars = append(chars, catalog.Characteristic{ID: ch.ID, Value: ch.Value, Tag: ch.Tag})
	}

	validation := catalog.ValidationStatus(0)
	if len(d.ValidationStatus) > 0 {
		validation = catalog.ValidationStatus(d.ValidationStatus[0].Value)
	}
	offerValidation := catalog.OfferValidationStatus(0)
	if d.OfferValidationStatus != nil {
		offerValidation = catalog.OfferValidationStatus(d.OfferValidationStatus.Value)
	}

	remoteID := d.ID
	p := &catalog.Product{
		Account:               account,
		SKU:                   d.PartNumber,
		RemoteID:              &remoteID,
		PartNumberKey:         d.PartNumberKey,
		Name:                  d.Name,
		Brand:                 d.Brand,
		CategoryID:            d.CategoryID,
		SalePrice:             d.SalePrice,
		MinSalePrice:          d.MinSalePrice,
		MaxSalePrice:          d.MaxSalePrice,
		Currency:              d.Currency,
		Stock:                 stock,
		Status:                catalog.OfferStatus(d.Status),
		ValidationStatus:      validation,
		OfferValidationStatus: offerValidation,
		Active:                true,
		EANs:                  catalog.SanitizeEANs(d.EAN),
		Images:                images,
		Characteristics:       chars,
		RemoteModifiedAt:      modified,
	}
	p.ContentHash = p.ComputeContentHash()
	return p, nil
}

// OfferSave is the write payload for product_offer/save. Only fields
// the seller owns are sent; a zero VatID or empty handling time is
// omitted so partial updates do not clobber remote values.
type OfferSave struct {
	ID            int64               `json:"id"`
	Status        *int                `json:"status,omitempty"`
	SalePrice     decimal.Decimal     `json:"sale_price"`
	MinSalePrice  decimal.NullDecimal `json:"min_sale_price,omitempty"`
	MaxSalePrice  decimal.NullDecimal `json:"max_sale_price,omitempty"`
	VatID         int64               `json:"vat_id,omitempty"`
	HandlingTime  []stockDTO          `json:"handling_time,omitempty"`
	Stock         []stockDTO          `json:"stock,omitempty"`
	PartNumber    string              `json:"part_number,omitempty"`
	PartNumberKey string              `json:"part_number_key,omitempty"`
	EAN           []string            `json:"ean,omitempty"`
}

// NewOfferSave builds the attach-or-update payload from a local
// product. The part-number-key and EAN attachment exclusivity is
// enforced by catalog.OfferAttachment before this is called.
func NewOfferSave(p *catalog.Product, vatID int64, warehouseID, handlingDays int) (*OfferSave, error) {
	if p.RemoteID == nil {
		return nil, shared.NewValidationError("remote_id", "offer save requires a remote id")
	}
	status := int(p.Status)
	save := &OfferSave{
		ID:           *p.RemoteID,
		Status:       &status,
		SalePrice:    p.SalePrice,
		MinSalePrice: p.MinSalePrice,
		MaxSalePrice: p.MaxSalePrice,
		VatID:        vatID,
		PartNumber:   p.SKU,
		Stock:        []stockDTO{{WarehouseID: warehouseID, Value: p.Stock}},
	}
	if handlingDays >= 0 {
		save.HandlingTime = []stockDTO{{WarehouseID: warehouseID, Value: handlingDays}}
	}
	if p.PartNumberKey != "" {
		save.PartNumberKey = p.PartNumberKey
	} else if len(p.EANs) > 0 {
		save.EAN = p.EANs
	}
	return save, nil
}

type orderProductDTO struct {
	ProductID     int64           `json:"product_id"`
	PartNumberKey string          `json:"part_number_key"`
	Quantity      int             `json:"quantity"`
	SalePrice     decimal.Decimal `json:"sale_price"`
}

type orderCustomerDTO struct {
	Name string `json:"name"`
}

type orderDTO struct {
	ID           int64             `json:"id"`
	Status       int               `json:"status"`
	Customer     *orderCustomerDTO `json:"customer"`
	PaymentMode  string            `json:"payment_mode"`
	DeliveryMode string            `json:"delivery_mode"`
	Total        decimal.Decimal   `json:"total"`
	Currency     string            `json:"currency"`
	Products     []orderProductDTO `json:"products"`
	Date         string            `json:"date"`
	Modified     string            `json:"modified"`
}

func (d *orderDTO) toOrder(account shared.Account) (*catalog.Order, error) {
	placed, err := shared.ParseWireTime(d.Date)
	if err != nil {
		return nil, err
	}
	modified, err := shared.ParseWireTime(d.Modified)
	if err != nil {
		return nil, err
	}

	lines := make([]catalog.OrderLine, 0, len(d.Products))
	for _, p := range d.Products {
		lines = append(lines, catalog.OrderLine{
			ProductRemoteID: p.ProductID,
			PartNumberKey:   p.PartNumberKey,
			Quantity:        p.Quantity,
			SalePrice:       p.SalePrice,
		})
	}
	customer := ""
	if d.Customer != nil {
		customer = d.Customer.Name
	}
	return &catalog.Order{
		Account:        account,
		RemoteID:       d.ID,
		Status:         catalog.OrderStatus(d.Status),
		CustomerName:   customer,
		TotalAmount:    d.Total,
		Currency:       d.Currency,
		PaymentMode:    d.PaymentMode,
		DeliveryMode:   d.DeliveryMode,
		Lines:          lines,
		RemoteDate:     placed,
		RemoteModified: modified,
	}, nil
}

// CategoryCharacteristic is one characteristic definition with the
// requested slice of its allowed values.
type CategoryCharacteristic struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Category is the remote taxonomy node needed to publish offers.
type Category struct {
	ID              int64                    `json:"id"`
	Name            string                   `json:"name"`
	IsAllowed       int                      `json:"is_allowed"`
	Characteristics []CategoryCharacteristic `json:"characteristics"`
}

// VatRate is a remote VAT registry entry.
type VatRate struct {
	VatID   int64           `json:"vat_id"`
	VatRate decimal.Decimal `json:"vat_rate"`
}

// HandlingTime is a remote handling-time registry entry.
type HandlingTime struct {
	ID    int64 `json:"id"`
	Value int   `json:"value"`
}

// EANMatch is one hit from the bulk EAN lookup.
type EANMatch struct {
	EANs              []string `json:"eans"`
	PartNumberKey     string   `json:"part_number_key"`
	ProductTitle      string   `json:"product_title"`
	BrandName         string   `json:"brand_name"`
	CategoryID        int64    `json:"category_id"`
	AllowedToAddOffer bool     `json:"allow_to_add_offer"`
	VendorHasOffer    bool     `json:"vendor_has_offer"`
}

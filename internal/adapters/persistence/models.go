package persistence

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductModel represents the products table. MAIN and FBE rows never
// merge: (account, sku) is the identity everywhere. RemoteID and
// PartNumberKey are nullable so unpublished local rows don't collide
// on the unique indexes.
type ProductModel struct {
	ID            int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Account       string  `gorm:"column:account;not null;uniqueIndex:idx_products_account_sku;uniqueIndex:idx_products_account_remote;uniqueIndex:idx_products_account_pnk"`
	SKU           string  `gorm:"column:sku;not null;uniqueIndex:idx_products_account_sku"`
	RemoteID      *int64  `gorm:"column:remote_id;uniqueIndex:idx_products_account_remote"`
	PartNumberKey *string `gorm:"column:part_number_key;uniqueIndex:idx_products_account_pnk"`

	Name        string `gorm:"column:name;not null"`
	Brand       string `gorm:"column:brand"`
	CategoryID  *int64 `gorm:"column:category_id"`
	ChineseName string `gorm:"column:chinese_name"`

	SalePrice    decimal.Decimal     `gorm:"column:sale_price;type:decimal(12,4);not null"`
	MinSalePrice decimal.NullDecimal `gorm:"column:min_sale_price;type:decimal(12,4)"`
	MaxSalePrice decimal.NullDecimal `gorm:"column:max_sale_price;type:decimal(12,4)"`
	Currency     string              `gorm:"column:currency;not null;default:'RON'"`

	Stock int `gorm:"column:stock;not null;default:0"`

	Status                int  `gorm:"column:status;not null;default:0"`
	ValidationStatus      int  `gorm:"column:validation_status;not null;default:0"`
	OfferValidationStatus int  `gorm:"column:offer_validation_status;not null;default:1"`
	Active                bool `gorm:"column:active;not null;default:true"`
	ReviewRequired        bool `gorm:"column:review_required;not null;default:false"`

	EANCodes            string `gorm:"column:ean_codes;type:text"`            // JSON array as text
	ImagesJSON          string `gorm:"column:images_json;type:text"`          // JSON array as text
	CharacteristicsJSON string `gorm:"column:characteristics_json;type:text"` // JSON array as text

	ContentHash      string    `gorm:"column:content_hash;index"`
	RemoteModifiedAt time.Time `gorm:"column:remote_modified_at"`
	SyncedAt         time.Time `gorm:"column:synced_at"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null"`
}

func (ProductModel) TableName() string {
	return "products"
}

// SyncLogModel represents the sync_logs table: one row per sync
// submission, never deleted. The latest row per (account, resource) is
// the public status source.
type SyncLogModel struct {
	ID    int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunID string `gorm:"column:run_id;unique;not null"`

	Account  string `gorm:"column:account;not null;index:idx_sync_logs_scope"`
	Resource string `gorm:"column:resource;not null;index:idx_sync_logs_scope"`
	Mode     string `gorm:"column:mode;not null"`
	Strategy string `gorm:"column:strategy;not null"`
	Actor    string `gorm:"column:actor"`

	Status       string `gorm:"column:status;not null;index"`
	ErrorMessage string `gorm:"column:error_message;type:text"`
	Note         string `gorm:"column:note"`

	TotalItems     int `gorm:"column:total_items;not null;default:0"`
	ProcessedItems int `gorm:"column:processed_items;not null;default:0"`
	CreatedCount   int `gorm:"column:created_count;not null;default:0"`
	UpdatedCount   int `gorm:"column:updated_count;not null;default:0"`
	SkippedCount   int `gorm:"column:skipped_count;not null;default:0"`
	FailedCount    int `gorm:"column:failed_count;not null;default:0"`

	CancelRequested bool `gorm:"column:cancel_requested;not null;default:false"`

	StartedAt   *time.Time `gorm:"column:started_at;index:idx_sync_logs_scope,sort:desc"`
	FinishedAt  *time.Time `gorm:"column:finished_at"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null"`
}

func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// SyncLogItemModel represents the sync_log_items table: per-item audit
// rows for one run. Append-only.
type SyncLogItemModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SyncLogID int64     `gorm:"column:sync_log_id;not null;index"`
	SKU       string    `gorm:"column:sku;not null"`
	Action    string    `gorm:"column:action;not null"` // created|updated|skipped|failed|review
	Message   string    `gorm:"column:message;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (SyncLogItemModel) TableName() string {
	return "sync_log_items"
}

// MarketplaceOrderModel represents the marketplace_orders table. The
// remote is the source of truth; these rows mirror it for reporting
// and acknowledgement tracking.
type MarketplaceOrderModel struct {
	ID           int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Account      string          `gorm:"column:account;not null;uniqueIndex:idx_orders_account_remote"`
	RemoteID     int64           `gorm:"column:remote_id;not null;uniqueIndex:idx_orders_account_remote"`
	Status       int             `gorm:"column:status;not null;index"`
	CustomerName string          `gorm:"column:customer_name"`
	TotalAmount  decimal.Decimal `gorm:"column:total_amount;type:decimal(12,4);not null"`
	Currency     string          `gorm:"column:currency;not null;default:'RON'"`
	PaymentMode  string          `gorm:"column:payment_mode"`
	DeliveryMode string          `gorm:"column:delivery_mode"`
	LinesJSON    string          `gorm:"column:lines_json;type:text"` // JSON array as text

	AcknowledgedAt *time.Time `gorm:"column:acknowledged_at"`
	RemoteDate     time.Time  `gorm:"column:remote_date"`
	RemoteModified time.Time  `gorm:"column:remote_modified"`
	SyncedAt       time.Time  `gorm:"column:synced_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null"`
}

func (MarketplaceOrderModel) TableName() string {
	return "marketplace_orders"
}

// SupplierModel represents the suppliers table
type SupplierModel struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string    `gorm:"column:name;not null"`
	Code        string    `gorm:"column:code;unique;not null"`
	CountryCode string    `gorm:"column:country_code"`
	Currency    string    `gorm:"column:currency"`
	ContactInfo string    `gorm:"column:contact_info;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (SupplierModel) TableName() string {
	return "suppliers"
}

// SupplierProductModel represents the supplier_products table. The
// link to a local product is a weak reference; the three companion
// columns (linked_product_id, similarity_score, manual_confirmed)
// move together.
type SupplierProductModel struct {
	ID         int64 `gorm:"column:id;primaryKey;autoIncrement"`
	SupplierID int64 `gorm:"column:supplier_id;not null;index"`

	RawName        string          `gorm:"column:raw_name;not null"`
	NormalizedName string          `gorm:"column:normalized_name;index"`
	EAN            string          `gorm:"column:ean;index"`
	PartNumberKey  string          `gorm:"column:part_number_key;index"`
	ImageURL       string          `gorm:"column:image_url"`
	URL            string          `gorm:"column:url"`
	Price          decimal.Decimal `gorm:"column:price;type:decimal(12,4)"`
	Currency       string          `gorm:"column:currency"`

	LinkedProductID *int64     `gorm:"column:linked_product_id;index"`
	SimilarityScore *float64   `gorm:"column:similarity_score"`
	ManualConfirmed *bool      `gorm:"column:manual_confirmed"`
	ConfirmedBy     string     `gorm:"column:confirmed_by"`
	ConfirmedAt     *time.Time `gorm:"column:confirmed_at"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (SupplierProductModel) TableName() string {
	return "supplier_products"
}

// SupplierSheetEntryModel represents the supplier_sheet_entries table:
// one spreadsheet-sourced price per (supplier, product) pair.
type SupplierSheetEntryModel struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	SupplierID int64           `gorm:"column:supplier_id;not null;uniqueIndex:idx_sheet_supplier_product"`
	ProductID  int64           `gorm:"column:product_id;not null;uniqueIndex:idx_sheet_supplier_product"`
	Price      decimal.Decimal `gorm:"column:price;type:decimal(12,4);not null"`
	Currency   string          `gorm:"column:currency;not null;default:'CNY'"`
	CreatedAt  time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;not null"`
}

func (SupplierSheetEntryModel) TableName() string {
	return "supplier_sheet_entries"
}

// InventoryItemModel represents the inventory_items table
type InventoryItemModel struct {
	ID          int64 `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID   int64 `gorm:"column:product_id;not null;uniqueIndex:idx_inventory_product_warehouse"`
	WarehouseID int64 `gorm:"column:warehouse_id;not null;uniqueIndex:idx_inventory_product_warehouse"`

	Quantity         int `gorm:"column:quantity;not null;default:0"`
	ReservedQuantity int `gorm:"column:reserved_quantity;not null;default:0"`

	MinimumStock          int  `gorm:"column:minimum_stock;not null;default:0"`
	ReorderPoint          int  `gorm:"column:reorder_point;not null;default:0"`
	MaximumStock          *int `gorm:"column:maximum_stock"`
	ManualReorderQuantity *int `gorm:"column:manual_reorder_quantity"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (InventoryItemModel) TableName() string {
	return "inventory_items"
}

// PurchaseOrderModel represents the purchase_orders table. The
// idempotency key is nullable so manually created orders don't
// collide on the unique index.
type PurchaseOrderModel struct {
	ID             int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderNumber    string          `gorm:"column:order_number;unique;not null"`
	SupplierID     int64           `gorm:"column:supplier_id;not null;index"`
	Status         string          `gorm:"column:status;not null;index"`
	Currency       string          `gorm:"column:currency;not null"`
	ExchangeRate   decimal.Decimal `gorm:"column:exchange_rate;type:decimal(12,4);not null"`
	TotalValue     decimal.Decimal `gorm:"column:total_value;type:decimal(12,4);not null"`
	OrderDate      time.Time       `gorm:"column:order_date;not null"`
	ExpectedAt     *time.Time      `gorm:"column:expected_at"`
	IdempotencyKey *string         `gorm:"column:idempotency_key;unique"`
	CreatedBy      string          `gorm:"column:created_by"`

	Lines []PurchaseOrderLineModel `gorm:"foreignKey:PurchaseOrderID;references:ID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (PurchaseOrderModel) TableName() string {
	return "purchase_orders"
}

// PurchaseOrderLineModel represents the purchase_order_lines table.
// Lines never outlive their order.
type PurchaseOrderLineModel struct {
	ID              int64           `gorm:"column:id;primaryKey;autoIncrement"`
	PurchaseOrderID int64           `gorm:"column:purchase_order_id;not null;index"`
	ProductID       int64           `gorm:"column:product_id;not null;index"`
	OrderedQty      int             `gorm:"column:ordered_qty;not null"`
	ReceivedQty     int             `gorm:"column:received_qty;not null;default:0"`
	UnitCost        decimal.Decimal `gorm:"column:unit_cost;type:decimal(12,4);not null"`
}

func (PurchaseOrderLineModel) TableName() string {
	return "purchase_order_lines"
}

// PurchaseOrderHistoryModel represents the purchase_order_history
// table. Append-only lifecycle audit.
type PurchaseOrderHistoryModel struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PurchaseOrderID int64     `gorm:"column:purchase_order_id;not null;index"`
	Action          string    `gorm:"column:action;not null"`
	Details         string    `gorm:"column:details;type:text"`
	Actor           string    `gorm:"column:actor"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
}

func (PurchaseOrderHistoryModel) TableName() string {
	return "purchase_order_history"
}

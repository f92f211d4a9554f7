package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Table and column names below are shared with the Django admin app that
// owns the schema; they must match its migrations exactly.

// MoneyPair is a dual presentment/shop amount as delivered in Shopify
// "price set" objects. Embedded with a prefix so each use lands on its own
// column family (<prefix>presentment, <prefix>presentment_currency, ...).
type MoneyPair struct {
	Presentment         decimal.Decimal `gorm:"column:presentment;type:numeric(14,2)"`
	PresentmentCurrency string          `gorm:"column:presentment_currency;size:3"`
	Shop                decimal.Decimal `gorm:"column:shop;type:numeric(14,2)"`
	ShopCurrency        string          `gorm:"column:shop_currency;size:3"`
}

// ShopRecord is one row per installed-or-attempted shop. Status is never
// stored; it is derived from the install/uninstall timestamps.
type ShopRecord struct {
	ID            int64      `gorm:"column:id;primaryKey"`
	ShopAddress   string     `gorm:"column:shop_address;uniqueIndex;size:255"`
	Nonce         string     `gorm:"column:nonce;size:64"`
	AskTime       time.Time  `gorm:"column:ask_time"`
	InstallTime   *time.Time `gorm:"column:install_time"`
	UninstallTime *time.Time `gorm:"column:uninstall_time"`
	AccessToken   *string    `gorm:"column:access_token"`
	NeedsRescope  bool       `gorm:"column:needs_rescope"`
	RACID         *int64     `gorm:"column:rac_id"`
}

func (ShopRecord) TableName() string { return "shopify_shopifystore" }

// PriceRuleDiscount is one issued discount code tied to an endorser and a
// business. External ids stay null until the price rule and code exist on
// Shopify; converted flips exactly once, when a matching order lands.
type PriceRuleDiscount struct {
	ID          int64           `gorm:"column:id;primaryKey"`
	DiscountCode string         `gorm:"column:discount_code;uniqueIndex;size:64"`
	BusinessID  int64           `gorm:"column:business_id"`
	EndorserID  int64           `gorm:"column:endorser_id"`
	Discount    decimal.Decimal `gorm:"column:discount;type:numeric(5,2)"`
	StartTime   time.Time       `gorm:"column:start_time"`
	EndTime     time.Time       `gorm:"column:end_time"`
	PriceRuleID *int64          `gorm:"column:price_rule_id"`
	DiscountID  *int64          `gorm:"column:discount_id"`
	Converted   bool            `gorm:"column:converted"`
}

func (PriceRuleDiscount) TableName() string { return "shopify_pricerulediscount" }

// Order mirrors the order webhook header, keyed by the upstream order id.
type Order struct {
	OrderID         int64      `gorm:"column:order_id;primaryKey"`
	BusinessID      int64      `gorm:"column:business_id"`
	ShopOrderNumber int64      `gorm:"column:shop_order_number"`
	CustomerID      int64      `gorm:"column:customer_id"`
	POSLocationID   *int64     `gorm:"column:pos_location_id"`
	POSUserID       *int64     `gorm:"column:pos_user_id"`
	Note            *string    `gorm:"column:note"`
	Tags            string     `gorm:"column:tags"`
	Test            bool       `gorm:"column:test"`
	FinancialStatus string     `gorm:"column:financial_status;size:32"`
	CancelReason    *string    `gorm:"column:cancel_reason;size:32"`
	CancelledAt     *time.Time `gorm:"column:cancelled_at"`
	ClosedAt        *time.Time `gorm:"column:closed_at"`
	TaxesIncluded   bool       `gorm:"column:taxes_included"`

	TotalLineItems MoneyPair `gorm:"embedded;embeddedPrefix:total_line_items_"`
	TotalPrice     MoneyPair `gorm:"embedded;embeddedPrefix:total_price_"`
	TotalShipping  MoneyPair `gorm:"embedded;embeddedPrefix:total_shipping_"`
	TotalTax       MoneyPair `gorm:"embedded;embeddedPrefix:total_tax_"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Order) TableName() string { return "shopify_order" }

// LineItem is one order line, keyed by the upstream line item id.
type LineItem struct {
	LineItemID       int64   `gorm:"column:line_item_id;primaryKey"`
	OrderID          int64   `gorm:"column:order_id;index"`
	ProductName      string  `gorm:"column:product_name"`
	ProductID        *int64  `gorm:"column:product_id"`
	VariantID        *int64  `gorm:"column:variant_id"`
	VariantTitle     *string `gorm:"column:variant_title"`
	SKU              *string `gorm:"column:sku;size:64"`
	Vendor           *string `gorm:"column:vendor"`
	Quantity         int     `gorm:"column:quantity"`
	RequiresShipping bool    `gorm:"column:requires_shipping"`
	Taxable          bool    `gorm:"column:taxable"`
	GiftCard         bool    `gorm:"column:gift_card"`

	Price MoneyPair `gorm:"embedded;embeddedPrefix:price_"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (LineItem) TableName() string { return "shopify_lineitem" }

// LineItemDiscount is one discount allocation against a line item.
type LineItemDiscount struct {
	ID                       int64 `gorm:"column:id;primaryKey"`
	LineItemID               int64 `gorm:"column:line_item_id;uniqueIndex:uniq_li_discount"`
	DiscountApplicationIndex int   `gorm:"column:discount_application_index;uniqueIndex:uniq_li_discount"`

	Discount MoneyPair `gorm:"embedded;embeddedPrefix:discount_"`
}

func (LineItemDiscount) TableName() string { return "shopify_lineitemdiscounts" }

// Customer mirrors the order's customer, keyed by the upstream customer id.
type Customer struct {
	CustomerID       int64           `gorm:"column:customer_id;primaryKey"`
	ShopifyStore     string          `gorm:"column:shopify_store;size:255"`
	DefaultAddressID int64           `gorm:"column:default_address_id"`
	Email            *string         `gorm:"column:email"`
	FirstName        *string         `gorm:"column:first_name"`
	LastName         *string         `gorm:"column:last_name"`
	State            string          `gorm:"column:state;size:32"`
	Note             *string         `gorm:"column:note"`
	VerifiedEmail    bool            `gorm:"column:verified_email"`
	AcceptsMarketing bool            `gorm:"column:accepts_marketing"`
	Currency         string          `gorm:"column:currency;size:3"`
	Tags             string          `gorm:"column:tags"`
	OrdersCount      int             `gorm:"column:orders_count"`
	TotalSpent       decimal.Decimal `gorm:"column:total_spent;type:numeric(14,2)"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
}

func (Customer) TableName() string { return "shopify_customer" }

// Address is a customer's default address, keyed by the upstream address id.
type Address struct {
	AddressID    int64    `gorm:"column:address_id;primaryKey"`
	IsDefault    bool     `gorm:"column:is_default"`
	FirstName    *string  `gorm:"column:first_name"`
	LastName     *string  `gorm:"column:last_name"`
	Address1     *string  `gorm:"column:address1"`
	Address2     *string  `gorm:"column:address2"`
	City         *string  `gorm:"column:city"`
	Province     *string  `gorm:"column:province"`
	ProvinceCode *string  `gorm:"column:province_code;size:8"`
	Country      *string  `gorm:"column:country"`
	CountryCode  *string  `gorm:"column:country_code;size:2"`
	CountryName  *string  `gorm:"column:country_name"`
	Zip          *string  `gorm:"column:zip;size:16"`
	Phone        *string  `gorm:"column:phone;size:32"`
	Latitude     *float64 `gorm:"column:latitude"`
	Longitude    *float64 `gorm:"column:longitude"`
}

func (Address) TableName() string { return "shopify_address" }

// AppliedOrderDiscount is one entry of the order's discount_codes list.
type AppliedOrderDiscount struct {
	ID                    int64           `gorm:"column:id;primaryKey"`
	OrderID               int64           `gorm:"column:order_id;uniqueIndex:uniq_order_discount"`
	AppliedDiscountNumber int             `gorm:"column:applied_discount_number;uniqueIndex:uniq_order_discount"`
	DiscountCode          string          `gorm:"column:discount_code;size:64"`
	Amount                decimal.Decimal `gorm:"column:amount;type:numeric(14,2)"`
	Type                  string          `gorm:"column:type;size:32"`
}

func (AppliedOrderDiscount) TableName() string { return "shopify_appliedorderdiscounts" }

// OrderReferralData captures the order's attribution fields.
type OrderReferralData struct {
	ID               int64   `gorm:"column:id;primaryKey"`
	OrderID          int64   `gorm:"column:order_id;uniqueIndex"`
	LandingSite      *string `gorm:"column:landing_site"`
	LandingSiteRef   *string `gorm:"column:landing_site_ref"`
	ReferringSite    *string `gorm:"column:referring_site"`
	SourceIdentifier *string `gorm:"column:source_identifier"`
	SourceName       *string `gorm:"column:source_name"`
	SourceURL        *string `gorm:"column:source_url"`
}

func (OrderReferralData) TableName() string { return "shopify_orderreferraldata" }

// Kickback is the payout owed to an endorser for one converted order.
// Exactly one row may exist per (order, discount code) pair.
type Kickback struct {
	ID               int64           `gorm:"column:id;primaryKey"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
	BusinessID       int64           `gorm:"column:business_id"`
	EndorserID       int64           `gorm:"column:endorser_id"`
	PRDID            string          `gorm:"column:prd_id;size:64;uniqueIndex:uniq_order_prd"`
	OrderID          int64           `gorm:"column:order_id;uniqueIndex:uniq_order_prd"`
	Kickback         decimal.Decimal `gorm:"column:kickback;type:numeric(14,2)"`
	KickbackCurrency string          `gorm:"column:kickback_currency;size:3"`
	Discount         decimal.Decimal `gorm:"column:discount;type:numeric(14,2)"`
	DiscountCurrency string          `gorm:"column:discount_currency;size:3"`
	PaidOutPercent   float64         `gorm:"column:paid_out_percent"`
	PlatformFeePct   float64         `gorm:"column:gooie_fee_percent"`
}

func (Kickback) TableName() string { return "endorser_kickback" }

// Business is owned by the admin app; read-only here.
type Business struct {
	ID             int64  `gorm:"column:id;primaryKey"`
	Name           string `gorm:"column:name"`
	ShopifyAddress string `gorm:"column:shopify_address;size:255"`
}

func (Business) TableName() string { return "businesses_business" }

// DiscountConfiguration holds the per-business endorser kickback percent.
type DiscountConfiguration struct {
	ID                      int64   `gorm:"column:id;primaryKey"`
	BusinessID              int64   `gorm:"column:business_id"`
	EndorserKickbackPercent float64 `gorm:"column:endorser_kickback_percent"`
}

func (DiscountConfiguration) TableName() string { return "businesses_discountconfiguration" }

// User is the endorser account; read-only here.
type User struct {
	ID        int64   `gorm:"column:id;primaryKey"`
	Email     string  `gorm:"column:email"`
	FirstName *string `gorm:"column:first_name"`
	LastName  *string `gorm:"column:last_name"`
}

func (User) TableName() string { return "users_user" }

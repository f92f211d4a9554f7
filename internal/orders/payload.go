package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Money is one amount/currency pair as delivered by Shopify. Amounts stay
// decimal end to end; they are only rounded where a value is persisted or
// billed.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
}

// MoneySet is Shopify's dual-currency representation: the amount in the
// buyer's presentment currency and in the shop's own currency.
type MoneySet struct {
	ShopMoney        Money `json:"shop_money"`
	PresentmentMoney Money `json:"presentment_money"`
}

// AppliedDiscountCode is one entry of the order's discount_codes list.
type AppliedDiscountCode struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
	Type   string          `json:"type"`
}

// AddressPayload is the customer's default address.
type AddressPayload struct {
	ID           int64    `json:"id"`
	Default      bool     `json:"default"`
	FirstName    *string  `json:"first_name"`
	LastName     *string  `json:"last_name"`
	Address1     *string  `json:"address1"`
	Address2     *string  `json:"address2"`
	City         *string  `json:"city"`
	Province     *string  `json:"province"`
	ProvinceCode *string  `json:"province_code"`
	Country      *string  `json:"country"`
	CountryCode  *string  `json:"country_code"`
	CountryName  *string  `json:"country_name"`
	Zip          *string  `json:"zip"`
	Phone        *string  `json:"phone"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// CustomerPayload is the order's customer block.
type CustomerPayload struct {
	ID               int64          `json:"id"`
	Email            *string        `json:"email"`
	FirstName        *string        `json:"first_name"`
	LastName         *string        `json:"last_name"`
	State            string         `json:"state"`
	Note             *string        `json:"note"`
	VerifiedEmail    bool           `json:"verified_email"`
	AcceptsMarketing bool           `json:"accepts_marketing"`
	Currency         string         `json:"currency"`
	Tags             string         `json:"tags"`
	OrdersCount      int            `json:"orders_count"`
	DefaultAddress   AddressPayload `json:"default_address"`
}

// DiscountAllocation is one per-line-item discount amount.
type DiscountAllocation struct {
	DiscountApplicationIndex int      `json:"discount_application_index"`
	AmountSet                MoneySet `json:"amount_set"`
}

// LineItemPayload is one order line.
type LineItemPayload struct {
	ID                  int64                `json:"id"`
	Name                string               `json:"name"`
	ProductID           *int64               `json:"product_id"`
	VariantID           *int64               `json:"variant_id"`
	VariantTitle        *string              `json:"variant_title"`
	SKU                 *string              `json:"sku"`
	Vendor              *string              `json:"vendor"`
	Quantity            int                  `json:"quantity"`
	RequiresShipping    bool                 `json:"requires_shipping"`
	Taxable             bool                 `json:"taxable"`
	GiftCard            bool                 `json:"gift_card"`
	PriceSet            MoneySet             `json:"price_set"`
	DiscountAllocations []DiscountAllocation `json:"discount_allocations"`
}

// OrderPayload is the decoded orders/create webhook body, trimmed to the
// fields this app mirrors.
type OrderPayload struct {
	ID              int64      `json:"id"`
	OrderNumber     int64      `json:"order_number"`
	LocationID      *int64     `json:"location_id"`
	UserID          *int64     `json:"user_id"`
	Note            *string    `json:"note"`
	Tags            string     `json:"tags"`
	Test            bool       `json:"test"`
	FinancialStatus string     `json:"financial_status"`
	CancelReason    *string    `json:"cancel_reason"`
	CancelledAt     *time.Time `json:"cancelled_at"`
	ClosedAt        *time.Time `json:"closed_at"`
	TaxesIncluded   bool       `json:"taxes_included"`
	Currency        string     `json:"currency"`

	DiscountCodes []AppliedDiscountCode `json:"discount_codes"`
	Customer      CustomerPayload       `json:"customer"`
	LineItems     []LineItemPayload     `json:"line_items"`

	TotalLineItemsPriceSet MoneySet `json:"total_line_items_price_set"`
	TotalPriceSet          MoneySet `json:"total_price_set"`
	TotalShippingPriceSet  MoneySet `json:"total_shipping_price_set"`
	TotalTaxSet            MoneySet `json:"total_tax_set"`

	LandingSite      *string `json:"landing_site"`
	LandingSiteRef   *string `json:"landing_site_ref"`
	ReferringSite    *string `json:"referring_site"`
	SourceIdentifier *string `json:"source_identifier"`
	SourceName       *string `json:"source_name"`
	SourceURL        *string `json:"source_url"`
}

// DecodeOrder parses a webhook body into an OrderPayload, rejecting bodies
// that lack the upstream order id.
func DecodeOrder(body []byte) (*OrderPayload, error) {
	var p OrderPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode order payload: %w", err)
	}
	if p.ID == 0 {
		return nil, fmt.Errorf("order payload missing id")
	}
	return &p, nil
}

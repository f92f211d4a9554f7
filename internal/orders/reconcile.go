// Package orders persists incoming order webhooks and reconciles their
// discount codes against pending endorser discounts, recording a kickback
// and billing the shop when one matches.
package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"backend/internal/billing"
	"backend/internal/store"
)

// Mirror writes the denormalized order tables; every method is an upsert
// keyed by the upstream id.
type Mirror interface {
	UpsertAddress(ctx context.Context, a *store.Address) error
	UpsertCustomer(ctx context.Context, c *store.Customer) error
	UpsertOrder(ctx context.Context, o *store.Order) error
	UpsertLineItem(ctx context.Context, li *store.LineItem) error
	UpsertLineItemDiscount(ctx context.Context, d *store.LineItemDiscount) error
	UpsertAppliedDiscount(ctx context.Context, d *store.AppliedOrderDiscount) error
	UpsertReferralData(ctx context.Context, r *store.OrderReferralData) error
}

// DiscountSource finds and retires pending price rule discounts.
type DiscountSource interface {
	FindPending(ctx context.Context, code string) (*store.PriceRuleDiscount, error)
	MarkConverted(ctx context.Context, code string) error
}

// KickbackSink records kickbacks; Insert reports whether a row was created.
type KickbackSink interface {
	Insert(ctx context.Context, k *store.Kickback) (bool, error)
}

// BusinessSource reads the owning business and its kickback configuration.
type BusinessSource interface {
	ByShopifyAddress(ctx context.Context, shopAddress string) (*store.Business, error)
	DiscountConfig(ctx context.Context, businessID int64) (*store.DiscountConfiguration, error)
}

// Gateway is the slice of the Shopify client reconciliation needs.
type Gateway interface {
	billing.UsageGateway
	DeletePriceRule(ctx context.Context, priceRuleID int64) bool
	DeleteDiscountCode(ctx context.Context, priceRuleID, discountID int64) bool
}

// Reconciler runs the order workflow. Each step is idempotent so a
// redelivered webhook converges on the same rows.
type Reconciler struct {
	mirror     Mirror
	discounts  DiscountSource
	kickbacks  KickbackSink
	businesses BusinessSource
	charger    *billing.Charger
	feePercent float64
	logger     *slog.Logger
	now        func() time.Time
}

func NewReconciler(
	mirror Mirror,
	discounts DiscountSource,
	kickbacks KickbackSink,
	businesses BusinessSource,
	charger *billing.Charger,
	feePercent float64,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		mirror:     mirror,
		discounts:  discounts,
		kickbacks:  kickbacks,
		businesses: businesses,
		charger:    charger,
		feePercent: feePercent,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Process persists the order mirror, then reconciles discount codes.
// Persistence failures propagate (fatal for the request); gateway failures
// in the final cleanup are logged and swallowed, never rolling back the
// kickback already recorded.
func (r *Reconciler) Process(ctx context.Context, shopRec *store.ShopRecord, gw Gateway, p *OrderPayload) error {
	business, err := r.businesses.ByShopifyAddress(ctx, shopRec.ShopAddress)
	if err != nil {
		return err
	}

	if err := r.persistMirror(ctx, p, business.ID, shopRec.ShopAddress); err != nil {
		return err
	}

	code, prd, err := r.firstPendingMatch(ctx, p)
	if err != nil {
		return err
	}
	if prd == nil {
		r.logger.Info("order persisted, no pending discount matched",
			"shop", shopRec.ShopAddress, "order_id", p.ID)
		return nil
	}

	cfg, err := r.businesses.DiscountConfig(ctx, business.ID)
	if err != nil {
		return err
	}

	total := p.TotalLineItemsPriceSet.ShopMoney
	pct := decimal.NewFromFloat(cfg.EndorserKickbackPercent)
	// Round only at the persistence boundary.
	amount := total.Amount.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)

	now := r.now()
	kickback := &store.Kickback{
		CreatedAt:        now,
		UpdatedAt:        now,
		BusinessID:       business.ID,
		EndorserID:       prd.EndorserID,
		PRDID:            prd.DiscountCode,
		OrderID:          p.ID,
		Kickback:         amount,
		KickbackCurrency: total.CurrencyCode,
		Discount:         code.Amount.Round(2),
		DiscountCurrency: p.Currency,
		PaidOutPercent:   0,
		PlatformFeePct:   r.feePercent,
	}

	created, err := r.kickbacks.Insert(ctx, kickback)
	if err != nil {
		return err
	}
	if !created {
		r.logger.Info("kickback already recorded, skipping billing",
			"shop", shopRec.ShopAddress, "order_id", p.ID, "discount_code", prd.DiscountCode)
	}

	if created && shopRec.RACID != nil {
		r.charger.Charge(ctx, gw, shopRec.ShopAddress, *shopRec.RACID, kickback)
	}

	if err := r.discounts.MarkConverted(ctx, prd.DiscountCode); err != nil {
		return err
	}

	// Best-effort retirement of the Shopify objects; failures here leave a
	// converted PRD with live external objects, cleaned up by hand.
	if prd.PriceRuleID != nil {
		if !gw.DeletePriceRule(ctx, *prd.PriceRuleID) {
			r.logger.Warn("price rule delete failed",
				"shop", shopRec.ShopAddress, "price_rule_id", *prd.PriceRuleID)
		}
		if prd.DiscountID != nil {
			if !gw.DeleteDiscountCode(ctx, *prd.PriceRuleID, *prd.DiscountID) {
				r.logger.Warn("discount code delete failed",
					"shop", shopRec.ShopAddress, "discount_id", *prd.DiscountID)
			}
		}
	}

	r.logger.Info("kickback recorded",
		"shop", shopRec.ShopAddress, "order_id", p.ID,
		"discount_code", prd.DiscountCode, "amount", kickback.Kickback.String(),
		"currency", kickback.KickbackCurrency)
	return nil
}

// firstPendingMatch returns the first discount code, in payload order, with
// a pending PRD. Payload order keeps the pick deterministic across
// replays.
func (r *Reconciler) firstPendingMatch(ctx context.Context, p *OrderPayload) (*AppliedDiscountCode, *store.PriceRuleDiscount, error) {
	for i := range p.DiscountCodes {
		code := &p.DiscountCodes[i]
		prd, err := r.discounts.FindPending(ctx, code.Code)
		if err != nil {
			return nil, nil, err
		}
		if prd != nil {
			return code, prd, nil
		}
	}
	return nil, nil, nil
}

func (r *Reconciler) persistMirror(ctx context.Context, p *OrderPayload, businessID int64, shopAddress string) error {
	now := r.now()

	if err := r.mirror.UpsertAddress(ctx, mungeAddress(&p.Customer.DefaultAddress)); err != nil {
		return err
	}
	if err := r.mirror.UpsertCustomer(ctx, mungeCustomer(&p.Customer, shopAddress, now)); err != nil {
		return err
	}
	if err := r.mirror.UpsertOrder(ctx, mungeOrder(p, businessID, now)); err != nil {
		return err
	}
	for i := range p.DiscountCodes {
		if err := r.mirror.UpsertAppliedDiscount(ctx, mungeAppliedDiscount(&p.DiscountCodes[i], p.ID, i)); err != nil {
			return err
		}
	}
	for i := range p.LineItems {
		li := &p.LineItems[i]
		if err := r.mirror.UpsertLineItem(ctx, mungeLineItem(li, p.ID, now)); err != nil {
			return err
		}
		for j := range li.DiscountAllocations {
			if err := r.mirror.UpsertLineItemDiscount(ctx, mungeLineItemDiscount(&li.DiscountAllocations[j], li.ID)); err != nil {
				return err
			}
		}
	}
	return r.mirror.UpsertReferralData(ctx, mungeReferralData(p))
}

func mungeMoneyPair(set MoneySet) store.MoneyPair {
	return store.MoneyPair{
		Presentment:         set.PresentmentMoney.Amount.Round(2),
		PresentmentCurrency: set.PresentmentMoney.CurrencyCode,
		Shop:                set.ShopMoney.Amount.Round(2),
		ShopCurrency:        set.ShopMoney.CurrencyCode,
	}
}

func mungeAddress(a *AddressPayload) *store.Address {
	return &store.Address{
		AddressID:    a.ID,
		IsDefault:    a.Default,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Address1:     a.Address1,
		Address2:     a.Address2,
		City:         a.City,
		Province:     a.Province,
		ProvinceCode: a.ProvinceCode,
		Country:      a.Country,
		CountryCode:  a.CountryCode,
		CountryName:  a.CountryName,
		Zip:          a.Zip,
		Phone:        a.Phone,
		Latitude:     a.Latitude,
		Longitude:    a.Longitude,
	}
}

func mungeCustomer(c *CustomerPayload, shopAddress string, now time.Time) *store.Customer {
	return &store.Customer{
		CustomerID:       c.ID,
		ShopifyStore:     shopAddress,
		DefaultAddressID: c.DefaultAddress.ID,
		Email:            c.Email,
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		State:            c.State,
		Note:             c.Note,
		VerifiedEmail:    c.VerifiedEmail,
		AcceptsMarketing: c.AcceptsMarketing,
		Currency:         c.Currency,
		Tags:             c.Tags,
		OrdersCount:      c.OrdersCount,
		TotalSpent:       decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func mungeOrder(p *OrderPayload, businessID int64, now time.Time) *store.Order {
	return &store.Order{
		OrderID:         p.ID,
		BusinessID:      businessID,
		ShopOrderNumber: p.OrderNumber,
		CustomerID:      p.Customer.ID,
		POSLocationID:   p.LocationID,
		POSUserID:       p.UserID,
		Note:            p.Note,
		Tags:            p.Tags,
		Test:            p.Test,
		FinancialStatus: p.FinancialStatus,
		CancelReason:    p.CancelReason,
		CancelledAt:     p.CancelledAt,
		ClosedAt:        p.ClosedAt,
		TaxesIncluded:   p.TaxesIncluded,
		TotalLineItems:  mungeMoneyPair(p.TotalLineItemsPriceSet),
		TotalPrice:      mungeMoneyPair(p.TotalPriceSet),
		TotalShipping:   mungeMoneyPair(p.TotalShippingPriceSet),
		TotalTax:        mungeMoneyPair(p.TotalTaxSet),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func mungeLineItem(li *LineItemPayload, orderID int64, now time.Time) *store.LineItem {
	return &store.LineItem{
		LineItemID:       li.ID,
		OrderID:          orderID,
		ProductName:      li.Name,
		ProductID:        li.ProductID,
		VariantID:        li.VariantID,
		VariantTitle:     li.VariantTitle,
		SKU:              li.SKU,
		Vendor:           li.Vendor,
		Quantity:         li.Quantity,
		RequiresShipping: li.RequiresShipping,
		Taxable:          li.Taxable,
		GiftCard:         li.GiftCard,
		Price:            mungeMoneyPair(li.PriceSet),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func mungeLineItemDiscount(d *DiscountAllocation, lineItemID int64) *store.LineItemDiscount {
	return &store.LineItemDiscount{
		LineItemID:               lineItemID,
		DiscountApplicationIndex: d.DiscountApplicationIndex,
		Discount:                 mungeMoneyPair(d.AmountSet),
	}
}

func mungeAppliedDiscount(d *AppliedDiscountCode, orderID int64, rank int) *store.AppliedOrderDiscount {
	return &store.AppliedOrderDiscount{
		OrderID:               orderID,
		AppliedDiscountNumber: rank,
		DiscountCode:          d.Code,
		Amount:                d.Amount.Round(2),
		Type:                  d.Type,
	}
}

func mungeReferralData(p *OrderPayload) *store.OrderReferralData {
	return &store.OrderReferralData{
		OrderID:          p.ID,
		LandingSite:      p.LandingSite,
		LandingSiteRef:   p.LandingSiteRef,
		ReferringSite:    p.ReferringSite,
		SourceIdentifier: p.SourceIdentifier,
		SourceName:       p.SourceName,
		SourceURL:        p.SourceURL,
	}
}

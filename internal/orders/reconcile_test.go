package orders

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"backend/internal/billing"
	"backend/internal/notify"
	"backend/internal/shopify"
	"backend/internal/store"
)

type stubMirror struct {
	addresses    int
	customers    int
	orders       int
	lineItems    int
	liDiscounts  int
	appliedCodes int
	referrals    int
	err          error
}

func (s *stubMirror) UpsertAddress(ctx context.Context, a *store.Address) error {
	s.addresses++
	return s.err
}
func (s *stubMirror) UpsertCustomer(ctx context.Context, c *store.Customer) error {
	s.customers++
	return s.err
}
func (s *stubMirror) UpsertOrder(ctx context.Context, o *store.Order) error {
	s.orders++
	return s.err
}
func (s *stubMirror) UpsertLineItem(ctx context.Context, li *store.LineItem) error {
	s.lineItems++
	return s.err
}
func (s *stubMirror) UpsertLineItemDiscount(ctx context.Context, d *store.LineItemDiscount) error {
	s.liDiscounts++
	return s.err
}
func (s *stubMirror) UpsertAppliedDiscount(ctx context.Context, d *store.AppliedOrderDiscount) error {
	s.appliedCodes++
	return s.err
}
func (s *stubMirror) UpsertReferralData(ctx context.Context, r *store.OrderReferralData) error {
	s.referrals++
	return s.err
}

type stubDiscounts struct {
	pending   map[string]*store.PriceRuleDiscount
	converted []string
}

func (s *stubDiscounts) FindPending(ctx context.Context, code string) (*store.PriceRuleDiscount, error) {
	prd, ok := s.pending[code]
	if !ok || prd.Converted {
		return nil, nil
	}
	cp := *prd
	return &cp, nil
}

func (s *stubDiscounts) MarkConverted(ctx context.Context, code string) error {
	if prd, ok := s.pending[code]; ok {
		prd.Converted = true
	}
	s.converted = append(s.converted, code)
	return nil
}

type stubKickbacks struct {
	rows []*store.Kickback
}

func (s *stubKickbacks) Insert(ctx context.Context, k *store.Kickback) (bool, error) {
	for _, existing := range s.rows {
		if existing.OrderID == k.OrderID && existing.PRDID == k.PRDID {
			return false, nil
		}
	}
	s.rows = append(s.rows, k)
	return true, nil
}

type stubBusinesses struct {
	business *store.Business
	config   *store.DiscountConfiguration
	err      error
}

func (s *stubBusinesses) ByShopifyAddress(ctx context.Context, shopAddress string) (*store.Business, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.business, nil
}

func (s *stubBusinesses) DiscountConfig(ctx context.Context, businessID int64) (*store.DiscountConfiguration, error) {
	return s.config, nil
}

type stubGateway struct {
	chargePrices []string
	deletedRules []int64
	deletedCodes []int64
	deleteOK     bool
}

func (s *stubGateway) CreateUsageCharge(ctx context.Context, racID int64, description, price string) *shopify.UsageCharge {
	s.chargePrices = append(s.chargePrices, price)
	return &shopify.UsageCharge{ID: 900, Description: description, Price: price}
}

func (s *stubGateway) DeletePriceRule(ctx context.Context, priceRuleID int64) bool {
	s.deletedRules = append(s.deletedRules, priceRuleID)
	return s.deleteOK
}

func (s *stubGateway) DeleteDiscountCode(ctx context.Context, priceRuleID, discountID int64) bool {
	s.deletedCodes = append(s.deletedCodes, discountID)
	return s.deleteOK
}

func pendingPRD(code string) *store.PriceRuleDiscount {
	pr := int64(111)
	dc := int64(222)
	return &store.PriceRuleDiscount{
		ID:           1,
		DiscountCode: code,
		BusinessID:   7,
		EndorserID:   3,
		Discount:     decimal.RequireFromString("15.00"),
		PriceRuleID:  &pr,
		DiscountID:   &dc,
	}
}

func money(amount, currency string) MoneySet {
	return MoneySet{
		ShopMoney:        Money{Amount: decimal.RequireFromString(amount), CurrencyCode: currency},
		PresentmentMoney: Money{Amount: decimal.RequireFromString(amount), CurrencyCode: currency},
	}
}

func testOrder(total string, codes ...string) *OrderPayload {
	p := &OrderPayload{
		ID:              5001,
		OrderNumber:     42,
		Currency:        "AUD",
		FinancialStatus: "paid",
		Customer: CustomerPayload{
			ID:             88,
			DefaultAddress: AddressPayload{ID: 99},
		},
		LineItems: []LineItemPayload{
			{
				ID:       200,
				Name:     "Widget",
				Quantity: 2,
				PriceSet: money(total, "AUD"),
				DiscountAllocations: []DiscountAllocation{
					{DiscountApplicationIndex: 0, AmountSet: money("5.00", "AUD")},
				},
			},
		},
		TotalLineItemsPriceSet: money(total, "AUD"),
		TotalPriceSet:          money(total, "AUD"),
		TotalShippingPriceSet:  money("0.00", "AUD"),
		TotalTaxSet:            money("0.00", "AUD"),
	}
	for _, code := range codes {
		p.DiscountCodes = append(p.DiscountCodes, AppliedDiscountCode{
			Code:   code,
			Amount: decimal.RequireFromString("15.00"),
			Type:   "percentage",
		})
	}
	return p
}

func testReconciler(discounts *stubDiscounts, kickbacks *stubKickbacks, businesses *stubBusinesses) (*Reconciler, *stubMirror) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mirror := &stubMirror{}
	charger := billing.NewCharger(billing.NewFixedRates(), notify.NopNotifier{}, "charges", logger)
	r := NewReconciler(mirror, discounts, kickbacks, businesses, charger, 30.0, logger)
	r.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return r, mirror
}

func installedShop(racID *int64) *store.ShopRecord {
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	tok := "tok"
	return &store.ShopRecord{
		ID:          1,
		ShopAddress: "acme.myshopify.com",
		InstallTime: &now,
		AccessToken: &tok,
		RACID:       racID,
	}
}

func TestProcessRecordsKickbackAndBills(t *testing.T) {
	ctx := context.Background()
	discounts := &stubDiscounts{pending: map[string]*store.PriceRuleDiscount{
		"ENDORSE15": pendingPRD("ENDORSE15"),
	}}
	kickbacks := &stubKickbacks{}
	businesses := &stubBusinesses{
		business: &store.Business{ID: 7, ShopifyAddress: "acme.myshopify.com"},
		config:   &store.DiscountConfiguration{BusinessID: 7, EndorserKickbackPercent: 10},
	}
	r, mirror := testReconciler(discounts, kickbacks, businesses)
	gw := &stubGateway{deleteOK: true}
	rac := int64(555)

	err := r.Process(ctx, installedShop(&rac), gw, testOrder("100.00", "ENDORSE15"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(kickbacks.rows) != 1 {
		t.Fatalf("kickbacks = %d, want 1", len(kickbacks.rows))
	}
	k := kickbacks.rows[0]
	if got := k.Kickback.StringFixed(2); got != "10.00" {
		t.Errorf("kickback = %s, want 10.00", got)
	}
	if k.KickbackCurrency != "AUD" {
		t.Errorf("kickback currency = %s, want AUD", k.KickbackCurrency)
	}
	if k.DiscountCurrency != "AUD" {
		t.Errorf("discount currency = %s, want AUD", k.DiscountCurrency)
	}
	if k.PlatformFeePct != 30.0 || k.PaidOutPercent != 0 {
		t.Errorf("fee fields = %v/%v", k.PlatformFeePct, k.PaidOutPercent)
	}

	// 10.00 AUD * 0.78 * 1.003 = 7.82340, billed as 7.82 USD.
	if len(gw.chargePrices) != 1 || gw.chargePrices[0] != "7.82" {
		t.Errorf("charge prices = %v, want [7.82]", gw.chargePrices)
	}

	if len(discounts.converted) != 1 || discounts.converted[0] != "ENDORSE15" {
		t.Errorf("converted = %v", discounts.converted)
	}
	if len(gw.deletedRules) != 1 || gw.deletedRules[0] != 111 {
		t.Errorf("deleted rules = %v", gw.deletedRules)
	}
	if len(gw.deletedCodes) != 1 || gw.deletedCodes[0] != 222 {
		t.Errorf("deleted codes = %v", gw.deletedCodes)
	}

	if mirror.orders != 1 || mirror.customers != 1 || mirror.addresses != 1 ||
		mirror.lineItems != 1 || mirror.liDiscounts != 1 || mirror.appliedCodes != 1 || mirror.referrals != 1 {
		t.Errorf("mirror writes = %+v", mirror)
	}
}

func TestProcessNoMatchPersistsOnly(t *testing.T) {
	ctx := context.Background()
	discounts := &stubDiscounts{pending: map[string]*store.PriceRuleDiscount{}}
	kickbacks := &stubKickbacks{}
	businesses := &stubBusinesses{
		business: &store.Business{ID: 7},
		config:   &store.DiscountConfiguration{BusinessID: 7, EndorserKickbackPercent: 10},
	}
	r, mirror := testReconciler(discounts, kickbacks, businesses)
	gw := &stubGateway{deleteOK: true}

	err := r.Process(ctx, installedShop(nil), gw, testOrder("50.00", "RANDOMCODE"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(kickbacks.rows) != 0 {
		t.Errorf("kickbacks = %d, want 0", len(kickbacks.rows))
	}
	if len(discounts.converted) != 0 {
		t.Errorf("converted = %v, want none", discounts.converted)
	}
	if mirror.orders != 1 {
		t.Errorf("order not persisted")
	}
}

func TestProcessRedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	discounts := &stubDiscounts{pending: map[string]*store.PriceRuleDiscount{
		"ENDORSE15": pendingPRD("ENDORSE15"),
	}}
	kickbacks := &stubKickbacks{}
	businesses := &stubBusinesses{
		business: &store.Business{ID: 7},
		config:   &store.DiscountConfiguration{BusinessID: 7, EndorserKickbackPercent: 10},
	}
	r, _ := testReconciler(discounts, kickbacks, businesses)
	gw := &stubGateway{deleteOK: true}
	rac := int64(555)
	shop := installedShop(&rac)

	if err := r.Process(ctx, shop, gw, testOrder("100.00", "ENDORSE15")); err != nil {
		t.Fatalf("first Process: %v", err)
	}

	// The PRD is now converted; a redelivery finds no pending match.
	if err := r.Process(ctx, shop, gw, testOrder("100.00", "ENDORSE15")); err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if len(kickbacks.rows) != 1 {
		t.Errorf("kickbacks after redelivery = %d, want 1", len(kickbacks.rows))
	}
	if len(gw.chargePrices) != 1 {
		t.Errorf("charges after redelivery = %d, want 1", len(gw.chargePrices))
	}
}

func TestProcessDuplicateKickbackSkipsBilling(t *testing.T) {
	ctx := context.Background()
	discounts := &stubDiscounts{pending: map[string]*store.PriceRuleDiscount{
		"ENDORSE15": pendingPRD("ENDORSE15"),
	}}
	kickbacks := &stubKickbacks{rows: []*store.Kickback{
		{OrderID: 5001, PRDID: "ENDORSE15"},
	}}
	businesses := &stubBusinesses{
		business: &store.Business{ID: 7},
		config:   &store.DiscountConfiguration{BusinessID: 7, EndorserKickbackPercent: 10},
	}
	r, _ := testReconciler(discounts, kickbacks, businesses)
	gw := &stubGateway{deleteOK: true}
	rac := int64(555)

	if err := r.Process(ctx, installedShop(&rac), gw, testOrder("100.00", "ENDORSE15")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(kickbacks.rows) != 1 {
		t.Errorf("kickbacks = %d, want 1", len(kickbacks.rows))
	}
	if len(gw.chargePrices) != 0 {
		t.Errorf("charges = %v, want none for duplicate kickback", gw.chargePrices)
	}
	// The PRD still gets retired.
	if len(discounts.converted) != 1 {
		t.Errorf("converted = %v, want one entry", discounts.converted)
	}
}

func TestProcessWithoutBillingReference(t *testing.T) {
	ctx := context.Background()
	discounts := &stubDiscounts{pending: map[string]*store.PriceRuleDiscount{
		"ENDORSE15": pendingPRD("ENDORSE15"),
	}}
	kickbacks := &stubKickbacks{}
	businesses := &stubBusinesses{
		business: &store.Business{ID: 7},
		config:   &store.DiscountConfiguration{BusinessID: 7, EndorserKickbackPercent: 10},
	}
	r, _ := testReconciler(discounts, kickbacks, businesses)
	gw := &stubGateway{deleteOK: true}

	if err := r.Process(ctx, installedShop(nil), gw, testOrder("100.00", "ENDORSE15")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(kickbacks.rows) != 1 {
		t.Errorf("kickbacks = %d, want 1", len(kickbacks.rows))
	}
	if len(gw.chargePrices) != 0 {
		t.Errorf("charges = %v, want none without rac_id", gw.chargePrices)
	}
}

func TestKickbackRounding(t *testing.T) {
	ctx := context.Background()
	discounts := &stubDiscounts{pending: map[string]*store.PriceRuleDiscount{
		"ENDORSE15": pendingPRD("ENDORSE15"),
	}}
	kickbacks := &stubKickbacks{}
	businesses := &stubBusinesses{
		business: &store.Business{ID: 7},
		config:   &store.DiscountConfiguration{BusinessID: 7, EndorserKickbackPercent: 15},
	}
	r, _ := testReconciler(discounts, kickbacks, businesses)
	gw := &stubGateway{deleteOK: true}

	// 19.99 * 15% = 2.9985, persisted as 3.00.
	if err := r.Process(ctx, installedShop(nil), gw, testOrder("19.99", "ENDORSE15")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := kickbacks.rows[0].Kickback.StringFixed(2); got != "3.00" {
		t.Errorf("kickback = %s, want 3.00", got)
	}
}

func TestFirstPendingMatchUsesPayloadOrder(t *testing.T) {
	ctx := context.Background()
	discounts := &stubDiscounts{pending: map[string]*store.PriceRuleDiscount{
		"FIRST":  pendingPRD("FIRST"),
		"SECOND": pendingPRD("SECOND"),
	}}
	kickbacks := &stubKickbacks{}
	businesses := &stubBusinesses{
		business: &store.Business{ID: 7},
		config:   &store.DiscountConfiguration{BusinessID: 7, EndorserKickbackPercent: 10},
	}
	r, _ := testReconciler(discounts, kickbacks, businesses)
	gw := &stubGateway{deleteOK: true}

	if err := r.Process(ctx, installedShop(nil), gw, testOrder("100.00", "FIRST", "SECOND")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(kickbacks.rows) != 1 || kickbacks.rows[0].PRDID != "FIRST" {
		t.Fatalf("kickbacks = %+v, want exactly one for FIRST", kickbacks.rows)
	}
	if len(discounts.converted) != 1 || discounts.converted[0] != "FIRST" {
		t.Errorf("converted = %v, want [FIRST]", discounts.converted)
	}
}

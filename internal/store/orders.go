package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderStore writes the denormalized order mirror. Every write is an upsert
// keyed by the upstream id so webhook redelivery is a no-op.
type OrderStore struct {
	db *gorm.DB
}

func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

func upsert(ctx context.Context, db *gorm.DB, conflictCols []string, model any, what string) error {
	cols := make([]clause.Column, 0, len(conflictCols))
	for _, c := range conflictCols {
		cols = append(cols, clause.Column{Name: c})
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: cols, UpdateAll: true}).
		Create(model).Error
	if err != nil {
		return fmt.Errorf("upsert %s: %w", what, err)
	}
	return nil
}

func (s *OrderStore) UpsertAddress(ctx context.Context, a *Address) error {
	return upsert(ctx, s.db, []string{"address_id"}, a, "address")
}

func (s *OrderStore) UpsertCustomer(ctx context.Context, c *Customer) error {
	return upsert(ctx, s.db, []string{"customer_id"}, c, "customer")
}

func (s *OrderStore) UpsertOrder(ctx context.Context, o *Order) error {
	return upsert(ctx, s.db, []string{"order_id"}, o, "order")
}

func (s *OrderStore) UpsertLineItem(ctx context.Context, li *LineItem) error {
	return upsert(ctx, s.db, []string{"line_item_id"}, li, "line item")
}

func (s *OrderStore) UpsertLineItemDiscount(ctx context.Context, d *LineItemDiscount) error {
	return upsert(ctx, s.db, []string{"line_item_id", "discount_application_index"}, d, "line item discount")
}

func (s *OrderStore) UpsertAppliedDiscount(ctx context.Context, d *AppliedOrderDiscount) error {
	return upsert(ctx, s.db, []string{"order_id", "applied_discount_number"}, d, "applied order discount")
}

func (s *OrderStore) UpsertReferralData(ctx context.Context, r *OrderReferralData) error {
	return upsert(ctx, s.db, []string{"order_id"}, r, "referral data")
}

// DeleteCustomerData removes a customer and their default address; used for
// GDPR customer redaction. Orders stay, they are business records.
func (s *OrderStore) DeleteCustomerData(ctx context.Context, customerID int64) error {
	var cust Customer
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		First(&cust).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load customer %d for redaction: %w", customerID, err)
	}

	if err := s.db.WithContext(ctx).
		Where("address_id = ?", cust.DefaultAddressID).
		Delete(&Address{}).Error; err != nil {
		return fmt.Errorf("redact address for customer %d: %w", customerID, err)
	}
	if err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Delete(&Customer{}).Error; err != nil {
		return fmt.Errorf("redact customer %d: %w", customerID, err)
	}
	return nil
}

// DeleteShopData removes every mirrored order row belonging to a business;
// used for GDPR shop redaction after uninstall.
func (s *OrderStore) DeleteShopData(ctx context.Context, businessID int64) error {
	var orderIDs []int64
	err := s.db.WithContext(ctx).
		Model(&Order{}).
		Where("business_id = ?", businessID).
		Pluck("order_id", &orderIDs).Error
	if err != nil {
		return fmt.Errorf("list orders for business %d: %w", businessID, err)
	}
	if len(orderIDs) == 0 {
		return nil
	}

	var lineItemIDs []int64
	err = s.db.WithContext(ctx).
		Model(&LineItem{}).
		Where("order_id IN ?", orderIDs).
		Pluck("line_item_id", &lineItemIDs).Error
	if err != nil {
		return fmt.Errorf("list line items for business %d: %w", businessID, err)
	}

	if len(lineItemIDs) > 0 {
		if err := s.db.WithContext(ctx).
			Where("line_item_id IN ?", lineItemIDs).
			Delete(&LineItemDiscount{}).Error; err != nil {
			return fmt.Errorf("redact line item discounts for business %d: %w", businessID, err)
		}
	}
	for _, model := range []any{&LineItem{}, &AppliedOrderDiscount{}, &OrderReferralData{}, &Order{}} {
		if err := s.db.WithContext(ctx).
			Where("order_id IN ?", orderIDs).
			Delete(model).Error; err != nil {
			return fmt.Errorf("redact order data for business %d: %w", businessID, err)
		}
	}
	return nil
}

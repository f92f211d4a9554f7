package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// DiscountStore persists PriceRuleDiscount rows.
type DiscountStore struct {
	db *gorm.DB
}

func NewDiscountStore(db *gorm.DB) *DiscountStore {
	return &DiscountStore{db: db}
}

// FindByCode returns the discount for a code, or (nil, nil) when unknown.
func (s *DiscountStore) FindByCode(ctx context.Context, code string) (*PriceRuleDiscount, error) {
	var prd PriceRuleDiscount
	err := s.db.WithContext(ctx).
		Where("discount_code = ?", code).
		First(&prd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find discount %s: %w", code, err)
	}
	return &prd, nil
}

// FindPending returns the discount for a code only when it is still
// redeemable: not yet converted and already created on Shopify.
func (s *DiscountStore) FindPending(ctx context.Context, code string) (*PriceRuleDiscount, error) {
	var prd PriceRuleDiscount
	err := s.db.WithContext(ctx).
		Where("discount_code = ? AND converted = ? AND price_rule_id IS NOT NULL", code, false).
		First(&prd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending discount %s: %w", code, err)
	}
	return &prd, nil
}

// AssignExternalIDs records the Shopify price rule and discount code ids
// after successful creation on the gateway.
func (s *DiscountStore) AssignExternalIDs(ctx context.Context, code string, priceRuleID, discountID int64) error {
	err := s.db.WithContext(ctx).
		Model(&PriceRuleDiscount{}).
		Where("discount_code = ?", code).
		Updates(map[string]any{
			"price_rule_id": priceRuleID,
			"discount_id":   discountID,
		}).Error
	if err != nil {
		return fmt.Errorf("assign external ids for %s: %w", code, err)
	}
	return nil
}

// MarkConverted flips the converted flag. The flag only ever goes one way.
func (s *DiscountStore) MarkConverted(ctx context.Context, code string) error {
	err := s.db.WithContext(ctx).
		Model(&PriceRuleDiscount{}).
		Where("discount_code = ?", code).
		Update("converted", true).Error
	if err != nil {
		return fmt.Errorf("mark discount %s converted: %w", code, err)
	}
	return nil
}

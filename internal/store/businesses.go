package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound marks lookups of admin-owned rows (businesses, discount
// configuration, users) that must exist for a workflow to proceed.
var ErrNotFound = errors.New("not found")

// BusinessStore reads the admin-owned business tables.
type BusinessStore struct {
	db *gorm.DB
}

func NewBusinessStore(db *gorm.DB) *BusinessStore {
	return &BusinessStore{db: db}
}

func (s *BusinessStore) ByID(ctx context.Context, id int64) (*Business, error) {
	var b Business
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("business %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find business %d: %w", id, err)
	}
	return &b, nil
}

func (s *BusinessStore) ByShopifyAddress(ctx context.Context, shopAddress string) (*Business, error) {
	var b Business
	err := s.db.WithContext(ctx).Where("shopify_address = ?", shopAddress).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("business for shop %s: %w", shopAddress, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find business for shop %s: %w", shopAddress, err)
	}
	return &b, nil
}

// DiscountConfig returns the kickback configuration for a business.
func (s *BusinessStore) DiscountConfig(ctx context.Context, businessID int64) (*DiscountConfiguration, error) {
	var dc DiscountConfiguration
	err := s.db.WithContext(ctx).Where("business_id = ?", businessID).First(&dc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("discount configuration for business %d: %w", businessID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find discount configuration for business %d: %w", businessID, err)
	}
	return &dc, nil
}

// UserByID returns the endorser account.
func (s *BusinessStore) UserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return &u, nil
}

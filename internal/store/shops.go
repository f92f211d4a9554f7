package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ShopStore persists ShopRecord rows. Reads return (nil, nil) when no row
// exists so callers can derive the NOT_KNOWN status without error plumbing.
type ShopStore struct {
	db *gorm.DB
}

func NewShopStore(db *gorm.DB) *ShopStore {
	return &ShopStore{db: db}
}

// Find looks up the record for a normalized shop address.
func (s *ShopStore) Find(ctx context.Context, shopAddress string) (*ShopRecord, error) {
	var rec ShopRecord
	err := s.db.WithContext(ctx).
		Where("shop_address = ?", shopAddress).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find shop %s: %w", shopAddress, err)
	}
	return &rec, nil
}

// Create inserts a fresh record; fails if the address is already taken.
func (s *ShopStore) Create(ctx context.Context, rec *ShopRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create shop %s: %w", rec.ShopAddress, err)
	}
	return nil
}

// Save writes the full record back, including fields reset to NULL.
func (s *ShopStore) Save(ctx context.Context, rec *ShopRecord) error {
	err := s.db.WithContext(ctx).
		Model(&ShopRecord{}).
		Where("shop_address = ?", rec.ShopAddress).
		Select("nonce", "ask_time", "install_time", "uninstall_time",
			"access_token", "needs_rescope", "rac_id").
		Updates(rec).Error
	if err != nil {
		return fmt.Errorf("save shop %s: %w", rec.ShopAddress, err)
	}
	return nil
}

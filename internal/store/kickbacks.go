package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KickbackStore persists endorser kickbacks.
type KickbackStore struct {
	db *gorm.DB
}

func NewKickbackStore(db *gorm.DB) *KickbackStore {
	return &KickbackStore{db: db}
}

// Insert writes one kickback row. The (order_id, prd_id) unique index makes
// redelivered webhooks land on DO NOTHING; the bool reports whether a row
// was actually created.
func (s *KickbackStore) Insert(ctx context.Context, k *Kickback) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "prd_id"}},
			DoNothing: true,
		}).
		Create(k)
	if res.Error != nil {
		return false, fmt.Errorf("insert kickback for order %d: %w", k.OrderID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ForOrder returns all kickbacks recorded against an order.
func (s *KickbackStore) ForOrder(ctx context.Context, orderID int64) ([]Kickback, error) {
	var out []Kickback
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list kickbacks for order %d: %w", orderID, err)
	}
	return out, nil
}

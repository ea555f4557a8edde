package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/branlog/split-payment/model"
)

// Gorm is the Postgres-backed checkout log.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (s *Gorm) Create(ctx context.Context, ck *model.Checkout) error {
	return s.db.WithContext(ctx).Create(ck).Error
}

func (s *Gorm) FindByIntent(ctx context.Context, intentID string) (*model.Checkout, error) {
	var ck model.Checkout
	err := s.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&ck).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ck, nil
}

func (s *Gorm) UpdateStatusByIntent(ctx context.Context, intentID, status string) error {
	return s.db.WithContext(ctx).Model(&model.Checkout{}).
		Where("payment_intent_id = ?", intentID).
		Update("status", status).Error
}

func (s *Gorm) SetOrders(ctx context.Context, ref, status string, paidOrderID, codOrderID int64) error {
	return s.db.WithContext(ctx).Model(&model.Checkout{}).
		Where("ref = ?", ref).
		Updates(map[string]interface{}{
			"status":        status,
			"paid_order_id": paidOrderID,
			"cod_order_id":  codOrderID,
		}).Error
}

// Nop is used when no database is configured; the checkout log is optional
// and must never block a checkout.
type Nop struct{}

func (Nop) Create(context.Context, *model.Checkout) error { return nil }

func (Nop) FindByIntent(context.Context, string) (*model.Checkout, error) { return nil, nil }

func (Nop) UpdateStatusByIntent(context.Context, string, string) error { return nil }

func (Nop) SetOrders(context.Context, string, string, int64, int64) error { return nil }

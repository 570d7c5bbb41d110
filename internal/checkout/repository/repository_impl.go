package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/nftcheckout/internal/checkout/domain"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, order *domain.CheckoutOrder) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) FindByOrder(ctx context.Context, db *gorm.DB, gateway paymentdomain.Gateway, gatewayOrderID string) (*domain.CheckoutOrder, error) {
	var order domain.CheckoutOrder
	err := db.WithContext(ctx).
		Where("gateway = ? AND gateway_order_id = ?", gateway, gatewayOrderID).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkPaid also accepts expired intents: a buyer may complete payment after
// the intent timed out.
func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, gateway paymentdomain.Gateway, gatewayOrderID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE checkout_orders
		 SET status = ?, updated_at = ?
		 WHERE gateway = ? AND gateway_order_id = ? AND status IN (?, ?)`,
		domain.OrderStatusPaid, at, gateway, gatewayOrderID, domain.OrderStatusOpen, domain.OrderStatusExpired,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ExpireOpen(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE checkout_orders
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND expires_at <= ?`,
		domain.OrderStatusExpired, now, domain.OrderStatusOpen, now,
	)
	return res.RowsAffected, res.Error
}

package domain

import (
	"context"
	"time"

	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, order *CheckoutOrder) error
	FindByOrder(ctx context.Context, db *gorm.DB, gateway paymentdomain.Gateway, gatewayOrderID string) (*CheckoutOrder, error)
	MarkPaid(ctx context.Context, db *gorm.DB, gateway paymentdomain.Gateway, gatewayOrderID string, at time.Time) (bool, error)
	ExpireOpen(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}

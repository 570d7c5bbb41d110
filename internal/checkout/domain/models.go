package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
)

type OrderStatus string

const (
	OrderStatusOpen    OrderStatus = "open"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusExpired OrderStatus = "expired"
)

// CheckoutOrder is the buyer context captured when a gateway order is
// created, so confirmations that carry no notes can still find the buyer.
type CheckoutOrder struct {
	ID             snowflake.ID          `gorm:"primaryKey" json:"id"`
	Gateway        paymentdomain.Gateway `gorm:"type:varchar(16);not null" json:"gateway"`
	GatewayOrderID string                `gorm:"not null" json:"gateway_order_id"`
	AssetID        string                `gorm:"not null" json:"asset_id"`
	BuyerEmail     string                `gorm:"not null" json:"buyer_email"`
	BuyerName      string                `json:"buyer_name"`
	BuyerPhone     string                `json:"buyer_phone"`
	BuyerAddress   string                `json:"buyer_address"`
	WalletAddress  string                `json:"wallet_address"`
	Amount         decimal.Decimal       `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency       string                `gorm:"type:varchar(3);not null" json:"currency"`
	Status         OrderStatus           `gorm:"type:varchar(16);not null" json:"status"`
	ExpiresAt      time.Time             `gorm:"not null" json:"expires_at"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func (CheckoutOrder) TableName() string { return "checkout_orders" }

func (o CheckoutOrder) Buyer() paymentdomain.Buyer {
	return paymentdomain.Buyer{
		Email:         o.BuyerEmail,
		Name:          o.BuyerName,
		Phone:         o.BuyerPhone,
		Address:       o.BuyerAddress,
		WalletAddress: o.WalletAddress,
	}
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Lead is a buyer record keyed by normalized email.
type Lead struct {
	ID              snowflake.ID        `gorm:"primaryKey" json:"id"`
	Name            string              `json:"name"`
	Email           string              `gorm:"not null;uniqueIndex" json:"email"`
	Phone           string              `json:"phone,omitempty"`
	Address         string              `json:"address,omitempty"`
	WalletAddress   string              `json:"wallet_address,omitempty"`
	NFTPurchased    string              `gorm:"column:nft_purchased" json:"nft_purchased,omitempty"`
	ContractAddress string              `json:"contract_address,omitempty"`
	PaymentMethod   string              `json:"payment_method,omitempty"`
	PaymentStatus   string              `json:"payment_status,omitempty"`
	TransactionID   string              `json:"transaction_id,omitempty"`
	Amount          decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"amount"`
	Currency        string              `json:"currency,omitempty"`
	PurchasedAt     *time.Time          `json:"purchased_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func (Lead) TableName() string { return "leads" }

type Counts struct {
	Total      int64
	Purchasers int64
}

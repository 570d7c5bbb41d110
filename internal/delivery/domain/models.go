package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusInFlight  Status = "in_flight"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInFlight, StatusDelivered, StatusFailed:
		return true
	default:
		return false
	}
}

// Delivery is the durable unit of work created when a transaction first
// becomes complete. A row in pending or in_flight means the asset is owed.
type Delivery struct {
	ID              snowflake.ID          `gorm:"primaryKey" json:"id"`
	TransactionID   snowflake.ID          `gorm:"not null;uniqueIndex" json:"transaction_id"`
	Gateway         paymentdomain.Gateway `gorm:"type:varchar(16);not null" json:"gateway"`
	GatewayTxnID    string                `gorm:"not null" json:"gateway_txn_id"`
	AssetID         string                `json:"asset_id"`
	BuyerEmail      string                `json:"buyer_email"`
	Amount          decimal.Decimal       `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency        string                `gorm:"type:varchar(3);not null" json:"currency"`
	Status          Status                `gorm:"type:varchar(16);not null" json:"status"`
	Attempts        int                   `gorm:"not null" json:"attempts"`
	LastError       string                `json:"last_error,omitempty"`
	NextAttemptAt   time.Time             `gorm:"not null" json:"next_attempt_at"`
	ClaimedAt       *time.Time            `json:"claimed_at,omitempty"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	ContractAddress string                `json:"contract_address,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func (Delivery) TableName() string { return "deliveries" }

type StatusCount struct {
	Status Status `json:"status"`
	Count  int64  `json:"count"`
}

type ListFilter struct {
	Status Status
}

// MintRequest is the body sent to the mint endpoint. TransactionID doubles
// as the idempotency key.
type MintRequest struct {
	UserEmail     string          `json:"userEmail"`
	NFTID         string          `json:"nftId"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// MarshalJSON writes amount as a JSON number.
func (r MintRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserEmail     string      `json:"userEmail"`
		NFTID         string      `json:"nftId"`
		TransactionID string      `json:"transactionId"`
		Amount        json.Number `json:"amount"`
		Currency      string      `json:"currency"`
	}{
		UserEmail:     r.UserEmail,
		NFTID:         r.NFTID,
		TransactionID: r.TransactionID,
		Amount:        json.Number(r.Amount.Round(2).String()),
		Currency:      r.Currency,
	})
}

type MintResult struct {
	NFTID           string `json:"nftId"`
	TransactionID   string `json:"transactionId"`
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenId,omitempty"`
}

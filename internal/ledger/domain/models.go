package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"gorm.io/datatypes"
)

// Status is the lifecycle state of a transaction. pending may move to
// complete or failed; both of those are final.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

func (s Status) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// StatusFromKind maps a normalized gateway outcome onto a ledger status.
func StatusFromKind(kind paymentdomain.Kind) Status {
	switch kind {
	case paymentdomain.KindCaptured:
		return StatusComplete
	case paymentdomain.KindFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Source records which path reported a status.
type Source string

const (
	SourceWebhook  Source = "webhook"
	SourceRedirect Source = "redirect"
	SourceOperator Source = "operator"
)

type Transaction struct {
	ID              snowflake.ID          `gorm:"primaryKey" json:"id"`
	LeadID          *snowflake.ID         `json:"lead_id,omitempty"`
	Gateway         paymentdomain.Gateway `gorm:"type:text;not null" json:"gateway"`
	GatewayTxnID    string                `gorm:"type:text;not null" json:"gateway_txn_id"`
	GatewayOrderID  string                `gorm:"type:text" json:"gateway_order_id,omitempty"`
	AssetID         string                `gorm:"type:text" json:"asset_id,omitempty"`
	Amount          decimal.Decimal       `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency        string                `gorm:"type:text;not null" json:"currency"`
	Status          Status                `gorm:"type:text;not null" json:"status"`
	GatewayResponse datatypes.JSON        `gorm:"type:jsonb" json:"gateway_response,omitempty"`
	SettledAt       *time.Time            `json:"settled_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

// Audit is one reported status, kept whether or not it changed the row.
type Audit struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	TransactionID  snowflake.ID   `gorm:"not null;index" json:"transaction_id"`
	Source         Source         `gorm:"type:text;not null" json:"source"`
	EventType      string         `gorm:"type:text" json:"event_type"`
	ReportedStatus Status         `gorm:"type:text;not null" json:"reported_status"`
	Applied        bool           `gorm:"not null" json:"applied"`
	Payload        datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (Audit) TableName() string { return "transaction_audits" }

type CurrencyTotal struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
	Count    int64           `json:"count"`
}

type StatusCount struct {
	Status Status `json:"status"`
	Count  int64  `json:"count"`
}

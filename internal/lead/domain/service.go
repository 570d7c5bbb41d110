package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LeadInput carries the fields to merge into a lead. Empty values never
// overwrite stored data. The purchase fields (asset, contract, gateway,
// status, transaction, amount, currency) move as a group and only to a
// purchase that settled later than the one already recorded.
type LeadInput struct {
	Email           string
	Name            string
	Phone           string
	Address         string
	WalletAddress   string
	NFTPurchased    string
	ContractAddress string
	PaymentMethod   string
	PaymentStatus   string
	TransactionID   string
	Amount          *decimal.Decimal
	Currency        string
	PurchasedAt     *time.Time
}

type Stats struct {
	TotalLeads     int64   `json:"total_leads"`
	Purchasers     int64   `json:"purchasers"`
	ConversionRate float64 `json:"conversion_rate"`
}

type Service interface {
	UpsertByEmail(ctx context.Context, input LeadInput) (Lead, error)
	Get(ctx context.Context, email string) (Lead, error)
	Stats(ctx context.Context) (Stats, error)
}

var (
	ErrInvalidEmail = errors.New("invalid_email")
	ErrNotFound     = errors.New("lead_not_found")
	ErrPersistence  = errors.New("lead_persistence_failure")
)

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"github.com/smallbiznis/nftcheckout/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type UpsertRequest struct {
	Gateway        paymentdomain.Gateway
	GatewayTxnID   string
	GatewayOrderID string
	AssetID        string
	Amount         decimal.Decimal
	Currency       string
	Status         Status
	Source         Source
	EventType      string
	// Response is stored on the transaction when the row is created or transitions.
	Response datatypes.JSON
	// AuditPayload is stored on the audit row for every call.
	AuditPayload datatypes.JSON
}

// UpsertResult reports what the call did. Fresh is true for exactly one
// caller per transaction: the one whose write moved it into a terminal state.
type UpsertResult struct {
	Transaction Transaction
	Created     bool
	Fresh       bool
}

func (r UpsertResult) FreshComplete() bool {
	return r.Fresh && r.Transaction.Status == StatusComplete
}

type ListRequest struct {
	Status    string
	Gateway   string
	LeadID    *snowflake.ID
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

type RevenueStats struct {
	Revenue  []CurrencyTotal `json:"revenue"`
	ByStatus []StatusCount   `json:"by_status"`
}

type TransactionDetail struct {
	Transaction Transaction `json:"transaction"`
	Audits      []Audit     `json:"audits"`
}

type Service interface {
	UpsertStatus(ctx context.Context, req UpsertRequest) (UpsertResult, error)
	UpsertStatusTx(ctx context.Context, tx *gorm.DB, req UpsertRequest) (UpsertResult, error)
	AttachLead(ctx context.Context, transactionID, leadID snowflake.ID) error
	Get(ctx context.Context, id snowflake.ID) (Transaction, error)
	FindByGatewayTxn(ctx context.Context, gateway paymentdomain.Gateway, gatewayTxnID string) (TransactionDetail, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	RevenueStats(ctx context.Context) (RevenueStats, error)
}

var (
	ErrInvalidGateway     = errors.New("invalid_gateway")
	ErrInvalidTransaction = errors.New("invalid_gateway_transaction_id")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidSource      = errors.New("invalid_source")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrNotFound           = errors.New("transaction_not_found")
	ErrPersistence        = errors.New("ledger_persistence_failure")
)

// IsInvalidInput reports whether err rejects the request itself, so sending
// it again cannot succeed.
func IsInvalidInput(err error) bool {
	for _, target := range []error{
		ErrInvalidGateway,
		ErrInvalidTransaction,
		ErrInvalidStatus,
		ErrInvalidAmount,
		ErrInvalidCurrency,
		ErrInvalidSource,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

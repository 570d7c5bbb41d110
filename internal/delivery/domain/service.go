package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"github.com/smallbiznis/nftcheckout/pkg/db/pagination"
	"gorm.io/gorm"
)

type EnqueueRequest struct {
	TransactionID snowflake.ID
	Gateway       paymentdomain.Gateway
	GatewayTxnID  string
	AssetID       string
	BuyerEmail    string
	Amount        decimal.Decimal
	Currency      string
}

type Outcome string

const (
	OutcomeDelivered    Outcome = "delivered"
	OutcomeRescheduled  Outcome = "rescheduled"
	OutcomeFailed       Outcome = "failed"
	OutcomeBuyerUnknown Outcome = "buyer_unknown"
	// OutcomeSkipped means another worker owns the delivery or it is already final.
	OutcomeSkipped Outcome = "skipped"
)

type AttemptResult struct {
	Delivery Delivery
	Outcome  Outcome
}

type ListRequest struct {
	Status    string
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Deliveries []Delivery `json:"deliveries"`
}

// Minter assigns the purchased asset to the buyer. Implementations must
// treat TransactionID as an idempotency key.
type Minter interface {
	Mint(ctx context.Context, req MintRequest) (MintResult, error)
}

type Service interface {
	EnqueueTx(ctx context.Context, tx *gorm.DB, req EnqueueRequest) (Delivery, bool, error)
	AttachBuyer(ctx context.Context, tx *gorm.DB, transactionID snowflake.ID, email string) (bool, error)
	Attempt(ctx context.Context, id snowflake.ID) (AttemptResult, error)
	ProcessDue(ctx context.Context, limit int) (int, error)
	RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Retry(ctx context.Context, id snowflake.ID) (Delivery, error)
	Get(ctx context.Context, id snowflake.ID) (Delivery, error)
	FindByTransaction(ctx context.Context, transactionID snowflake.ID) (Delivery, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Stats(ctx context.Context) ([]StatusCount, error)
	Kick()
	Kicks() <-chan struct{}
}

var (
	ErrNotFound          = errors.New("delivery_not_found")
	ErrInvalidRequest    = errors.New("invalid_delivery_request")
	ErrInvalidStatus     = errors.New("invalid_delivery_status")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrNotRetryable      = errors.New("delivery_not_retryable")
	ErrBuyerUnknown      = errors.New("buyer_unknown")
	ErrMintNotConfigured = errors.New("mint_not_configured")
	// ErrMintRejected marks a mint answer that retrying cannot fix.
	ErrMintRejected = errors.New("mint_rejected")
	ErrPersistence  = errors.New("delivery_persistence_failure")
)

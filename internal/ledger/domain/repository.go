package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"github.com/smallbiznis/nftcheckout/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status  Status
	Gateway paymentdomain.Gateway
	LeadID  *snowflake.ID
}

type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, txn *Transaction) (bool, error)
	FindByGatewayTxn(ctx context.Context, db *gorm.DB, gateway paymentdomain.Gateway, gatewayTxnID string) (*Transaction, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	TransitionFromPending(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, response datatypes.JSON, at time.Time) (bool, error)
	SetLeadIfEmpty(ctx context.Context, db *gorm.DB, id, leadID snowflake.ID, at time.Time) (bool, error)
	InsertAudit(ctx context.Context, db *gorm.DB, audit *Audit) error
	ListAudits(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]Audit, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Transaction, error)
	RevenueByCurrency(ctx context.Context, db *gorm.DB) ([]CurrencyTotal, error)
	CountByStatus(ctx context.Context, db *gorm.DB) ([]StatusCount, error)
}

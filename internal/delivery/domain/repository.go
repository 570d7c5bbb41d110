package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nftcheckout/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository methods that change status are conditional on the current
// status and report whether exactly one row moved.
type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, delivery *Delivery) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Delivery, error)
	FindByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (*Delivery, error)
	SetBuyerIfEmpty(ctx context.Context, db *gorm.DB, transactionID snowflake.ID, email string, at time.Time) (bool, error)
	Defer(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, next, at time.Time) (bool, error)
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, contractAddress string, at time.Time) (bool, error)
	Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, next, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, at time.Time) (bool, error)
	Reset(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Delivery, error)
	RecoverStale(ctx context.Context, db *gorm.DB, claimedBefore, at time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Delivery, error)
	CountByStatus(ctx context.Context, db *gorm.DB) ([]StatusCount, error)
}

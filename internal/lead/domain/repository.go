package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, lead *Lead) (bool, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Lead, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	// UpdatePurchase applies fields only while the row still records
	// currentTxnID as its purchase.
	UpdatePurchase(ctx context.Context, db *gorm.DB, id snowflake.ID, currentTxnID string, fields map[string]any) (bool, error)
	Counts(ctx context.Context, db *gorm.DB) (Counts, error)
}

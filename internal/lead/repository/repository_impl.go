package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nftcheckout/internal/lead/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, lead *domain.Lead) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoNothing: true,
		}).
		Create(lead)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Lead, error) {
	var lead domain.Lead
	err := db.WithContext(ctx).Where("email = ?", email).Take(&lead).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) UpdatePurchase(ctx context.Context, db *gorm.DB, id snowflake.ID, currentTxnID string, fields map[string]any) (bool, error) {
	if len(fields) == 0 {
		return false, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("id = ? AND transaction_id = ?", id, currentTxnID).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Counts(ctx context.Context, db *gorm.DB) (domain.Counts, error) {
	var counts domain.Counts
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN nft_purchased <> '' AND payment_status = 'complete' THEN 1 ELSE 0 END), 0) AS purchasers
		 FROM leads`,
	).Scan(&counts).Error
	return counts, err
}

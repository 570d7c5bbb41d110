package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nftcheckout/internal/delivery/domain"
	"github.com/smallbiznis/nftcheckout/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, delivery *domain.Delivery) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(delivery)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Delivery, error) {
	return r.take(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (*domain.Delivery, error) {
	return r.take(db.WithContext(ctx).Where("transaction_id = ?", transactionID))
}

func (r *repo) take(stmt *gorm.DB) (*domain.Delivery, error) {
	var delivery domain.Delivery
	err := stmt.Take(&delivery).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repo) SetBuyerIfEmpty(ctx context.Context, db *gorm.DB, transactionID snowflake.ID, email string, at time.Time) (bool, error) {
	return affectedOne(db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET buyer_email = ?, next_attempt_at = ?, last_error = '', updated_at = ?
		 WHERE transaction_id = ? AND buyer_email = '' AND status = ?`,
		email, at, at, transactionID, domain.StatusPending,
	))
}

// Defer pushes a pending delivery back without counting an attempt.
func (r *repo) Defer(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, next, at time.Time) (bool, error) {
	return affectedOne(db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET last_error = ?, next_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		reason, next, at, id, domain.StatusPending,
	))
}

// Claim makes the caller the single owner of the next attempt.
func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	return affectedOne(db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET status = ?, attempts = attempts + 1, claimed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusInFlight, at, at, id, domain.StatusPending,
	))
}

func (r *repo) MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, contractAddress string, at time.Time) (bool, error) {
	return affectedOne(db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET status = ?, contract_address = ?, last_error = '', delivered_at = ?, claimed_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusDelivered, contractAddress, at, at, id, domain.StatusInFlight,
	))
}

func (r *repo) Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, next, at time.Time) (bool, error) {
	return affectedOne(db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET status = ?, last_error = ?, next_attempt_at = ?, claimed_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusPending, lastError, next, at, id, domain.StatusInFlight,
	))
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, at time.Time) (bool, error) {
	return affectedOne(db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET status = ?, last_error = ?, claimed_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusFailed, lastError, at, id, domain.StatusInFlight,
	))
}

// Reset returns a failed or pending delivery to the queue with a fresh
// attempt budget.
func (r *repo) Reset(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	return affectedOne(db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET status = ?, attempts = 0, last_error = '', next_attempt_at = ?, claimed_at = NULL, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusPending, at, at, id, domain.StatusPending, domain.StatusFailed,
	))
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Delivery, error) {
	var due []domain.Delivery
	err := db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", domain.StatusPending, now).
		Order("next_attempt_at asc, id asc").
		Limit(limit).
		Find(&due).Error
	return due, err
}

func (r *repo) RecoverStale(ctx context.Context, db *gorm.DB, claimedBefore, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE deliveries
		 SET status = ?, next_attempt_at = ?, claimed_at = NULL, last_error = 'claim_expired', updated_at = ?
		 WHERE status = ? AND claimed_at < ?`,
		domain.StatusPending, at, at, domain.StatusInFlight, claimedBefore,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Delivery, error) {
	stmt := db.WithContext(ctx).Model(&domain.Delivery{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		stmt = stmt.Where("id < ?", cursorID)
	}

	var deliveries []*domain.Delivery
	if err := stmt.Order("id desc").Limit(page.Limit() + 1).Find(&deliveries).Error; err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB) ([]domain.StatusCount, error) {
	var counts []domain.StatusCount
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count
		 FROM deliveries
		 GROUP BY status
		 ORDER BY status`,
	).Scan(&counts).Error
	return counts, err
}

func affectedOne(res *gorm.DB) (bool, error) {
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

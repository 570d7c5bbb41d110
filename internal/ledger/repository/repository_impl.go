package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nftcheckout/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"github.com/smallbiznis/nftcheckout/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertIfAbsent reports false when (gateway, gateway_txn_id) already exists.
func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, txn *domain.Transaction) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "gateway"}, {Name: "gateway_txn_id"}},
			DoNothing: true,
		}).
		Create(txn)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByGatewayTxn(ctx context.Context, db *gorm.DB, gateway paymentdomain.Gateway, gatewayTxnID string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := db.WithContext(ctx).
		Where("gateway = ? AND gateway_txn_id = ?", gateway, gatewayTxnID).
		Take(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := db.WithContext(ctx).Where("id = ?", id).Take(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// TransitionFromPending moves a pending row to status. Only one caller can
// observe true for a given row.
func (r *repo) TransitionFromPending(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, response datatypes.JSON, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?, gateway_response = ?, settled_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		response,
		at,
		at,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SetLeadIfEmpty(ctx context.Context, db *gorm.DB, id, leadID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET lead_id = ?, updated_at = ?
		 WHERE id = ? AND lead_id IS NULL`,
		leadID,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertAudit(ctx context.Context, db *gorm.DB, audit *domain.Audit) error {
	return db.WithContext(ctx).Create(audit).Error
}

func (r *repo) ListAudits(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]domain.Audit, error) {
	var audits []domain.Audit
	err := db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at asc, id asc").
		Find(&audits).Error
	return audits, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Transaction, error) {
	stmt := db.WithContext(ctx).Model(&domain.Transaction{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Gateway != "" {
		stmt = stmt.Where("gateway = ?", filter.Gateway)
	}
	if filter.LeadID != nil {
		stmt = stmt.Where("lead_id = ?", *filter.LeadID)
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

	var txns []*domain.Transaction
	err := stmt.
		Order("id desc").
		Limit(page.Limit() + 1).
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repo) RevenueByCurrency(ctx context.Context, db *gorm.DB) ([]domain.CurrencyTotal, error) {
	var totals []domain.CurrencyTotal
	err := db.WithContext(ctx).Raw(
		`SELECT currency, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count
		 FROM transactions
		 WHERE status = ?
		 GROUP BY currency
		 ORDER BY currency`,
		domain.StatusComplete,
	).Scan(&totals).Error
	return totals, err
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB) ([]domain.StatusCount, error) {
	var counts []domain.StatusCount
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count
		 FROM transactions
		 GROUP BY status
		 ORDER BY status`,
	).Scan(&counts).Error
	return counts, err
}

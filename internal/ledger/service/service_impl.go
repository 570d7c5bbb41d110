package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nftcheckout/internal/clock"
	"github.com/smallbiznis/nftcheckout/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/nftcheckout/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"github.com/smallbiznis/nftcheckout/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      c,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) UpsertStatus(ctx context.Context, req domain.UpsertRequest) (domain.UpsertResult, error) {
	var result domain.UpsertResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.UpsertStatusTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return domain.UpsertResult{}, err
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerTransition(ctx, string(result.Transaction.Gateway), string(result.Transaction.Status), result.Fresh)
	}
	return result, nil
}

// UpsertStatusTx records a reported status inside the caller's transaction.
// A duplicate key is treated as already processed. Terminal rows never change.
func (s *Service) UpsertStatusTx(ctx context.Context, tx *gorm.DB, req domain.UpsertRequest) (domain.UpsertResult, error) {
	req, err := normalizeUpsert(req)
	if err != nil {
		return domain.UpsertResult{}, err
	}

	now := s.clock.Now().UTC()
	candidate := domain.Transaction{
		ID:              s.genID.Generate(),
		Gateway:         req.Gateway,
		GatewayTxnID:    req.GatewayTxnID,
		GatewayOrderID:  req.GatewayOrderID,
		AssetID:         req.AssetID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Status:          req.Status,
		GatewayResponse: req.Response,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Status.IsTerminal() {
		settled := now
		candidate.SettledAt = &settled
	}

	inserted, err := s.repo.InsertIfAbsent(ctx, tx, &candidate)
	if err != nil {
		return domain.UpsertResult{}, s.persistenceErr("insert transaction", req, err)
	}

	var result domain.UpsertResult
	applied := false
	if inserted {
		applied = true
		result = domain.UpsertResult{
			Transaction: candidate,
			Created:     true,
			Fresh:       req.Status.IsTerminal(),
		}
	} else {
		existing, err := s.repo.FindByGatewayTxn(ctx, tx, req.Gateway, req.GatewayTxnID)
		if err != nil {
			return domain.UpsertResult{}, s.persistenceErr("load transaction", req, err)
		}
		if existing == nil {
			return domain.UpsertResult{}, s.persistenceErr("load transaction", req, domain.ErrNotFound)
		}
		result.Transaction = *existing

		switch {
		case existing.Status.IsTerminal():
			if req.Status.IsTerminal() && req.Status != existing.Status {
				s.log.Warn("conflicting terminal status ignored",
					zap.String("gateway", string(req.Gateway)),
					zap.String("gateway_txn_id", req.GatewayTxnID),
					zap.String("stored", string(existing.Status)),
					zap.String("reported", string(req.Status)),
				)
			}
		case req.Status.IsTerminal():
			changed, err := s.repo.TransitionFromPending(ctx, tx, existing.ID, req.Status, req.Response, now)
			if err != nil {
				return domain.UpsertResult{}, s.persistenceErr("transition transaction", req, err)
			}
			if changed {
				applied = true
				settled := now
				result.Transaction.Status = req.Status
				result.Transaction.GatewayResponse = req.Response
				result.Transaction.SettledAt = &settled
				result.Transaction.UpdatedAt = now
				result.Fresh = true
			} else if reloaded, err := s.repo.FindByID(ctx, tx, existing.ID); err == nil && reloaded != nil {
				result.Transaction = *reloaded
			}
		}
	}

	audit := domain.Audit{
		ID:             s.genID.Generate(),
		TransactionID:  result.Transaction.ID,
		Source:         req.Source,
		EventType:      req.EventType,
		ReportedStatus: req.Status,
		Applied:        applied,
		Payload:        req.AuditPayload,
		CreatedAt:      now,
	}
	if err := s.repo.InsertAudit(ctx, tx, &audit); err != nil {
		return domain.UpsertResult{}, s.persistenceErr("insert audit", req, err)
	}

	s.log.Debug("transaction status recorded",
		zap.String("gateway", string(req.Gateway)),
		zap.String("gateway_txn_id", req.GatewayTxnID),
		zap.String("reported", string(req.Status)),
		zap.String("stored", string(result.Transaction.Status)),
		zap.Bool("created", result.Created),
		zap.Bool("fresh", result.Fresh),
	)
	return result, nil
}

func (s *Service) AttachLead(ctx context.Context, transactionID, leadID snowflake.ID) error {
	if transactionID == 0 || leadID == 0 {
		return domain.ErrInvalidTransaction
	}
	changed, err := s.repo.SetLeadIfEmpty(ctx, s.db, transactionID, leadID, s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: attach lead: %v", domain.ErrPersistence, err)
	}
	if changed {
		return nil
	}
	existing, err := s.repo.FindByID(ctx, s.db, transactionID)
	if err != nil {
		return fmt.Errorf("%w: attach lead: %v", domain.ErrPersistence, err)
	}
	if existing == nil {
		return domain.ErrNotFound
	}
	if existing.LeadID != nil && *existing.LeadID != leadID {
		s.log.Warn("transaction already linked to another lead",
			zap.String("transaction_id", transactionID.String()),
			zap.String("lead_id", existing.LeadID.String()),
		)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Transaction, error) {
	txn, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if txn == nil {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return *txn, nil
}

func (s *Service) FindByGatewayTxn(ctx context.Context, gateway paymentdomain.Gateway, gatewayTxnID string) (domain.TransactionDetail, error) {
	gatewayTxnID = strings.TrimSpace(gatewayTxnID)
	if gatewayTxnID == "" {
		return domain.TransactionDetail{}, domain.ErrInvalidTransaction
	}
	txn, err := s.repo.FindByGatewayTxn(ctx, s.db, gateway, gatewayTxnID)
	if err != nil {
		return domain.TransactionDetail{}, err
	}
	if txn == nil {
		return domain.TransactionDetail{}, domain.ErrNotFound
	}
	audits, err := s.repo.ListAudits(ctx, s.db, txn.ID)
	if err != nil {
		return domain.TransactionDetail{}, err
	}
	return domain.TransactionDetail{Transaction: *txn, Audits: audits}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{LeadID: req.LeadID}
	if status := strings.ToLower(strings.TrimSpace(req.Status)); status != "" {
		filter.Status = domain.Status(status)
		if !filter.Status.Valid() {
			return domain.ListResponse{}, domain.ErrInvalidStatus
		}
	}
	if gateway := strings.TrimSpace(req.Gateway); gateway != "" {
		parsed, err := paymentdomain.ParseGateway(gateway)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidGateway
		}
		filter.Gateway = parsed
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, pageInfo := pagination.Page(items, page.Limit(), func(t *domain.Transaction) string {
		return t.ID.String()
	})
	out := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return domain.ListResponse{PageInfo: pageInfo, Transactions: out}, nil
}

func (s *Service) RevenueStats(ctx context.Context) (domain.RevenueStats, error) {
	revenue, err := s.repo.RevenueByCurrency(ctx, s.db)
	if err != nil {
		return domain.RevenueStats{}, err
	}
	counts, err := s.repo.CountByStatus(ctx, s.db)
	if err != nil {
		return domain.RevenueStats{}, err
	}
	return domain.RevenueStats{Revenue: revenue, ByStatus: counts}, nil
}

func (s *Service) persistenceErr(op string, req domain.UpsertRequest, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.log.Error("ledger write failed",
		zap.String("op", op),
		zap.String("gateway", string(req.Gateway)),
		zap.String("gateway_txn_id", req.GatewayTxnID),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}

func normalizeUpsert(req domain.UpsertRequest) (domain.UpsertRequest, error) {
	gateway, err := paymentdomain.ParseGateway(string(req.Gateway))
	if err != nil {
		return req, domain.ErrInvalidGateway
	}
	req.Gateway = gateway

	req.GatewayTxnID = strings.TrimSpace(req.GatewayTxnID)
	if req.GatewayTxnID == "" {
		return req, domain.ErrInvalidTransaction
	}
	req.GatewayOrderID = strings.TrimSpace(req.GatewayOrderID)
	req.AssetID = strings.TrimSpace(req.AssetID)

	if !req.Status.Valid() {
		return req, domain.ErrInvalidStatus
	}
	switch req.Source {
	case domain.SourceWebhook, domain.SourceRedirect, domain.SourceOperator:
	default:
		return req, domain.ErrInvalidSource
	}

	if req.Amount.IsNegative() {
		return req, domain.ErrInvalidAmount
	}
	req.Amount = req.Amount.Round(2)

	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(req.Currency) != 3 {
		return req, domain.ErrInvalidCurrency
	}

	if len(req.Response) == 0 {
		req.Response = datatypes.JSON("{}")
	}
	if len(req.AuditPayload) == 0 {
		req.AuditPayload = datatypes.JSON("{}")
	}
	return req, nil
}

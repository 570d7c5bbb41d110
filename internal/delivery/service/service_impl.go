package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/nftcheckout/internal/clock"
	"github.com/smallbiznis/nftcheckout/internal/config"
	"github.com/smallbiznis/nftcheckout/internal/delivery/domain"
	"github.com/smallbiznis/nftcheckout/internal/events"
	leaddomain "github.com/smallbiznis/nftcheckout/internal/lead/domain"
	obsmetrics "github.com/smallbiznis/nftcheckout/internal/observability/metrics"
	"github.com/smallbiznis/nftcheckout/internal/providers/email"
	"github.com/smallbiznis/nftcheckout/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxErrorLength = 512
	// Budget for recording an attempt's outcome once the mint returns.
	bookkeepingTimeout = 5 * time.Second
	defaultMintTimeout = 15 * time.Second
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Minter     domain.Minter
	Policy     *config.PolicyHolder
	Clock      clock.Clock
	Config     config.Config       `optional:"true"`
	Leads      leaddomain.Service  `optional:"true"`
	Publisher  events.Publisher    `optional:"true"`
	Email      email.Provider      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	minter     domain.Minter
	policy     *config.PolicyHolder
	clock      clock.Clock
	leads      leaddomain.Service
	publisher  events.Publisher
	email      email.Provider
	obsMetrics *obsmetrics.Metrics

	// attemptBudget is the least time left on a context for ProcessDue to
	// start another attempt.
	attemptBudget time.Duration

	kicks chan struct{}
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	mintTimeout := p.Config.Mint.Timeout
	if mintTimeout <= 0 {
		mintTimeout = defaultMintTimeout
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("delivery.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		minter:     p.Minter,
		policy:     p.Policy,
		clock:      c,
		leads:      p.Leads,
		publisher:  publisher,
		email:      p.Email,
		obsMetrics: p.ObsMetrics,
		kicks:      make(chan struct{}, 1),

		attemptBudget: mintTimeout + bookkeepingTimeout,
	}
}

// EnqueueTx records that the asset for a completed transaction is owed.
// It must run in the same database transaction as the ledger transition.
func (s *Service) EnqueueTx(ctx context.Context, tx *gorm.DB, req domain.EnqueueRequest) (domain.Delivery, bool, error) {
	if req.TransactionID == 0 || strings.TrimSpace(req.GatewayTxnID) == "" {
		return domain.Delivery{}, false, domain.ErrInvalidRequest
	}

	now := s.clock.Now().UTC()
	candidate := domain.Delivery{
		ID:            s.genID.Generate(),
		TransactionID: req.TransactionID,
		Gateway:       req.Gateway,
		GatewayTxnID:  strings.TrimSpace(req.GatewayTxnID),
		AssetID:       strings.TrimSpace(req.AssetID),
		BuyerEmail:    strings.ToLower(strings.TrimSpace(req.BuyerEmail)),
		Amount:        req.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
		Status:        domain.StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inserted, err := s.repo.InsertIfAbsent(ctx, tx, &candidate)
	if err != nil {
		return domain.Delivery{}, false, fmt.Errorf("%w: enqueue: %v", domain.ErrPersistence, err)
	}
	if inserted {
		s.log.Info("delivery enqueued",
			zap.String("delivery_id", candidate.ID.String()),
			zap.String("transaction_id", req.TransactionID.String()),
			zap.String("asset_id", candidate.AssetID),
			zap.Bool("buyer_known", candidate.BuyerEmail != ""),
		)
		return candidate, true, nil
	}

	existing, err := s.repo.FindByTransaction(ctx, tx, req.TransactionID)
	if err != nil {
		return domain.Delivery{}, false, fmt.Errorf("%w: enqueue: %v", domain.ErrPersistence, err)
	}
	if existing == nil {
		return domain.Delivery{}, false, fmt.Errorf("%w: enqueue: row vanished", domain.ErrPersistence)
	}
	return *existing, false, nil
}

// AttachBuyer fills in the buyer email of a pending delivery that was
// enqueued without one and makes it due immediately.
func (s *Service) AttachBuyer(ctx context.Context, tx *gorm.DB, transactionID snowflake.ID, buyerEmail string) (bool, error) {
	buyerEmail = strings.ToLower(strings.TrimSpace(buyerEmail))
	if transactionID == 0 || buyerEmail == "" {
		return false, nil
	}
	if tx == nil {
		tx = s.db
	}
	changed, err := s.repo.SetBuyerIfEmpty(ctx, tx, transactionID, buyerEmail, s.clock.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("%w: attach buyer: %v", domain.ErrPersistence, err)
	}
	return changed, nil
}

// Attempt runs one mint attempt for a delivery. Failures are recorded on
// the delivery and never returned as errors; only persistence problems are.
func (s *Service) Attempt(ctx context.Context, id snowflake.ID) (domain.AttemptResult, error) {
	delivery, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.AttemptResult{}, fmt.Errorf("%w: load: %v", domain.ErrPersistence, err)
	}
	if delivery == nil {
		return domain.AttemptResult{}, domain.ErrNotFound
	}
	if delivery.Status != domain.StatusPending {
		return domain.AttemptResult{Delivery: *delivery, Outcome: domain.OutcomeSkipped}, nil
	}

	policy := s.policy.Get().Delivery
	now := s.clock.Now().UTC()

	if delivery.BuyerEmail == "" {
		next := now.Add(policy.MaxBackoff)
		reason := domain.ErrBuyerUnknown.Error()
		if _, err := s.repo.Defer(ctx, s.db, id, reason, next, now); err != nil {
			return domain.AttemptResult{}, fmt.Errorf("%w: defer: %v", domain.ErrPersistence, err)
		}
		delivery.LastError = reason
		delivery.NextAttemptAt = next
		s.record(ctx, domain.OutcomeBuyerUnknown)
		s.log.Warn("delivery waiting for buyer email",
			zap.String("delivery_id", id.String()),
			zap.String("gateway_txn_id", delivery.GatewayTxnID),
		)
		return domain.AttemptResult{Delivery: *delivery, Outcome: domain.OutcomeBuyerUnknown}, nil
	}

	claimed, err := s.repo.Claim(ctx, s.db, id, now)
	if err != nil {
		return domain.AttemptResult{}, fmt.Errorf("%w: claim: %v", domain.ErrPersistence, err)
	}
	if !claimed {
		return domain.AttemptResult{Delivery: *delivery, Outcome: domain.OutcomeSkipped}, nil
	}
	delivery.Status = domain.StatusInFlight
	delivery.Attempts++
	delivery.ClaimedAt = &now

	result, mintErr := s.minter.Mint(ctx, domain.MintRequest{
		UserEmail:     delivery.BuyerEmail,
		NFTID:         delivery.AssetID,
		TransactionID: delivery.GatewayTxnID,
		Amount:        delivery.Amount,
		Currency:      delivery.Currency,
	})

	// The mint may have consumed the caller's deadline; the outcome is
	// recorded regardless.
	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	done := s.clock.Now().UTC()
	if mintErr == nil {
		if _, err := s.repo.MarkDelivered(bookCtx, s.db, id, result.ContractAddress, done); err != nil {
			return domain.AttemptResult{}, fmt.Errorf("%w: mark delivered: %v", domain.ErrPersistence, err)
		}
		delivery.Status = domain.StatusDelivered
		delivery.ContractAddress = result.ContractAddress
		delivery.DeliveredAt = &done
		delivery.ClaimedAt = nil
		delivery.LastError = ""
		s.record(ctx, domain.OutcomeDelivered)
		s.log.Info("nft delivered",
			zap.String("delivery_id", id.String()),
			zap.String("gateway_txn_id", delivery.GatewayTxnID),
			zap.String("asset_id", delivery.AssetID),
			zap.Int("attempts", delivery.Attempts),
		)
		s.afterDelivery(bookCtx, *delivery)
		return domain.AttemptResult{Delivery: *delivery, Outcome: domain.OutcomeDelivered}, nil
	}

	lastErr := truncate(mintErr.Error())
	delivery.ClaimedAt = nil
	delivery.LastError = lastErr
	if delivery.Attempts >= policy.MaxAttempts || errors.Is(mintErr, domain.ErrMintRejected) {
		if _, err := s.repo.MarkFailed(bookCtx, s.db, id, lastErr, done); err != nil {
			return domain.AttemptResult{}, fmt.Errorf("%w: mark failed: %v", domain.ErrPersistence, err)
		}
		delivery.Status = domain.StatusFailed
		s.record(ctx, domain.OutcomeFailed)
		s.log.Error("delivery failed permanently",
			zap.String("delivery_id", id.String()),
			zap.String("gateway_txn_id", delivery.GatewayTxnID),
			zap.Int("attempts", delivery.Attempts),
			zap.Error(mintErr),
		)
		return domain.AttemptResult{Delivery: *delivery, Outcome: domain.OutcomeFailed}, nil
	}

	next := done.Add(RetryDelay(policy, delivery.Attempts))
	if _, err := s.repo.Reschedule(bookCtx, s.db, id, lastErr, next, done); err != nil {
		return domain.AttemptResult{}, fmt.Errorf("%w: reschedule: %v", domain.ErrPersistence, err)
	}
	delivery.Status = domain.StatusPending
	delivery.NextAttemptAt = next
	s.record(ctx, domain.OutcomeRescheduled)
	s.log.Warn("delivery attempt failed",
		zap.String("delivery_id", id.String()),
		zap.String("gateway_txn_id", delivery.GatewayTxnID),
		zap.Int("attempts", delivery.Attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(mintErr),
	)
	return domain.AttemptResult{Delivery: *delivery, Outcome: domain.OutcomeRescheduled}, nil
}

// ProcessDue attempts up to limit due deliveries and returns how many were tried.
func (s *Service) ProcessDue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = s.policy.Get().Delivery.BatchSize
	}
	due, err := s.repo.ListDue(ctx, s.db, s.clock.Now().UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("%w: list due: %v", domain.ErrPersistence, err)
	}

	var errs []error
	processed := 0
	for i, item := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < s.attemptBudget {
			s.log.Info("deferring due deliveries to the next sweep",
				zap.Int("remaining", len(due)-i),
				zap.Duration("time_left", time.Until(deadline)),
			)
			break
		}
		if _, err := s.Attempt(ctx, item.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}

func (s *Service) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = s.policy.Get().Delivery.StaleAfter
	}
	now := s.clock.Now().UTC()
	recovered, err := s.repo.RecoverStale(ctx, s.db, now.Add(-olderThan), now)
	if err != nil {
		return 0, fmt.Errorf("%w: recover stale: %v", domain.ErrPersistence, err)
	}
	if recovered > 0 {
		s.log.Warn("recovered stale delivery claims", zap.Int64("count", recovered))
	}
	return recovered, nil
}

// Retry is the operator action: a failed or pending delivery gets a fresh
// attempt budget and becomes due now.
func (s *Service) Retry(ctx context.Context, id snowflake.ID) (domain.Delivery, error) {
	changed, err := s.repo.Reset(ctx, s.db, id, s.clock.Now().UTC())
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("%w: reset: %v", domain.ErrPersistence, err)
	}
	delivery, err := s.Get(ctx, id)
	if err != nil {
		return domain.Delivery{}, err
	}
	if !changed {
		return delivery, domain.ErrNotRetryable
	}
	s.log.Info("delivery retry requested", zap.String("delivery_id", id.String()))
	s.Kick()
	return delivery, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Delivery, error) {
	delivery, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("%w: load: %v", domain.ErrPersistence, err)
	}
	if delivery == nil {
		return domain.Delivery{}, domain.ErrNotFound
	}
	return *delivery, nil
}

func (s *Service) FindByTransaction(ctx context.Context, transactionID snowflake.ID) (domain.Delivery, error) {
	delivery, err := s.repo.FindByTransaction(ctx, s.db, transactionID)
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("%w: load: %v", domain.ErrPersistence, err)
	}
	if delivery == nil {
		return domain.Delivery{}, domain.ErrNotFound
	}
	return *delivery, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{}
	if status := strings.ToLower(strings.TrimSpace(req.Status)); status != "" {
		filter.Status = domain.Status(status)
		if !filter.Status.Valid() {
			return domain.ListResponse{}, domain.ErrInvalidStatus
		}
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, info := pagination.Page(items, page.Limit(), func(d *domain.Delivery) string {
		return d.ID.String()
	})
	out := make([]domain.Delivery, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return domain.ListResponse{PageInfo: info, Deliveries: out}, nil
}

func (s *Service) Stats(ctx context.Context) ([]domain.StatusCount, error) {
	return s.repo.CountByStatus(ctx, s.db)
}

// Kick wakes the delivery worker without blocking.
func (s *Service) Kick() {
	select {
	case s.kicks <- struct{}{}:
	default:
	}
}

func (s *Service) Kicks() <-chan struct{} {
	return s.kicks
}

func (s *Service) afterDelivery(ctx context.Context, delivery domain.Delivery) {
	buyerName := ""
	if s.leads != nil {
		amount := delivery.Amount
		lead, err := s.leads.UpsertByEmail(ctx, leaddomain.LeadInput{
			Email:           delivery.BuyerEmail,
			NFTPurchased:    delivery.AssetID,
			ContractAddress: delivery.ContractAddress,
			TransactionID:   delivery.GatewayTxnID,
			PaymentMethod:   string(delivery.Gateway),
			PaymentStatus:   "complete",
			Amount:          &amount,
			Currency:        delivery.Currency,
		})
		if err != nil {
			s.log.Warn("failed to record contract address on lead",
				zap.String("delivery_id", delivery.ID.String()),
				zap.Error(err),
			)
		} else {
			buyerName = lead.Name
		}
	}

	event := events.Event{
		Type:       events.EventNFTDelivered,
		Key:        delivery.AssetID,
		OccurredAt: s.clock.Now().UTC(),
		Payload: map[string]any{
			"delivery_id":      delivery.ID.String(),
			"transaction_id":   delivery.TransactionID.String(),
			"gateway":          delivery.Gateway,
			"gateway_txn_id":   delivery.GatewayTxnID,
			"asset_id":         delivery.AssetID,
			"buyer_email":      delivery.BuyerEmail,
			"contract_address": delivery.ContractAddress,
		},
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("failed to publish delivery event", zap.String("delivery_id", delivery.ID.String()), zap.Error(err))
	}

	err := email.SendReceipt(ctx, s.email, email.Receipt{
		To:              delivery.BuyerEmail,
		BuyerName:       buyerName,
		AssetID:         delivery.AssetID,
		ContractAddress: delivery.ContractAddress,
		TransactionID:   delivery.GatewayTxnID,
		Amount:          delivery.Amount,
		Currency:        delivery.Currency,
	})
	if err != nil {
		s.log.Warn("failed to send receipt", zap.String("delivery_id", delivery.ID.String()), zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, outcome domain.Outcome) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordDeliveryAttempt(ctx, string(outcome))
	}
}

// RetryDelay is the wait after the given number of failed attempts:
// BaseBackoff doubled per attempt and capped at MaxBackoff.
func RetryDelay(policy config.DeliveryPolicy, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     policy.BaseBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         policy.MaxBackoff,
	}
	b.Reset()
	var delay time.Duration
	for i := 0; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func truncate(msg string) string {
	if len(msg) <= maxErrorLength {
		return msg
	}
	return msg[:maxErrorLength]
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nftcheckout/internal/clock"
	"github.com/smallbiznis/nftcheckout/internal/lead/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultMaxTries        = 4
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 2 * time.Second
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock

	maxTries        uint
	initialInterval time.Duration
}

func New(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("lead.service"),
		genID:           p.GenID,
		repo:            p.Repo,
		clock:           c,
		maxTries:        defaultMaxTries,
		initialInterval: defaultInitialInterval,
	}
}

// UpsertByEmail creates or merges the lead for input.Email, retrying
// transient database failures with exponential backoff.
func (s *Service) UpsertByEmail(ctx context.Context, input domain.LeadInput) (domain.Lead, error) {
	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return domain.Lead{}, err
	}
	input.Email = email

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initialInterval
	policy.MaxInterval = defaultMaxInterval

	attempt := 0
	lead, err := backoff.Retry(ctx, func() (domain.Lead, error) {
		attempt++
		lead, err := s.upsertOnce(ctx, input)
		if err == nil {
			return lead, nil
		}
		if errors.Is(err, domain.ErrInvalidEmail) {
			return domain.Lead{}, backoff.Permanent(err)
		}
		s.log.Warn("lead upsert attempt failed",
			zap.Int("attempt", attempt),
			zap.String("transaction_id", input.TransactionID),
			zap.Error(err),
		)
		return domain.Lead{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(s.maxTries))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEmail) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Lead{}, err
		}
		return domain.Lead{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return lead, nil
}

func (s *Service) upsertOnce(ctx context.Context, input domain.LeadInput) (domain.Lead, error) {
	now := s.clock.Now().UTC()
	candidate := domain.Lead{
		ID:              s.genID.Generate(),
		Email:           input.Email,
		Name:            strings.TrimSpace(input.Name),
		Phone:           strings.TrimSpace(input.Phone),
		Address:         strings.TrimSpace(input.Address),
		WalletAddress:   strings.TrimSpace(input.WalletAddress),
		NFTPurchased:    strings.TrimSpace(input.NFTPurchased),
		ContractAddress: strings.TrimSpace(input.ContractAddress),
		PaymentMethod:   strings.TrimSpace(input.PaymentMethod),
		PaymentStatus:   strings.TrimSpace(input.PaymentStatus),
		TransactionID:   strings.TrimSpace(input.TransactionID),
		Currency:        strings.ToUpper(strings.TrimSpace(input.Currency)),
		PurchasedAt:     utcTime(input.PurchasedAt),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if input.Amount != nil {
		candidate.Amount = decimal.NullDecimal{Decimal: input.Amount.Round(2), Valid: true}
	}

	inserted, err := s.repo.InsertIfAbsent(ctx, s.db, &candidate)
	if err != nil {
		return domain.Lead{}, err
	}
	if inserted {
		return candidate, nil
	}
	existing, err := s.repo.FindByEmail(ctx, s.db, input.Email)
	if err != nil {
		return domain.Lead{}, err
	}
	if existing == nil {
		return domain.Lead{}, fmt.Errorf("lead %s vanished after conflict", input.Email)
	}

	if fields := identityFields(existing, candidate); len(fields) > 0 {
		fields["updated_at"] = now
		if err := s.repo.Update(ctx, s.db, existing.ID, fields); err != nil {
			return domain.Lead{}, err
		}
		applyFields(existing, fields)
		existing.UpdatedAt = now
	}

	if fields := purchaseFields(existing, candidate); len(fields) > 0 {
		fields["updated_at"] = now
		applied, err := s.repo.UpdatePurchase(ctx, s.db, existing.ID, existing.TransactionID, fields)
		if err != nil {
			return domain.Lead{}, err
		}
		if !applied {
			return domain.Lead{}, errPurchaseMoved
		}
		applyFields(existing, fields)
		existing.UpdatedAt = now
	}
	return *existing, nil
}

var errPurchaseMoved = errors.New("lead purchase changed concurrently")

// identityFields fills contact fields only where the stored lead has none.
func identityFields(existing *domain.Lead, in domain.Lead) map[string]any {
	fields := map[string]any{}
	fill := func(column, stored, incoming string) {
		if incoming != "" && stored == "" {
			fields[column] = incoming
		}
	}
	fill("name", existing.Name, in.Name)
	fill("phone", existing.Phone, in.Phone)
	fill("address", existing.Address, in.Address)
	fill("wallet_address", existing.WalletAddress, in.WalletAddress)
	return fields
}

// purchaseFields decides how much of the incoming purchase lands on the
// lead. The same transaction may complete its own record; a different one
// replaces it only when it settled later. Replays of older payments change
// nothing.
func purchaseFields(existing *domain.Lead, in domain.Lead) map[string]any {
	if in.TransactionID == "" {
		return nil
	}
	fields := map[string]any{}
	if in.TransactionID == existing.TransactionID {
		overwrite := func(column, stored, incoming string) {
			if incoming != "" && incoming != stored {
				fields[column] = incoming
			}
		}
		overwrite("nft_purchased", existing.NFTPurchased, in.NFTPurchased)
		overwrite("contract_address", existing.ContractAddress, in.ContractAddress)
		overwrite("payment_method", existing.PaymentMethod, in.PaymentMethod)
		overwrite("payment_status", existing.PaymentStatus, in.PaymentStatus)
		overwrite("currency", existing.Currency, in.Currency)
		if in.Amount.Valid && (!existing.Amount.Valid || !existing.Amount.Decimal.Equal(in.Amount.Decimal)) {
			fields["amount"] = in.Amount
		}
		if existing.PurchasedAt == nil && in.PurchasedAt != nil {
			fields["purchased_at"] = in.PurchasedAt
		}
		return fields
	}
	if existing.TransactionID != "" && !settledLater(existing.PurchasedAt, in.PurchasedAt) {
		return nil
	}
	fields["nft_purchased"] = in.NFTPurchased
	fields["contract_address"] = in.ContractAddress
	fields["payment_method"] = in.PaymentMethod
	fields["payment_status"] = in.PaymentStatus
	fields["transaction_id"] = in.TransactionID
	fields["amount"] = in.Amount
	fields["currency"] = in.Currency
	fields["purchased_at"] = in.PurchasedAt
	return fields
}

func settledLater(stored, incoming *time.Time) bool {
	if incoming == nil {
		return false
	}
	return stored == nil || incoming.After(*stored)
}

func applyFields(lead *domain.Lead, fields map[string]any) {
	for column, value := range fields {
		switch column {
		case "name":
			lead.Name = value.(string)
		case "phone":
			lead.Phone = value.(string)
		case "address":
			lead.Address = value.(string)
		case "wallet_address":
			lead.WalletAddress = value.(string)
		case "nft_purchased":
			lead.NFTPurchased = value.(string)
		case "contract_address":
			lead.ContractAddress = value.(string)
		case "payment_method":
			lead.PaymentMethod = value.(string)
		case "payment_status":
			lead.PaymentStatus = value.(string)
		case "transaction_id":
			lead.TransactionID = value.(string)
		case "currency":
			lead.Currency = value.(string)
		case "amount":
			lead.Amount = value.(decimal.NullDecimal)
		case "purchased_at":
			lead.PurchasedAt = value.(*time.Time)
		}
	}
}

func (s *Service) Get(ctx context.Context, email string) (domain.Lead, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return domain.Lead{}, err
	}
	lead, err := s.repo.FindByEmail(ctx, s.db, normalized)
	if err != nil {
		return domain.Lead{}, err
	}
	if lead == nil {
		return domain.Lead{}, domain.ErrNotFound
	}
	return *lead, nil
}

func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	counts, err := s.repo.Counts(ctx, s.db)
	if err != nil {
		return domain.Stats{}, err
	}
	stats := domain.Stats{TotalLeads: counts.Total, Purchasers: counts.Purchasers}
	if counts.Total > 0 {
		stats.ConversionRate = float64(counts.Purchasers) / float64(counts.Total)
	}
	return stats, nil
}

func utcTime(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// NormalizeEmail trims, parses and lower-cases an address.
func NormalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", domain.ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nftcheckout/internal/clock"
	"github.com/smallbiznis/nftcheckout/internal/ledger/domain"
	"github.com/smallbiznis/nftcheckout/internal/ledger/repository"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"github.com/smallbiznis/nftcheckout/internal/testutil/sqlitedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db := sqlitedb.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: fake,
	})
	return svc, db, fake
}

func razorpayRequest(status domain.Status) domain.UpsertRequest {
	return domain.UpsertRequest{
		Gateway:        paymentdomain.GatewayRazorpay,
		GatewayTxnID:   "pay_R1",
		GatewayOrderID: "order_R1",
		AssetID:        "7",
		Amount:         decimal.New(4900, -2),
		Currency:       "inr",
		Status:         status,
		Source:         domain.SourceWebhook,
		EventType:      "payment.captured",
	}
}

func countAudits(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&domain.Audit{}).Count(&count).Error)
	return count
}

func countTransactions(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&domain.Transaction{}).Count(&count).Error)
	return count
}

func TestUpsertStatusReplayIsIdempotent(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.UpsertStatus(ctx, razorpayRequest(domain.StatusComplete))
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.True(t, first.Fresh)
	assert.True(t, first.FreshComplete())
	assert.Equal(t, "49.00", first.Transaction.Amount.StringFixed(2))
	assert.Equal(t, "INR", first.Transaction.Currency)
	require.NotNil(t, first.Transaction.SettledAt)

	second, err := svc.UpsertStatus(ctx, razorpayRequest(domain.StatusComplete))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.False(t, second.Fresh)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	assert.Equal(t, int64(1), countTransactions(t, db))
	assert.Equal(t, int64(2), countAudits(t, db))
}

func TestUpsertStatusPendingThenComplete(t *testing.T) {
	svc, _, fake := newTestService(t)
	ctx := context.Background()

	pending, err := svc.UpsertStatus(ctx, razorpayRequest(domain.StatusPending))
	require.NoError(t, err)
	assert.True(t, pending.Created)
	assert.False(t, pending.Fresh)
	assert.Nil(t, pending.Transaction.SettledAt)

	fake.Advance(time.Minute)
	complete, err := svc.UpsertStatus(ctx, razorpayRequest(domain.StatusComplete))
	require.NoError(t, err)
	assert.False(t, complete.Created)
	assert.True(t, complete.Fresh)
	assert.Equal(t, domain.StatusComplete, complete.Transaction.Status)

	detail, err := svc.FindByGatewayTxn(ctx, paymentdomain.GatewayRazorpay, "pay_R1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, detail.Transaction.Status)
	require.Len(t, detail.Audits, 2)
	assert.True(t, detail.Audits[0].Applied)
	assert.True(t, detail.Audits[1].Applied)
}

func TestTerminalStatusNeverChanges(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertStatus(ctx, razorpayRequest(domain.StatusComplete))
	require.NoError(t, err)

	for _, status := range []domain.Status{domain.StatusFailed, domain.StatusPending} {
		result, err := svc.UpsertStatus(ctx, razorpayRequest(status))
		require.NoError(t, err)
		assert.False(t, result.Fresh)
		assert.Equal(t, domain.StatusComplete, result.Transaction.Status)
	}

	detail, err := svc.FindByGatewayTxn(ctx, paymentdomain.GatewayRazorpay, "pay_R1")
	require.NoError(t, err)
	require.Len(t, detail.Audits, 3)
	assert.False(t, detail.Audits[1].Applied)
	assert.False(t, detail.Audits[2].Applied)
}

func TestConcurrentUpsertHasSingleFreshWinner(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan domain.UpsertResult, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := razorpayRequest(domain.StatusComplete)
			if i%2 == 0 {
				req.Source = domain.SourceRedirect
			}
			result, err := svc.UpsertStatus(ctx, req)
			if err != nil {
				errs <- err
				return
			}
			results <- result
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	fresh := 0
	for result := range results {
		if result.Fresh {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, int64(1), countTransactions(t, db))
	assert.Equal(t, int64(workers), countAudits(t, db))
}

func TestUpsertStatusValidation(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*domain.UpsertRequest)
		want   error
	}{
		{name: "gateway", mutate: func(r *domain.UpsertRequest) { r.Gateway = "stripe" }, want: domain.ErrInvalidGateway},
		{name: "txn id", mutate: func(r *domain.UpsertRequest) { r.GatewayTxnID = " " }, want: domain.ErrInvalidTransaction},
		{name: "status", mutate: func(r *domain.UpsertRequest) { r.Status = "refunded" }, want: domain.ErrInvalidStatus},
		{name: "source", mutate: func(r *domain.UpsertRequest) { r.Source = "" }, want: domain.ErrInvalidSource},
		{name: "amount", mutate: func(r *domain.UpsertRequest) { r.Amount = decimal.NewFromInt(-1) }, want: domain.ErrInvalidAmount},
		{name: "currency", mutate: func(r *domain.UpsertRequest) { r.Currency = "RUPEE" }, want: domain.ErrInvalidCurrency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := razorpayRequest(domain.StatusComplete)
			tc.mutate(&req)
			_, err := svc.UpsertStatus(ctx, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(0), countTransactions(t, db))
}

func TestAttachLeadOnlyOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.UpsertStatus(ctx, razorpayRequest(domain.StatusComplete))
	require.NoError(t, err)

	require.NoError(t, svc.AttachLead(ctx, result.Transaction.ID, 101))
	require.NoError(t, svc.AttachLead(ctx, result.Transaction.ID, 202))

	txn, err := svc.Get(ctx, result.Transaction.ID)
	require.NoError(t, err)
	require.NotNil(t, txn.LeadID)
	assert.Equal(t, snowflake.ID(101), *txn.LeadID)

	assert.ErrorIs(t, svc.AttachLead(ctx, 999, 101), domain.ErrNotFound)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		req := razorpayRequest(domain.StatusComplete)
		req.GatewayTxnID = fmt.Sprintf("pay_%d", i)
		if i == 4 {
			req.Status = domain.StatusFailed
		}
		_, err := svc.UpsertStatus(ctx, req)
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, domain.ListRequest{Status: "complete", PageSize: 3})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)
	assert.True(t, page.HasMore)
	assert.Equal(t, "pay_3", page.Transactions[0].GatewayTxnID)

	next, err := svc.List(ctx, domain.ListRequest{Status: "complete", PageSize: 3, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, next.Transactions, 1)
	assert.False(t, next.HasMore)
	assert.Equal(t, "pay_0", next.Transactions[0].GatewayTxnID)

	_, err = svc.List(ctx, domain.ListRequest{Status: "weird"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestRevenueStats(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertStatus(ctx, razorpayRequest(domain.StatusComplete))
	require.NoError(t, err)
	usd := domain.UpsertRequest{
		Gateway:      paymentdomain.GatewayPayPal,
		GatewayTxnID: "CAP-1",
		Amount:       decimal.RequireFromString("99.00"),
		Currency:     "USD",
		Status:       domain.StatusComplete,
		Source:       domain.SourceRedirect,
	}
	_, err = svc.UpsertStatus(ctx, usd)
	require.NoError(t, err)
	usd.GatewayTxnID = "CAP-2"
	usd.Status = domain.StatusFailed
	_, err = svc.UpsertStatus(ctx, usd)
	require.NoError(t, err)

	stats, err := svc.RevenueStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Revenue, 2)
	assert.Equal(t, "INR", stats.Revenue[0].Currency)
	assert.True(t, decimal.RequireFromString("49").Equal(stats.Revenue[0].Total))
	assert.Equal(t, "USD", stats.Revenue[1].Currency)
	assert.True(t, decimal.RequireFromString("99").Equal(stats.Revenue[1].Total))
	assert.Len(t, stats.ByStatus, 2)
}

func TestListByLead(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i, lead := range []snowflake.ID{101, 202, 101} {
		req := razorpayRequest(domain.StatusComplete)
		req.GatewayTxnID = fmt.Sprintf("pay_%d", i)
		result, err := svc.UpsertStatus(ctx, req)
		require.NoError(t, err)
		require.NoError(t, svc.AttachLead(ctx, result.Transaction.ID, lead))
	}

	lead := snowflake.ID(101)
	page, err := svc.List(ctx, domain.ListRequest{LeadID: &lead})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, "pay_2", page.Transactions[0].GatewayTxnID)
	assert.Equal(t, "pay_0", page.Transactions[1].GatewayTxnID)
}

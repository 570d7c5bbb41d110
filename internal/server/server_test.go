package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/nftcheckout/internal/audit/domain"
	authdomain "github.com/smallbiznis/nftcheckout/internal/auth/domain"
	"github.com/smallbiznis/nftcheckout/internal/auth/session"
	"github.com/smallbiznis/nftcheckout/internal/authorization"
	"github.com/smallbiznis/nftcheckout/internal/catalog"
	checkoutdomain "github.com/smallbiznis/nftcheckout/internal/checkout/domain"
	"github.com/smallbiznis/nftcheckout/internal/config"
	deliverydomain "github.com/smallbiznis/nftcheckout/internal/delivery/domain"
	leaddomain "github.com/smallbiznis/nftcheckout/internal/lead/domain"
	ledgerdomain "github.com/smallbiznis/nftcheckout/internal/ledger/domain"
	"github.com/smallbiznis/nftcheckout/internal/observability"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"github.com/smallbiznis/nftcheckout/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCheckout struct {
	checkoutdomain.Service

	webhookPayload []byte
	webhookResult  checkoutdomain.SettleResult
	webhookErr     error

	captureReq  checkoutdomain.CapturePayPalRequest
	confirmReq  checkoutdomain.ConfirmRazorpayRequest
	settle      checkoutdomain.SettleResult
	createErr   error
	statusCalls int
	reconciled  []string
}

func (f *fakeCheckout) HandleWebhook(ctx context.Context, gateway string, payload []byte, headers http.Header) (checkoutdomain.SettleResult, error) {
	if _, err := paymentdomain.ParseGateway(gateway); err != nil {
		return checkoutdomain.SettleResult{}, err
	}
	f.webhookPayload = payload
	return f.webhookResult, f.webhookErr
}

func (f *fakeCheckout) CapturePayPal(ctx context.Context, req checkoutdomain.CapturePayPalRequest) (checkoutdomain.SettleResult, error) {
	f.captureReq = req
	return f.settle, nil
}

func (f *fakeCheckout) ConfirmRazorpay(ctx context.Context, req checkoutdomain.ConfirmRazorpayRequest) (checkoutdomain.SettleResult, error) {
	f.confirmReq = req
	return f.settle, nil
}

func (f *fakeCheckout) CreatePayPalOrder(ctx context.Context, req checkoutdomain.CreateOrderRequest) (checkoutdomain.PayPalOrder, error) {
	if f.createErr != nil {
		return checkoutdomain.PayPalOrder{}, f.createErr
	}
	return checkoutdomain.PayPalOrder{OrderID: "PP-" + req.AssetID, Status: "CREATED"}, nil
}

func (f *fakeCheckout) CreateRazorpayOrder(ctx context.Context, req checkoutdomain.CreateOrderRequest) (checkoutdomain.RazorpayOrder, error) {
	if f.createErr != nil {
		return checkoutdomain.RazorpayOrder{}, f.createErr
	}
	return checkoutdomain.RazorpayOrder{OrderID: "order_" + req.AssetID, Amount: req.Amount.Mul(decimal.NewFromInt(100)).IntPart(), Currency: "INR"}, nil
}

func (f *fakeCheckout) TransactionStatus(ctx context.Context, gateway, gatewayTxnID string) (checkoutdomain.StatusResult, error) {
	f.statusCalls++
	return checkoutdomain.StatusResult{Status: checkoutdomain.BuyerStatusSuccessful, Delivery: "delivered"}, nil
}

func (f *fakeCheckout) Reconcile(ctx context.Context, gateway, gatewayTxnID string) (checkoutdomain.SettleResult, error) {
	if gatewayTxnID == "pay_missing" {
		return checkoutdomain.SettleResult{}, ledgerdomain.ErrNotFound
	}
	f.reconciled = append(f.reconciled, gateway+"/"+gatewayTxnID)
	return checkoutdomain.SettleResult{
		Gateway:         paymentdomain.GatewayRazorpay,
		GatewayTxnID:    gatewayTxnID,
		Status:          checkoutdomain.BuyerStatusSuccessful,
		Fresh:           true,
		DeliveryPending: true,
	}, nil
}

type fakeDelivery struct {
	deliverydomain.Service

	retried []snowflake.ID
}

func (f *fakeDelivery) Retry(ctx context.Context, id snowflake.ID) (deliverydomain.Delivery, error) {
	if id == 404 {
		return deliverydomain.Delivery{}, deliverydomain.ErrNotFound
	}
	f.retried = append(f.retried, id)
	return deliverydomain.Delivery{ID: id, Status: deliverydomain.StatusDelivered}, nil
}

func (f *fakeDelivery) List(ctx context.Context, req deliverydomain.ListRequest) (deliverydomain.ListResponse, error) {
	if req.Status == "bogus" {
		return deliverydomain.ListResponse{}, deliverydomain.ErrInvalidStatus
	}
	return deliverydomain.ListResponse{Deliveries: []deliverydomain.Delivery{{ID: 7, Status: deliverydomain.StatusPending}}}, nil
}

func (f *fakeDelivery) Stats(ctx context.Context) ([]deliverydomain.StatusCount, error) {
	return []deliverydomain.StatusCount{{Status: deliverydomain.StatusPending, Count: 2}}, nil
}

type fakeLedger struct {
	ledgerdomain.Service

	listReq ledgerdomain.ListRequest
}

func (f *fakeLedger) List(ctx context.Context, req ledgerdomain.ListRequest) (ledgerdomain.ListResponse, error) {
	f.listReq = req
	return ledgerdomain.ListResponse{Transactions: []ledgerdomain.Transaction{{ID: 55, GatewayTxnID: "pay_123"}}}, nil
}

func (fakeLedger) RevenueStats(ctx context.Context) (ledgerdomain.RevenueStats, error) {
	return ledgerdomain.RevenueStats{}, nil
}

type fakeLeads struct {
	leaddomain.Service
}

func (fakeLeads) Get(ctx context.Context, email string) (leaddomain.Lead, error) {
	if email != "a@b.com" {
		return leaddomain.Lead{}, leaddomain.ErrNotFound
	}
	return leaddomain.Lead{ID: 77, Email: email, NFTPurchased: "42"}, nil
}

func (fakeLeads) Stats(ctx context.Context) (leaddomain.Stats, error) {
	return leaddomain.Stats{TotalLeads: 4, Purchasers: 1, ConversionRate: 0.25}, nil
}

type fakeAuth struct {
	sessions map[string]authdomain.Session
	revoked  []string
}

func (f *fakeAuth) Login(ctx context.Context, req authdomain.LoginRequest) (authdomain.LoginResult, error) {
	if req.Password != "correct horse battery" {
		return authdomain.LoginResult{}, authdomain.ErrInvalidCredentials
	}
	sess := authdomain.Session{ID: "jti-1", Email: req.Email, Role: config.RoleOperator, ExpiresAt: time.Now().Add(time.Hour)}
	f.sessions["login-token"] = sess
	return authdomain.LoginResult{Session: sess, RawToken: "login-token"}, nil
}

func (f *fakeAuth) Logout(ctx context.Context, raw string) error {
	f.revoked = append(f.revoked, raw)
	delete(f.sessions, raw)
	return nil
}

func (f *fakeAuth) Authenticate(ctx context.Context, raw string) (authdomain.Session, error) {
	sess, ok := f.sessions[raw]
	if !ok {
		return authdomain.Session{}, authdomain.ErrSessionRevoked
	}
	return sess, nil
}

type fakeAuthz struct{}

func (fakeAuthz) Authorize(ctx context.Context, actor authorization.Actor, object string, action string) error {
	operatorOnly := action == authorization.ActionDeliveryRetry ||
		action == authorization.ActionAuditView ||
		action == authorization.ActionTransactionReconcile ||
		action == authorization.ActionLeadView
	if operatorOnly && actor.Role != config.RoleOperator {
		return authorization.ErrForbidden
	}
	return nil
}

type fakeAudit struct {
	entries []auditdomain.Entry
	listReq auditdomain.ListAuditLogRequest
}

func (f *fakeAudit) Record(ctx context.Context, entry auditdomain.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.listReq = req
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	return auditdomain.ListAuditLogResponse{AuditLogs: []auditdomain.AuditLog{{ID: 9, Action: auditdomain.ActionLogin}}}, nil
}

func (f *fakeAudit) actions() []string {
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

type testServer struct {
	engine   *gin.Engine
	checkout *fakeCheckout
	delivery *fakeDelivery
	ledger   *fakeLedger
	auth     *fakeAuth
	audit    *fakeAudit
}

func newTestServer(t *testing.T, limiter ratelimit.Limiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		checkout: &fakeCheckout{},
		delivery: &fakeDelivery{},
		ledger:   &fakeLedger{},
		audit:    &fakeAudit{},
		auth: &fakeAuth{sessions: map[string]authdomain.Session{
			"viewer-token":   {Email: "viewer@example.com", Role: config.RoleViewer},
			"operator-token": {Email: "ops@example.com", Role: config.RoleOperator},
		}},
	}
	cfg := config.Config{Environment: "test"}
	ts.engine = NewEngine(cfg, observability.Config{Environment: "test"}, nil)
	NewServer(ServerParams{
		Gin:         ts.engine,
		Cfg:         cfg,
		Log:         zap.NewNop(),
		CheckoutSvc: ts.checkout,
		DeliverySvc: ts.delivery,
		LedgerSvc:   ts.ledger,
		LeadSvc:     fakeLeads{},
		Authsvc:     ts.auth,
		Sessions:    session.NewManager(cfg),
		AuthzSvc:    fakeAuthz{},
		AuditSvc:    ts.audit,
		Limiter:     limiter,
	})
	return ts
}

func (ts *testServer) do(method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	payload, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error payload: %s", rec.Body.String())
	return payload["type"].(string)
}

func TestWebhookPassesRawBodyAndReportsPendingDelivery(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.checkout.webhookResult = checkoutdomain.SettleResult{Fresh: true, DeliveryQueued: true}

	raw := `{"event":"payment.captured",  "payload":{}}`
	rec := ts.do(http.MethodPost, "/api/payments/webhooks/razorpay", raw, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, raw, string(ts.checkout.webhookPayload))
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "pending", body["delivery"])
}

func TestWebhookResponseMapping(t *testing.T) {
	cases := []struct {
		name    string
		gateway string
		err     error
		status  int
		errType string
	}{
		{name: "ignored event", gateway: "paypal", err: paymentdomain.ErrEventIgnored, status: http.StatusOK},
		{name: "bad signature", gateway: "razorpay", err: paymentdomain.ErrInvalidSignature, status: http.StatusBadRequest, errType: "invalid_signature"},
		{name: "malformed", gateway: "razorpay", err: paymentdomain.ErrMalformedPayload, status: http.StatusBadRequest, errType: "malformed_payload"},
		{name: "unknown gateway", gateway: "stripe", status: http.StatusNotFound, errType: "not_found"},
		{name: "persistence", gateway: "paypal", err: ledgerdomain.ErrPersistence, status: http.StatusInternalServerError, errType: "internal_error"},
		{name: "bad currency", gateway: "razorpay", err: ledgerdomain.ErrInvalidCurrency, status: http.StatusBadRequest, errType: "validation_error"},
		{name: "negative amount", gateway: "razorpay", err: ledgerdomain.ErrInvalidAmount, status: http.StatusBadRequest, errType: "validation_error"},
		{name: "missing txn id", gateway: "paypal", err: ledgerdomain.ErrInvalidTransaction, status: http.StatusBadRequest, errType: "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.checkout.webhookErr = tc.err

			rec := ts.do(http.MethodPost, "/api/payments/webhooks/"+tc.gateway, `{}`, nil)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.errType != "" {
				assert.Equal(t, tc.errType, errorType(t, rec))
			} else {
				assert.Equal(t, "ok", decodeBody(t, rec)["status"])
			}
		})
	}
}

func TestVerifyRazorpayMergesFlatAndNestedBuyer(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.checkout.settle = checkoutdomain.SettleResult{
		Gateway:         paymentdomain.GatewayRazorpay,
		GatewayTxnID:    "pay_1",
		Status:          checkoutdomain.BuyerStatusSuccessful,
		DeliveryPending: true,
	}

	rec := ts.do(http.MethodPost, "/api/payments/razorpay/verify", `{
		"razorpay_order_id": "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature": "sig",
		"userName": "Asha",
		"buyer": {"email": "asha@example.com"}
	}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "order_1", ts.checkout.confirmReq.OrderID)
	assert.Equal(t, "asha@example.com", ts.checkout.confirmReq.Buyer.Email)
	assert.Equal(t, "Asha", ts.checkout.confirmReq.Buyer.Name)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "payment successful", body["message"])
	assert.Equal(t, "pending", body["delivery"])
}

func TestVerifyRazorpayRejectsBrokenJSON(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/payments/razorpay/verify", `{"razorpay_order_id":`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorType(t, rec))
}

func TestCapturePayPalWithoutBodyUsesPathOrderID(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.checkout.settle = checkoutdomain.SettleResult{Status: checkoutdomain.BuyerStatusFailed}

	rec := ts.do(http.MethodPost, "/api/payments/paypal/orders/5O190127TN364715T/capture", "", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "5O190127TN364715T", ts.checkout.captureReq.OrderID)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "payment failed, try again", body["message"])
}

func TestCreateOrderErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		errType string
	}{
		{name: "sold listing", err: catalog.ErrListingUnavailable, status: http.StatusConflict, errType: "conflict"},
		{name: "bad email", err: checkoutdomain.ErrInvalidEmail, status: http.StatusBadRequest, errType: "validation_error"},
		{name: "gateway down", err: paymentdomain.ErrGatewayUnavailable, status: http.StatusBadGateway, errType: "upstream_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.checkout.createErr = tc.err

			rec := ts.do(http.MethodPost, "/api/payments/paypal/orders", `{"nftId":"42","amount":"99.00","currency":"USD"}`, nil)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.errType, errorType(t, rec))
		})
	}
}

func TestCreateRazorpayOrder(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/payments/razorpay/orders", `{"nftId":"42","amount":49,"currency":"INR","userEmail":"a@example.com"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "order_42", body["orderId"])
	assert.Equal(t, float64(4900), body["amount"])
}

func TestCreateOrderIsRateLimitedPerClient(t *testing.T) {
	ts := newTestServer(t, ratelimit.NewMemoryLimiter(0.001, 1))
	body := `{"nftId":"42","amount":"99.00","currency":"USD"}`

	first := ts.do(http.MethodPost, "/api/payments/paypal/orders", body, nil)
	require.Equal(t, http.StatusCreated, first.Code)

	second := ts.do(http.MethodPost, "/api/payments/paypal/orders", body, nil)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Equal(t, "too_many_requests", errorType(t, second))

	// Webhooks are never throttled.
	hook := ts.do(http.MethodPost, "/api/payments/webhooks/paypal", `{}`, nil)
	assert.Equal(t, http.StatusOK, hook.Code)
}

func TestTransactionStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/payments/paypal/transactions/CAP-1/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.checkout.statusCalls)
	body := decodeBody(t, rec)
	assert.Equal(t, "successful", body["status"])
	assert.Equal(t, "delivered", body["delivery"])
}

func TestAdminRequiresSession(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/admin/deliveries", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/admin/deliveries", "", map[string]string{"Authorization": "Bearer unknown"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestViewerCannotRetryDelivery(t *testing.T) {
	ts := newTestServer(t, nil)
	viewer := map[string]string{"Authorization": "Bearer viewer-token"}

	rec := ts.do(http.MethodGet, "/admin/deliveries", "", viewer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/admin/deliveries/123/retry", "", viewer)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, ts.delivery.retried)
}

func TestOperatorRetriesDelivery(t *testing.T) {
	ts := newTestServer(t, nil)
	operator := map[string]string{"Authorization": "Bearer operator-token"}

	rec := ts.do(http.MethodPost, "/admin/deliveries/123/retry", "", operator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []snowflake.ID{123}, ts.delivery.retried)
	require.Len(t, ts.audit.entries, 1)
	assert.Equal(t, auditdomain.ActionDeliveryRetry, ts.audit.entries[0].Action)
	assert.Equal(t, "123", ts.audit.entries[0].TargetID)
	assert.Equal(t, "ops@example.com", ts.audit.entries[0].ActorID)

	rec = ts.do(http.MethodPost, "/admin/deliveries/404/retry", "", operator)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/admin/deliveries/not-an-id/retry", "", operator)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListDeliveriesValidatesQuery(t *testing.T) {
	ts := newTestServer(t, nil)
	viewer := map[string]string{"Authorization": "Bearer viewer-token"}

	rec := ts.do(http.MethodGet, "/admin/deliveries?status=bogus", "", viewer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/admin/deliveries?limit=-3", "", viewer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginSetsCookieAndLogoutRevokes(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/admin/sessions", `{"email":"ops@example.com","password":"wrong"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/admin/sessions", `{"email":"ops@example.com","password":"correct horse battery"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := rec.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(cookie, session.DefaultCookieName+"=login-token"))
	assert.Contains(t, cookie, "HttpOnly")
	assert.Equal(t, "login-token", decodeBody(t, rec)["token"])

	cookieHeader := map[string]string{"Cookie": session.DefaultCookieName + "=login-token"}
	rec = ts.do(http.MethodGet, "/admin/stats", "", cookieHeader)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decodeBody(t, rec)
	assert.Equal(t, float64(4), stats["leads"].(map[string]any)["total_leads"])

	rec = ts.do(http.MethodDelete, "/admin/sessions", "", cookieHeader)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"login-token"}, ts.auth.revoked)

	rec = ts.do(http.MethodGet, "/admin/stats", "", cookieHeader)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, []string{auditdomain.ActionLoginFailed, auditdomain.ActionLogin, auditdomain.ActionLogout}, ts.audit.actions())
	assert.Equal(t, "o****@example.com", ts.audit.entries[0].TargetID)
	assert.Equal(t, "ops@example.com", ts.audit.entries[1].ActorID)
	assert.Equal(t, "jti-1", ts.audit.entries[2].Metadata["session_id"])
}

func TestListAuditLogs(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/admin/audit-logs", "", map[string]string{"Authorization": "Bearer viewer-token"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	operator := map[string]string{"Authorization": "Bearer operator-token"}
	rec = ts.do(http.MethodGet, "/admin/audit-logs?action=operator.login&start_at=2024-06-01T00:00:00Z&limit=5", "", operator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "operator.login", ts.audit.listReq.Action)
	assert.Equal(t, 5, ts.audit.listReq.PageSize)
	require.NotNil(t, ts.audit.listReq.StartAt)
	assert.Len(t, decodeBody(t, rec)["audit_logs"], 1)

	rec = ts.do(http.MethodGet, "/admin/audit-logs?start_at=yesterday", "", operator)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/admin/audit-logs?start_at=2024-06-02T00:00:00Z&end_at=2024-06-01T00:00:00Z", "", operator)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(checkoutdomain.ErrInvalidCurrency)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_currency", code)

	typ, code = classifyErrorForLog(paymentdomain.ErrInvalidSignature)
	assert.Equal(t, "invalid_signature", typ)
	assert.Equal(t, "invalid_signature", code)
}

func TestReconcileTransaction(t *testing.T) {
	ts := newTestServer(t, nil)
	viewer := map[string]string{"Authorization": "Bearer viewer-token"}
	operator := map[string]string{"Authorization": "Bearer operator-token"}

	rec := ts.do(http.MethodPost, "/admin/transactions/razorpay/pay_123/reconcile", "", viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, ts.checkout.reconciled)

	rec = ts.do(http.MethodPost, "/admin/transactions/RazorPay/pay_123/reconcile", "", operator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"razorpay/pay_123"}, ts.checkout.reconciled)
	body := decodeBody(t, rec)
	assert.Equal(t, "successful", body["status"])

	require.Len(t, ts.audit.entries, 1)
	entry := ts.audit.entries[0]
	assert.Equal(t, auditdomain.ActionTransactionReconcile, entry.Action)
	assert.Equal(t, "ops@example.com", entry.ActorID)
	assert.Equal(t, "razorpay/pay_123", entry.TargetID)

	rec = ts.do(http.MethodPost, "/admin/transactions/razorpay/pay_missing/reconcile", "", operator)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, ts.audit.entries, 1)
}

func TestGetLeadWithTransactions(t *testing.T) {
	ts := newTestServer(t, nil)
	viewer := map[string]string{"Authorization": "Bearer viewer-token"}
	operator := map[string]string{"Authorization": "Bearer operator-token"}

	rec := ts.do(http.MethodGet, "/admin/leads/a@b.com", "", viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/admin/leads/a@b.com?page_size=5", "", operator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, ts.ledger.listReq.LeadID)
	assert.Equal(t, snowflake.ID(77), *ts.ledger.listReq.LeadID)
	assert.Equal(t, 5, ts.ledger.listReq.PageSize)

	body := decodeBody(t, rec)
	lead := body["lead"].(map[string]any)
	assert.Equal(t, "42", lead["nft_purchased"])
	txns := body["transactions"].([]any)
	require.Len(t, txns, 1)
	assert.Equal(t, "pay_123", txns[0].(map[string]any)["gateway_txn_id"])

	rec = ts.do(http.MethodGet, "/admin/leads/nobody@example.com", "", operator)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

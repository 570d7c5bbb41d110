package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/nftcheckout/internal/catalog"
	"github.com/smallbiznis/nftcheckout/internal/checkout/domain"
	"github.com/smallbiznis/nftcheckout/internal/clock"
	"github.com/smallbiznis/nftcheckout/internal/config"
	deliverydomain "github.com/smallbiznis/nftcheckout/internal/delivery/domain"
	"github.com/smallbiznis/nftcheckout/internal/events"
	leaddomain "github.com/smallbiznis/nftcheckout/internal/lead/domain"
	leadservice "github.com/smallbiznis/nftcheckout/internal/lead/service"
	ledgerdomain "github.com/smallbiznis/nftcheckout/internal/ledger/domain"
	obslogger "github.com/smallbiznis/nftcheckout/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/nftcheckout/internal/observability/metrics"
	"github.com/smallbiznis/nftcheckout/internal/payment/adapters"
	paypaladapter "github.com/smallbiznis/nftcheckout/internal/payment/adapters/paypal"
	razorpayadapter "github.com/smallbiznis/nftcheckout/internal/payment/adapters/razorpay"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	paypalapi "github.com/smallbiznis/nftcheckout/internal/payment/gateway/paypal"
	razorpayapi "github.com/smallbiznis/nftcheckout/internal/payment/gateway/razorpay"
	"github.com/smallbiznis/nftcheckout/internal/payment/signature"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxReceiptLength = 40

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Policy     *config.PolicyHolder
	Clock      clock.Clock
	GenID      *snowflake.Node
	Repo       domain.Repository
	Registry   *adapters.Registry
	Ledger     ledgerdomain.Service
	Leads      leaddomain.Service
	Delivery   deliverydomain.Service
	PayPal     domain.PayPalGateway
	Razorpay   domain.RazorpayGateway
	Catalog    domain.Catalog      `optional:"true"`
	Publisher  events.Publisher    `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.Config
	policy     *config.PolicyHolder
	clock      clock.Clock
	genID      *snowflake.Node
	repo       domain.Repository
	registry   *adapters.Registry
	ledger     ledgerdomain.Service
	leads      leaddomain.Service
	delivery   deliverydomain.Service
	paypal     domain.PayPalGateway
	razorpay   domain.RazorpayGateway
	catalog    domain.Catalog
	publisher  events.Publisher
	obsMetrics *obsmetrics.Metrics
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
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("checkout.service"),
		cfg:        p.Config,
		policy:     p.Policy,
		clock:      c,
		genID:      p.GenID,
		repo:       p.Repo,
		registry:   p.Registry,
		ledger:     p.Ledger,
		leads:      p.Leads,
		delivery:   p.Delivery,
		paypal:     p.PayPal,
		razorpay:   p.Razorpay,
		catalog:    p.Catalog,
		publisher:  publisher,
		obsMetrics: p.ObsMetrics,
	}
}

// HandleWebhook verifies, normalizes and settles one gateway notification.
// Nothing is written unless the signature checks out.
func (s *Service) HandleWebhook(ctx context.Context, gateway string, payload []byte, headers http.Header) (domain.SettleResult, error) {
	adapter, err := s.registry.Adapter(gateway)
	if err != nil {
		return domain.SettleResult{}, err
	}
	if !json.Valid(payload) {
		return domain.SettleResult{}, paymentdomain.ErrMalformedPayload
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidSignature) {
			s.signatureFailure(ctx, adapter.Gateway())
		}
		return domain.SettleResult{}, err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("webhook event ignored", zap.String("gateway", string(adapter.Gateway())))
		}
		return domain.SettleResult{}, err
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, string(event.Gateway), event.EventType)
	}
	return s.settle(ctx, event, paymentdomain.Buyer{}, ledgerdomain.SourceWebhook)
}

// ConfirmRazorpay handles the checkout handler callback. The payment is
// re-fetched from Razorpay; the browser-supplied status is never trusted.
func (s *Service) ConfirmRazorpay(ctx context.Context, req domain.ConfirmRazorpayRequest) (domain.SettleResult, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	switch {
	case req.OrderID == "":
		return domain.SettleResult{}, domain.ErrInvalidOrder
	case req.PaymentID == "":
		return domain.SettleResult{}, domain.ErrInvalidPayment
	}

	if err := signature.VerifyRazorpayCheckout(req.OrderID, req.PaymentID, s.cfg.Razorpay.KeySecret, req.Signature); err != nil {
		s.signatureFailure(ctx, paymentdomain.GatewayRazorpay)
		return domain.SettleResult{}, err
	}

	payment, err := s.razorpay.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		return domain.SettleResult{}, err
	}
	order, err := s.razorpay.FetchOrder(ctx, req.OrderID)
	if err != nil {
		s.log.Warn("razorpay order fetch failed, continuing without order notes",
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)
		order = nil
	}

	event, err := razorpayadapter.NormalizePayment(payment, order)
	if err != nil {
		return domain.SettleResult{}, err
	}
	if event.GatewayOrderID == "" {
		event.GatewayOrderID = req.OrderID
	}
	if event.GatewayOrderID != req.OrderID {
		s.log.Warn("razorpay payment belongs to another order",
			zap.String("order_id", req.OrderID),
			zap.String("payment_order_id", event.GatewayOrderID),
		)
		return domain.SettleResult{}, paymentdomain.ErrMalformedPayload
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, string(event.Gateway), event.EventType)
	}
	return s.settle(ctx, event, req.Buyer, ledgerdomain.SourceRedirect)
}

// CapturePayPal captures an approved order. A second capture of the same
// order resolves through the order document instead of failing.
func (s *Service) CapturePayPal(ctx context.Context, req domain.CapturePayPalRequest) (domain.SettleResult, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return domain.SettleResult{}, domain.ErrInvalidOrder
	}

	raw, err := s.paypal.CaptureOrder(ctx, req.OrderID)
	if errors.Is(err, paypalapi.ErrAlreadyCaptured) {
		s.log.Info("paypal order already captured, loading order", zap.String("order_id", req.OrderID))
		raw, err = s.paypal.GetOrder(ctx, req.OrderID)
	}
	if err != nil {
		return domain.SettleResult{}, err
	}

	event, err := paypaladapter.NormalizeOrder(raw)
	if err != nil {
		return domain.SettleResult{}, err
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, string(event.Gateway), event.EventType)
	}
	return s.settle(ctx, event, req.Buyer, ledgerdomain.SourceRedirect)
}

// Reconcile is the operator path for a payment whose outcome never arrived:
// the payment is read back from its gateway and settled like any other
// report. Only transactions already in the ledger can be reconciled.
func (s *Service) Reconcile(ctx context.Context, gateway, gatewayTxnID string) (domain.SettleResult, error) {
	parsed, err := paymentdomain.ParseGateway(gateway)
	if err != nil {
		return domain.SettleResult{}, err
	}
	gatewayTxnID = strings.TrimSpace(gatewayTxnID)
	if gatewayTxnID == "" {
		return domain.SettleResult{}, domain.ErrInvalidPayment
	}
	detail, err := s.ledger.FindByGatewayTxn(ctx, parsed, gatewayTxnID)
	if err != nil {
		return domain.SettleResult{}, err
	}
	orderID := detail.Transaction.GatewayOrderID

	var event *paymentdomain.PaymentEvent
	switch parsed {
	case paymentdomain.GatewayRazorpay:
		payment, err := s.razorpay.FetchPayment(ctx, gatewayTxnID)
		if err != nil {
			return domain.SettleResult{}, err
		}
		var order map[string]any
		if orderID != "" {
			if order, err = s.razorpay.FetchOrder(ctx, orderID); err != nil {
				s.log.Warn("razorpay order fetch failed, reconciling without order notes",
					zap.String("order_id", orderID),
					zap.Error(err),
				)
				order = nil
			}
		}
		event, err = razorpayadapter.NormalizePayment(payment, order)
		if err != nil {
			return domain.SettleResult{}, err
		}
	case paymentdomain.GatewayPayPal:
		if orderID == "" {
			return domain.SettleResult{}, domain.ErrInvalidOrder
		}
		raw, err := s.paypal.GetOrder(ctx, orderID)
		if err != nil {
			return domain.SettleResult{}, err
		}
		event, err = paypaladapter.NormalizeOrder(raw)
		if err != nil {
			return domain.SettleResult{}, err
		}
	default:
		return domain.SettleResult{}, paymentdomain.ErrUnknownGateway
	}

	if event.GatewayTxnID != gatewayTxnID {
		s.log.Warn("gateway returned a different payment",
			zap.String("gateway", string(parsed)),
			zap.String("gateway_txn_id", gatewayTxnID),
			zap.String("returned_txn_id", event.GatewayTxnID),
		)
		return domain.SettleResult{}, paymentdomain.ErrMalformedPayload
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, string(event.Gateway), event.EventType)
	}
	return s.settle(ctx, event, paymentdomain.Buyer{}, ledgerdomain.SourceOperator)
}

// settle is the single path from a normalized event to ledger, delivery and
// lead. The ledger write and the delivery enqueue commit together.
func (s *Service) settle(ctx context.Context, event *paymentdomain.PaymentEvent, fallback paymentdomain.Buyer, source ledgerdomain.Source) (domain.SettleResult, error) {
	log := obslogger.WithGateway(obslogger.WithContext(ctx, s.log), string(event.Gateway), event.GatewayTxnID)

	buyer, assetID := s.resolveBuyer(ctx, event, fallback)
	if buyer.HasEmail() {
		if normalized, err := leadservice.NormalizeEmail(buyer.Email); err == nil {
			buyer.Email = normalized
		} else {
			log.Warn("ignoring unusable buyer email")
			buyer.Email = ""
		}
	}

	payload := datatypes.JSON(event.RawPayload)
	if len(payload) == 0 || !json.Valid(payload) {
		payload = datatypes.JSON("{}")
	}
	req := ledgerdomain.UpsertRequest{
		Gateway:        event.Gateway,
		GatewayTxnID:   event.GatewayTxnID,
		GatewayOrderID: event.GatewayOrderID,
		AssetID:        assetID,
		Amount:         event.Amount,
		Currency:       event.Currency,
		Status:         ledgerdomain.StatusFromKind(event.Kind),
		Source:         source,
		EventType:      event.EventType,
		Response:       payload,
		AuditPayload:   payload,
	}

	var upsert ledgerdomain.UpsertResult
	queued := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		upsert, err = s.ledger.UpsertStatusTx(ctx, tx, req)
		if err != nil {
			return err
		}
		if upsert.FreshComplete() {
			_, queued, err = s.delivery.EnqueueTx(ctx, tx, deliverydomain.EnqueueRequest{
				TransactionID: upsert.Transaction.ID,
				Gateway:       upsert.Transaction.Gateway,
				GatewayTxnID:  upsert.Transaction.GatewayTxnID,
				AssetID:       upsert.Transaction.AssetID,
				BuyerEmail:    buyer.Email,
				Amount:        upsert.Transaction.Amount,
				Currency:      upsert.Transaction.Currency,
			})
			return err
		}
		if upsert.Transaction.Status == ledgerdomain.StatusComplete && buyer.HasEmail() {
			_, err = s.delivery.AttachBuyer(ctx, tx, upsert.Transaction.ID, buyer.Email)
			return err
		}
		return nil
	})
	if ledgerdomain.IsInvalidInput(err) {
		log.Warn("payment event rejected by ledger",
			zap.String("source", string(source)),
			zap.Error(err),
		)
		return domain.SettleResult{}, fmt.Errorf("%w: %v", paymentdomain.ErrMalformedPayload, err)
	}
	if err != nil {
		log.Error("settle failed",
			zap.String("source", string(source)),
			zap.Error(err),
		)
		return domain.SettleResult{}, err
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerTransition(ctx, string(event.Gateway), string(upsert.Transaction.Status), upsert.Fresh)
	}

	txn := upsert.Transaction
	if txn.Status == ledgerdomain.StatusComplete && buyer.HasEmail() {
		if err := s.recordLead(ctx, txn, buyer); err != nil {
			return domain.SettleResult{}, err
		}
	}
	if txn.Status == ledgerdomain.StatusComplete && txn.GatewayOrderID != "" {
		if _, err := s.repo.MarkPaid(ctx, s.db, txn.Gateway, txn.GatewayOrderID, s.clock.Now().UTC()); err != nil {
			log.Warn("failed to mark checkout intent paid", zap.String("gateway_order_id", txn.GatewayOrderID), zap.Error(err))
		}
	}
	if upsert.FreshComplete() {
		s.publishCompleted(ctx, txn, buyer)
	}

	result := domain.SettleResult{
		Gateway:        txn.Gateway,
		GatewayTxnID:   txn.GatewayTxnID,
		Status:         domain.BuyerStatusOf(txn.Status),
		Fresh:          upsert.Fresh,
		DeliveryQueued: queued,
	}
	if txn.Status == ledgerdomain.StatusComplete {
		result.DeliveryPending = true
		if d, err := s.delivery.FindByTransaction(ctx, txn.ID); err == nil {
			result.DeliveryPending = d.Status != deliverydomain.StatusDelivered
		}
		s.delivery.Kick()
	}

	log.Info("payment settled",
		zap.String("source", string(source)),
		zap.String("status", string(txn.Status)),
		zap.Bool("fresh", upsert.Fresh),
		zap.Bool("delivery_queued", queued),
	)
	return result, nil
}

// resolveBuyer merges buyer hints from the event, the request and the stored
// checkout intent, in that order of precedence.
func (s *Service) resolveBuyer(ctx context.Context, event *paymentdomain.PaymentEvent, fallback paymentdomain.Buyer) (paymentdomain.Buyer, string) {
	buyer := event.Buyer.Merge(fallback)
	assetID := strings.TrimSpace(event.AssetID)
	if event.GatewayOrderID == "" || (buyer.HasEmail() && assetID != "" && buyer.Name != "") {
		return buyer, assetID
	}
	intent, err := s.repo.FindByOrder(ctx, s.db, event.Gateway, event.GatewayOrderID)
	if err != nil {
		s.log.Warn("checkout intent lookup failed", zap.String("gateway_order_id", event.GatewayOrderID), zap.Error(err))
		return buyer, assetID
	}
	if intent == nil {
		return buyer, assetID
	}
	if assetID == "" {
		assetID = intent.AssetID
	}
	return buyer.Merge(intent.Buyer()), assetID
}

func (s *Service) recordLead(ctx context.Context, txn ledgerdomain.Transaction, buyer paymentdomain.Buyer) error {
	amount := txn.Amount
	lead, err := s.leads.UpsertByEmail(ctx, leaddomain.LeadInput{
		Email:         buyer.Email,
		Name:          buyer.Name,
		Phone:         buyer.Phone,
		Address:       buyer.Address,
		WalletAddress: buyer.WalletAddress,
		NFTPurchased:  txn.AssetID,
		PaymentMethod: string(txn.Gateway),
		PaymentStatus: string(txn.Status),
		TransactionID: txn.GatewayTxnID,
		Amount:        &amount,
		Currency:      txn.Currency,
		PurchasedAt:   txn.SettledAt,
	})
	if err != nil {
		if errors.Is(err, leaddomain.ErrPersistence) {
			return err
		}
		s.log.Warn("lead not recorded", zap.String("gateway_txn_id", txn.GatewayTxnID), zap.Error(err))
		return nil
	}
	if err := s.ledger.AttachLead(ctx, txn.ID, lead.ID); err != nil {
		s.log.Warn("failed to attach lead to transaction",
			zap.String("transaction_id", txn.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

func (s *Service) publishCompleted(ctx context.Context, txn ledgerdomain.Transaction, buyer paymentdomain.Buyer) {
	err := s.publisher.Publish(ctx, events.Event{
		Type:       events.EventPaymentCompleted,
		Key:        txn.AssetID,
		OccurredAt: s.clock.Now().UTC(),
		Payload: map[string]any{
			"transaction_id": txn.ID.String(),
			"gateway":        txn.Gateway,
			"gateway_txn_id": txn.GatewayTxnID,
			"asset_id":       txn.AssetID,
			"amount":         txn.Amount.StringFixed(2),
			"currency":       txn.Currency,
			"buyer_email":    buyer.Email,
		},
	})
	if err != nil {
		s.log.Warn("failed to publish payment event", zap.String("gateway_txn_id", txn.GatewayTxnID), zap.Error(err))
	}
}

func (s *Service) CreatePayPalOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.PayPalOrder, error) {
	req, err := s.prepareOrder(ctx, req, "USD")
	if err != nil {
		return domain.PayPalOrder{}, err
	}

	title := req.Title
	if title == "" {
		title = "NFT Purchase - Token ID: " + req.AssetID
	}
	order, err := s.paypal.CreateOrder(ctx, paypalapi.CreateOrderRequest{
		RequestID:   uuid.NewString(),
		AssetID:     req.AssetID,
		Description: title,
		Amount:      req.Amount,
		Currency:    req.Currency,
		ReturnURL:   s.cfg.PayPal.ReturnURL,
		CancelURL:   s.cfg.PayPal.CancelURL,
	})
	if err != nil {
		return domain.PayPalOrder{}, err
	}
	if err := s.saveIntent(ctx, paymentdomain.GatewayPayPal, order.ID, req); err != nil {
		return domain.PayPalOrder{}, err
	}
	return domain.PayPalOrder{
		OrderID:    order.ID,
		Status:     order.Status,
		ApproveURL: order.ApproveURL(),
	}, nil
}

func (s *Service) CreateRazorpayOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.RazorpayOrder, error) {
	req, err := s.prepareOrder(ctx, req, "INR")
	if err != nil {
		return domain.RazorpayOrder{}, err
	}

	receipt := fmt.Sprintf("nft_%s_%d", req.AssetID, s.clock.Now().UnixMilli())
	if len(receipt) > maxReceiptLength {
		receipt = receipt[:maxReceiptLength]
	}
	order, err := s.razorpay.CreateOrder(ctx, razorpayapi.CreateOrderRequest{
		AmountMinor: req.Amount.Shift(2).Round(0).IntPart(),
		Currency:    req.Currency,
		Receipt:     receipt,
		Notes: map[string]string{
			razorpayadapter.NoteNFTID:     req.AssetID,
			razorpayadapter.NoteUserEmail: req.Buyer.Email,
			razorpayadapter.NoteUserName:  req.Buyer.Name,
			razorpayadapter.NoteUserPhone: req.Buyer.Phone,
		},
	})
	if err != nil {
		return domain.RazorpayOrder{}, err
	}
	if err := s.saveIntent(ctx, paymentdomain.GatewayRazorpay, order.ID, req); err != nil {
		return domain.RazorpayOrder{}, err
	}
	currency := order.Currency
	if currency == "" {
		currency = req.Currency
	}
	return domain.RazorpayOrder{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: currency,
		KeyID:    s.razorpay.KeyID(),
		Receipt:  order.Receipt,
	}, nil
}

// prepareOrder validates a create-order request. When the catalog is
// reachable its price replaces the one sent by the storefront.
func (s *Service) prepareOrder(ctx context.Context, req domain.CreateOrderRequest, defaultCurrency string) (domain.CreateOrderRequest, error) {
	req.AssetID = strings.TrimSpace(req.AssetID)
	if req.AssetID == "" {
		return req, domain.ErrInvalidAsset
	}
	email, err := leadservice.NormalizeEmail(req.Buyer.Email)
	if err != nil {
		return req, domain.ErrInvalidEmail
	}
	req.Buyer.Email = email
	req.Buyer.Name = strings.TrimSpace(req.Buyer.Name)

	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = defaultCurrency
	}
	if req.Currency != defaultCurrency {
		return req, domain.ErrInvalidCurrency
	}

	if s.catalog != nil && s.catalog.Configured() {
		listing, err := s.catalog.GetListing(ctx, req.AssetID)
		if err != nil {
			if errors.Is(err, catalog.ErrListingNotFound) {
				return req, domain.ErrInvalidAsset
			}
			return req, err
		}
		if !listing.Available() {
			return req, catalog.ErrListingUnavailable
		}
		price, err := listing.Price(req.Currency)
		if err != nil {
			return req, domain.ErrInvalidCurrency
		}
		if !req.Amount.IsZero() && !req.Amount.Equal(price) {
			s.log.Info("storefront price differs from catalog, using catalog",
				zap.String("asset_id", req.AssetID),
				zap.String("requested", req.Amount.String()),
				zap.String("catalog", price.String()),
			)
		}
		req.Amount = price
		if req.Title == "" {
			req.Title = listing.Title
		}
	}

	if !req.Amount.IsPositive() {
		return req, domain.ErrInvalidAmount
	}
	req.Amount = req.Amount.Round(2)
	return req, nil
}

func (s *Service) saveIntent(ctx context.Context, gateway paymentdomain.Gateway, orderID string, req domain.CreateOrderRequest) error {
	now := s.clock.Now().UTC()
	intent := domain.CheckoutOrder{
		ID:             s.genID.Generate(),
		Gateway:        gateway,
		GatewayOrderID: orderID,
		AssetID:        req.AssetID,
		BuyerEmail:     req.Buyer.Email,
		BuyerName:      req.Buyer.Name,
		BuyerPhone:     strings.TrimSpace(req.Buyer.Phone),
		BuyerAddress:   strings.TrimSpace(req.Buyer.Address),
		WalletAddress:  strings.TrimSpace(req.Buyer.WalletAddress),
		Amount:         req.Amount,
		Currency:       req.Currency,
		Status:         domain.OrderStatusOpen,
		ExpiresAt:      now.Add(s.policy.Get().Checkout.IntentTTL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, s.db, &intent); err != nil {
		s.log.Error("failed to store checkout intent",
			zap.String("gateway", string(gateway)),
			zap.String("gateway_order_id", orderID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

// TransactionStatus answers the success page. Unknown transactions read as
// processing because the webhook may not have arrived yet.
func (s *Service) TransactionStatus(ctx context.Context, gateway, gatewayTxnID string) (domain.StatusResult, error) {
	parsed, err := paymentdomain.ParseGateway(gateway)
	if err != nil {
		return domain.StatusResult{}, err
	}
	detail, err := s.ledger.FindByGatewayTxn(ctx, parsed, gatewayTxnID)
	if errors.Is(err, ledgerdomain.ErrNotFound) {
		return domain.StatusResult{Status: domain.BuyerStatusProcessing}, nil
	}
	if err != nil {
		return domain.StatusResult{}, err
	}

	result := domain.StatusResult{Status: domain.BuyerStatusOf(detail.Transaction.Status)}
	if detail.Transaction.Status == ledgerdomain.StatusComplete {
		result.Delivery = "pending"
		if d, err := s.delivery.FindByTransaction(ctx, detail.Transaction.ID); err == nil {
			result.Delivery = domain.DeliveryStatusLabel(d.Status)
		}
	}
	return result, nil
}

func (s *Service) ExpireIntents(ctx context.Context) (int64, error) {
	expired, err := s.repo.ExpireOpen(ctx, s.db, s.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return expired, nil
}

func (s *Service) signatureFailure(ctx context.Context, gateway paymentdomain.Gateway) {
	s.log.Warn("signature verification failed", zap.String("gateway", string(gateway)))
	if s.obsMetrics != nil {
		s.obsMetrics.RecordSignatureFailure(ctx, string(gateway))
	}
}

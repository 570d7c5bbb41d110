package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/nftcheckout/internal/audit/domain"
	deliverydomain "github.com/smallbiznis/nftcheckout/internal/delivery/domain"
	leaddomain "github.com/smallbiznis/nftcheckout/internal/lead/domain"
	ledgerdomain "github.com/smallbiznis/nftcheckout/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"github.com/smallbiznis/nftcheckout/pkg/db/pagination"
	"go.uber.org/zap"
)

func (s *Server) ListDeliveries(c *gin.Context) {
	pageSize, pageToken, err := pageParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.deliverySvc.List(c.Request.Context(), deliverydomain.ListRequest{
		Status:    strings.TrimSpace(c.Query("status")),
		PageToken: pageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetDelivery(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid delivery id"))
		return
	}

	delivery, err := s.deliverySvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

// RetryDelivery resets a failed or pending delivery and attempts it now.
// The mint call is idempotent on the transaction id, so a retry can never
// assign the asset twice.
func (s *Server) RetryDelivery(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid delivery id"))
		return
	}

	delivery, err := s.deliverySvc.Retry(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	operator := ""
	if session, ok := sessionFromContext(c); ok {
		operator = session.Email
	}
	s.log.Info("operator retried delivery",
		zap.String("delivery_id", delivery.ID.String()),
		zap.String("operator", operator),
		zap.String("status", string(delivery.Status)),
	)
	s.recordAudit(c, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeOperator,
		ActorID:    operator,
		Action:     auditdomain.ActionDeliveryRetry,
		TargetType: "delivery",
		TargetID:   delivery.ID.String(),
		Metadata:   map[string]any{"status": string(delivery.Status), "attempts": delivery.Attempts},
	})
	c.JSON(http.StatusOK, delivery)
}

func (s *Server) ListTransactions(c *gin.Context) {
	pageSize, pageToken, err := pageParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.ledgerSvc.List(c.Request.Context(), ledgerdomain.ListRequest{
		Status:    strings.TrimSpace(c.Query("status")),
		Gateway:   strings.TrimSpace(c.Query("gateway")),
		PageToken: pageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type transactionView struct {
	ledgerdomain.TransactionDetail
	Delivery *deliverydomain.Delivery `json:"delivery,omitempty"`
}

func (s *Server) GetTransaction(c *gin.Context) {
	gateway, err := paymentdomain.ParseGateway(c.Param("gateway"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	detail, err := s.ledgerSvc.FindByGatewayTxn(ctx, gateway, strings.TrimSpace(c.Param("txnId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view := transactionView{TransactionDetail: detail}
	if delivery, err := s.deliverySvc.FindByTransaction(ctx, detail.Transaction.ID); err == nil {
		view.Delivery = &delivery
	}
	c.JSON(http.StatusOK, view)
}

// ReconcileTransaction re-reads a payment from its gateway and settles it
// with the operator as the reporting source.
func (s *Server) ReconcileTransaction(c *gin.Context) {
	gateway := strings.ToLower(strings.TrimSpace(c.Param("gateway")))
	txnID := strings.TrimSpace(c.Param("txnId"))

	result, err := s.checkoutSvc.Reconcile(c.Request.Context(), gateway, txnID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	operator := ""
	if session, ok := sessionFromContext(c); ok {
		operator = session.Email
	}
	s.log.Info("operator reconciled transaction",
		zap.String("gateway", gateway),
		zap.String("gateway_txn_id", txnID),
		zap.String("operator", operator),
		zap.String("status", string(result.Status)),
		zap.Bool("fresh", result.Fresh),
	)
	s.recordAudit(c, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeOperator,
		ActorID:    operator,
		Action:     auditdomain.ActionTransactionReconcile,
		TargetType: "transaction",
		TargetID:   gateway + "/" + txnID,
		Metadata:   map[string]any{"status": string(result.Status), "fresh": result.Fresh},
	})
	c.JSON(http.StatusOK, result)
}

type leadView struct {
	Lead leaddomain.Lead `json:"lead"`
	pagination.PageInfo
	Transactions []ledgerdomain.Transaction `json:"transactions"`
}

// GetLead returns a buyer and the transactions linked to them, newest first.
func (s *Server) GetLead(c *gin.Context) {
	pageSize, pageToken, err := pageParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	lead, err := s.leadSvc.Get(ctx, c.Param("email"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	txns, err := s.ledgerSvc.List(ctx, ledgerdomain.ListRequest{
		LeadID:    &lead.ID,
		PageToken: pageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, leadView{Lead: lead, PageInfo: txns.PageInfo, Transactions: txns.Transactions})
}

type statsView struct {
	Leads      leaddomain.Stats             `json:"leads"`
	Revenue    ledgerdomain.RevenueStats    `json:"transactions"`
	Deliveries []deliverydomain.StatusCount `json:"deliveries"`
}

func (s *Server) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	leads, err := s.leadSvc.Stats(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	revenue, err := s.ledgerSvc.RevenueStats(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	deliveries, err := s.deliverySvc.Stats(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, statsView{
		Leads:      leads,
		Revenue:    revenue,
		Deliveries: deliveries,
	})
}

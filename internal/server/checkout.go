package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	checkoutdomain "github.com/smallbiznis/nftcheckout/internal/checkout/domain"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
)

// buyerFields is accepted flat, the way the storefront posts it, or nested
// under "buyer".
type buyerFields struct {
	UserEmail     string               `json:"userEmail"`
	UserName      string               `json:"userName"`
	UserPhone     string               `json:"userPhone"`
	UserAddress   string               `json:"userAddress"`
	WalletAddress string               `json:"walletAddress"`
	Buyer         *paymentdomain.Buyer `json:"buyer"`
}

func (b buyerFields) toBuyer() paymentdomain.Buyer {
	flat := paymentdomain.Buyer{
		Email:         strings.TrimSpace(b.UserEmail),
		Name:          strings.TrimSpace(b.UserName),
		Phone:         strings.TrimSpace(b.UserPhone),
		Address:       strings.TrimSpace(b.UserAddress),
		WalletAddress: strings.TrimSpace(b.WalletAddress),
	}
	if b.Buyer == nil {
		return flat
	}
	return b.Buyer.Merge(flat)
}

type createOrderRequest struct {
	buyerFields
	NFTID    string          `json:"nftId"`
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (r createOrderRequest) toDomain() checkoutdomain.CreateOrderRequest {
	return checkoutdomain.CreateOrderRequest{
		AssetID:  strings.TrimSpace(r.NFTID),
		Title:    strings.TrimSpace(r.Title),
		Amount:   r.Amount,
		Currency: strings.TrimSpace(r.Currency),
		Buyer:    r.toBuyer(),
	}
}

type capturePayPalRequest struct {
	buyerFields
	OrderID string `json:"orderId"`
}

type verifyRazorpayRequest struct {
	buyerFields
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

func (s *Server) CreatePayPalOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.checkoutSvc.CreatePayPalOrder(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) CapturePayPalOrder(c *gin.Context) {
	// The body is optional; an empty one binds to io.EOF.
	var req capturePayPalRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}
	orderID := strings.TrimSpace(c.Param("orderId"))
	if orderID == "" {
		orderID = strings.TrimSpace(req.OrderID)
	}

	result, err := s.checkoutSvc.CapturePayPal(c.Request.Context(), checkoutdomain.CapturePayPalRequest{
		OrderID: orderID,
		Buyer:   req.toBuyer(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, settleResponse(result))
}

func (s *Server) CreateRazorpayOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.checkoutSvc.CreateRazorpayOrder(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) VerifyRazorpayPayment(c *gin.Context) {
	var req verifyRazorpayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.checkoutSvc.ConfirmRazorpay(c.Request.Context(), checkoutdomain.ConfirmRazorpayRequest{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Buyer:     req.toBuyer(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, settleResponse(result))
}

func (s *Server) GetTransactionStatus(c *gin.Context) {
	txnID := strings.TrimSpace(c.Param("txnId"))
	if txnID == "" {
		AbortWithError(c, newValidationError("txnId", "required", "transaction id is required"))
		return
	}

	result, err := s.checkoutSvc.TransactionStatus(c.Request.Context(), c.Param("gateway"), txnID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type settleView struct {
	Success       bool                       `json:"success"`
	Status        checkoutdomain.BuyerStatus `json:"status"`
	Message       string                     `json:"message"`
	Gateway       paymentdomain.Gateway      `json:"gateway"`
	TransactionID string                     `json:"transactionId"`
	Delivery      string                     `json:"delivery,omitempty"`
}

// settleResponse never exposes gateway error detail to the buyer.
func settleResponse(result checkoutdomain.SettleResult) settleView {
	view := settleView{
		Status:        result.Status,
		Gateway:       result.Gateway,
		TransactionID: result.GatewayTxnID,
	}
	switch result.Status {
	case checkoutdomain.BuyerStatusSuccessful:
		view.Success = true
		view.Message = "payment successful"
	case checkoutdomain.BuyerStatusFailed:
		view.Message = "payment failed, try again"
	default:
		view.Message = "payment processing"
	}
	if result.DeliveryPending {
		view.Delivery = "pending"
	}
	return view
}

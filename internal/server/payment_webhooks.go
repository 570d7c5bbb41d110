package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/nftcheckout/internal/payment/domain"
)

const maxWebhookBytes = 1 << 20

// HandlePaymentWebhook passes the exact raw body to the orchestrator;
// signatures are computed over these bytes.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	gateway := strings.TrimSpace(c.Param("gateway"))
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrMalformedPayload)
		return
	}

	result, err := s.checkoutSvc.HandleWebhook(c.Request.Context(), gateway, payload, c.Request.Header)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	if result.DeliveryQueued || result.DeliveryPending {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "delivery": "pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

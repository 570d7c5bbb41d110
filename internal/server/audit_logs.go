package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/nftcheckout/internal/audit/domain"
	"github.com/smallbiznis/nftcheckout/internal/audit/masking"
	"github.com/smallbiznis/nftcheckout/pkg/db/pagination"
)

// recordAudit never fails the request. The audit service logs its own
// write failures.
func (s *Server) recordAudit(c *gin.Context, entry auditdomain.Entry) {
	if s.auditSvc == nil {
		return
	}
	entry.IPAddress = c.ClientIP()
	entry.UserAgent = c.Request.UserAgent()
	_ = s.auditSvc.Record(c.Request.Context(), entry)
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	if s.auditSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	pageSize, pageToken, err := pageParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	startAt, err := parseTimeParam(c.Query("start_at"))
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_time", "start_at must be RFC3339"))
		return
	}
	endAt, err := parseTimeParam(c.Query("end_at"))
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_time", "end_at must be RFC3339"))
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: pageToken, PageSize: pageSize},
		Action:     strings.TrimSpace(c.Query("action")),
		ActorType:  strings.TrimSpace(c.Query("actor_type")),
		ActorID:    strings.TrimSpace(c.Query("actor_id")),
		StartAt:    startAt,
		EndAt:      endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func parseTimeParam(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, err
	}
	parsed = parsed.UTC()
	return &parsed, nil
}

func maskedEmail(email string) string {
	return masking.MaskEmail(email)
}

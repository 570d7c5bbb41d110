package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/nftcheckout/internal/audit/domain"
	authdomain "github.com/smallbiznis/nftcheckout/internal/auth/domain"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionView struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		AbortWithError(c, newValidationError("credentials", "required", "email and password are required"))
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		if errors.Is(err, authdomain.ErrInvalidCredentials) {
			s.recordAudit(c, auditdomain.Entry{
				ActorType:  auditdomain.ActorTypeAnonymous,
				Action:     auditdomain.ActionLoginFailed,
				TargetType: "operator",
				TargetID:   maskedEmail(email),
			})
		}
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.Session.ExpiresAt)
	s.log.Info("operator logged in",
		zap.String("email", result.Session.Email),
		zap.String("role", result.Session.Role),
	)

	s.recordAudit(c, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeOperator,
		ActorID:    result.Session.Email,
		Action:     auditdomain.ActionLogin,
		TargetType: "session",
		Metadata:   map[string]any{"session_id": result.Session.ID, "role": result.Session.Role},
	})

	c.JSON(http.StatusOK, sessionView{
		Token:     result.RawToken,
		Email:     result.Session.Email,
		Role:      result.Session.Role,
		ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout revokes the presented token and clears the cookie. It succeeds
// even when no valid session was sent.
func (s *Server) Logout(c *gin.Context) {
	if token, ok := s.sessions.ReadToken(c); ok {
		ctx := c.Request.Context()
		current, authErr := s.authsvc.Authenticate(ctx, token)
		if err := s.authsvc.Logout(ctx, token); err != nil {
			s.log.Debug("logout with unusable token", zap.Error(err))
		} else if authErr == nil {
			s.recordAudit(c, auditdomain.Entry{
				ActorType:  auditdomain.ActorTypeOperator,
				ActorID:    current.Email,
				Action:     auditdomain.ActionLogout,
				TargetType: "session",
				Metadata:   map[string]any{"session_id": current.ID},
			})
		}
	}
	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/nftcheckout/internal/auth/domain"
	obscontext "github.com/smallbiznis/nftcheckout/internal/observability/context"
	"go.uber.org/zap"
)

const contextSessionKey = "admin_session"

// AuthRequired resolves the operator session from the cookie or bearer
// token. Revoked and expired tokens are rejected by the auth service.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		session, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextSessionKey, session)
		ctx := obscontext.WithActor(c.Request.Context(), "operator", session.Email)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func sessionFromContext(c *gin.Context) (authdomain.Session, bool) {
	value, ok := c.Get(contextSessionKey)
	if !ok {
		return authdomain.Session{}, false
	}
	session, ok := value.(authdomain.Session)
	return session, ok
}

// RateLimit throttles a public endpoint per client IP. Limiter failures
// let the request through.
func (s *Server) RateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.limiter.Allow(ctx, endpoint+":"+c.ClientIP())
		if err != nil {
			s.log.Warn("rate limiter unavailable, allowing request",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, endpoint)
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

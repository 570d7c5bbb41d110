package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/nftcheckout/internal/auth/domain"
	"github.com/smallbiznis/nftcheckout/internal/clock"
	"github.com/smallbiznis/nftcheckout/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIssueAndParse(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	issuer := newIssuer([]byte("secret"), "nftcheckout", time.Hour, clk)

	raw, sess, err := issuer.Issue(" Ops@Example.com ", "operator")
	require.NoError(t, err)
	_, err = ulid.ParseStrict(sess.ID)
	require.NoError(t, err, "token id is a ULID")

	parsed, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, parsed.ID)
	assert.Equal(t, "ops@example.com", parsed.Email)
	assert.Equal(t, "operator", parsed.Role)
	assert.True(t, parsed.ExpiresAt.Equal(sess.ExpiresAt))
}

func TestParseRejectsExpiredAndTampered(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	issuer := newIssuer([]byte("secret"), "nftcheckout", time.Hour, clk)
	raw, _, err := issuer.Issue("ops@example.com", "viewer")
	require.NoError(t, err)

	other := newIssuer([]byte("other-secret"), "nftcheckout", time.Hour, clk)
	_, err = other.Parse(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	wrongIssuer := newIssuer([]byte("secret"), "someone-else", time.Hour, clk)
	_, err = wrongIssuer.Parse(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	elevated, _, err := issuer.Issue("ops@example.com", "operator")
	require.NoError(t, err)
	parts := strings.Split(raw, ".")
	parts[1] = strings.Split(elevated, ".")[1]
	_, err = issuer.Parse(strings.Join(parts, "."))
	assert.ErrorIs(t, err, domain.ErrInvalidSession, "payload swap breaks the signature")

	clk.Advance(2 * time.Hour)
	_, err = issuer.Parse(raw)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestNewIssuerRequiresSecretInProduction(t *testing.T) {
	cfg := config.Config{Environment: "production"}
	_, err := NewIssuer(cfg, clock.SystemClock{}, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrAuthNotConfigured)

	cfg.Environment = "development"
	issuer, err := NewIssuer(cfg, clock.SystemClock{}, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, issuer.secret, 32)
}

func TestMemoryRevocationsExpire(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	store := NewMemoryRevocations(clk)
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "jti-1", clk.Now().Add(time.Minute)))
	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	clk.Advance(2 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "entries lapse with the token")
}

func TestManagerReadsCookieThenBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager(config.Config{})

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/admin/stats", nil)
	c.Request.Header.Set("Authorization", "Bearer abc.def")
	token, ok := m.ReadToken(c)
	assert.True(t, ok)
	assert.Equal(t, "abc.def", token)

	c.Request.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "cookie-token"})
	token, ok = m.ReadToken(c)
	assert.True(t, ok)
	assert.Equal(t, "cookie-token", token)
}

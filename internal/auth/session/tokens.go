package session

import (
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/nftcheckout/internal/auth/domain"
	"github.com/smallbiznis/nftcheckout/internal/clock"
	"github.com/smallbiznis/nftcheckout/internal/config"
	"go.uber.org/zap"
)

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 operator tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clock
}

// NewIssuer refuses to start in production without AUTH_JWT_SECRET. Other
// environments get a random per-process secret, which logs everyone out on
// restart.
func NewIssuer(cfg config.Config, clk clock.Clock, log *zap.Logger) (*Issuer, error) {
	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		if cfg.IsProduction() {
			return nil, domain.ErrAuthNotConfigured
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		log.Named("auth.session").Warn("AUTH_JWT_SECRET not set, using an ephemeral secret")
	}
	return newIssuer(secret, cfg.Auth.Issuer, cfg.Auth.SessionTTL, clk), nil
}

func newIssuer(secret []byte, issuer string, ttl time.Duration, clk clock.Clock) *Issuer {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Issuer{secret: secret, issuer: issuer, ttl: ttl, clock: clk}
}

func (i *Issuer) Issue(email, role string) (string, domain.Session, error) {
	now := i.clock.Now().Truncate(time.Second)
	sess := domain.Session{
		ID:        ulid.Make().String(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   sess.Email,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	})
	raw, err := token.SignedString(i.secret)
	if err != nil {
		return "", domain.Session{}, err
	}
	return raw, sess, nil
}

func (i *Issuer) Parse(raw string) (domain.Session, error) {
	var c claims
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Session{}, domain.ErrSessionExpired
		}
		return domain.Session{}, domain.ErrInvalidSession
	}
	if !token.Valid || c.ID == "" || c.Subject == "" {
		return domain.Session{}, domain.ErrInvalidSession
	}
	sess := domain.Session{
		ID:    c.ID,
		Email: c.Subject,
		Role:  c.Role,
	}
	if c.IssuedAt != nil {
		sess.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		sess.ExpiresAt = c.ExpiresAt.Time
	}
	return sess, nil
}

package service

import (
	"context"
	"strings"
	"sync"

	"github.com/smallbiznis/nftcheckout/internal/auth/domain"
	"github.com/smallbiznis/nftcheckout/internal/auth/password"
	"github.com/smallbiznis/nftcheckout/internal/auth/session"
	"github.com/smallbiznis/nftcheckout/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Policy      *config.PolicyHolder
	Issuer      *session.Issuer
	Revocations domain.RevocationStore
}

type Service struct {
	log         *zap.Logger
	policy      *config.PolicyHolder
	issuer      *session.Issuer
	revocations domain.RevocationStore

	decoyOnce sync.Once
	decoy     string
}

func New(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("auth.service"),
		policy:      p.Policy,
		issuer:      p.Issuer,
		revocations: p.Revocations,
	}
}

// Login checks the operator list from the policy file. Unknown emails still
// pay for one argon2 verification so response time does not reveal them.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return domain.LoginResult{}, domain.ErrInvalidCredentials
	}

	op, ok := s.policy.Get().FindOperator(email)
	if !ok {
		password.Verify(req.Password, s.decoyHash())
		s.log.Info("operator login rejected", zap.String("reason", "unknown_operator"), zap.String("ip", req.IPAddress))
		return domain.LoginResult{}, domain.ErrInvalidCredentials
	}
	if !password.Verify(req.Password, op.PasswordHash) {
		s.log.Info("operator login rejected", zap.String("reason", "bad_password"), zap.String("ip", req.IPAddress))
		return domain.LoginResult{}, domain.ErrInvalidCredentials
	}

	raw, sess, err := s.issuer.Issue(op.Email, op.Role)
	if err != nil {
		return domain.LoginResult{}, err
	}
	s.log.Info("operator logged in",
		zap.String("session_id", sess.ID),
		zap.String("role", sess.Role),
		zap.String("user_agent", req.UserAgent),
	)
	return domain.LoginResult{Session: sess, RawToken: raw}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	sess, err := s.issuer.Parse(rawToken)
	if err != nil {
		return err
	}
	return s.revocations.Revoke(ctx, sess.ID, sess.ExpiresAt)
}

// Authenticate also re-reads the operator from the policy, so removing an
// operator or changing their role applies to tokens already issued.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (domain.Session, error) {
	sess, err := s.issuer.Parse(rawToken)
	if err != nil {
		return domain.Session{}, err
	}
	revoked, err := s.revocations.IsRevoked(ctx, sess.ID)
	if err != nil {
		return domain.Session{}, err
	}
	if revoked {
		return domain.Session{}, domain.ErrSessionRevoked
	}
	op, ok := s.policy.Get().FindOperator(sess.Email)
	if !ok {
		return domain.Session{}, domain.ErrInvalidSession
	}
	sess.Role = op.Role
	return sess, nil
}

func (s *Service) decoyHash() string {
	s.decoyOnce.Do(func() {
		hash, err := password.Hash("decoy-password-never-valid")
		if err != nil {
			s.log.Warn("decoy hash failed", zap.Error(err))
			return
		}
		s.decoy = hash
	})
	return s.decoy
}

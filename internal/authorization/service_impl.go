package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/nftcheckout/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectDelivery    = "delivery"
	ObjectTransaction = "transaction"
	ObjectStats       = "stats"
	ObjectAudit       = "audit"
	ObjectLead        = "lead"
)

const (
	ActionDeliveryView    = "delivery.view"
	ActionDeliveryRetry   = "delivery.retry"
	ActionTransactionView = "transaction.view"
	ActionStatsView       = "stats.view"
	ActionAuditView       = "audit.view"
	ActionLeadView        = "lead.view"
	// Reconcile re-reads a payment from its gateway and settles it.
	ActionTransactionReconcile = "transaction.reconcile"
)

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer stores policies in the casbin_rule table and seeds the
// built-in role grants on every start.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, object string, action string) error {
	email := strings.ToLower(strings.TrimSpace(actor.Email))
	role := strings.ToLower(strings.TrimSpace(actor.Role))
	if email == "" || role == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := "operator:" + email
	if err := s.ensureGrouping(subject, fmt.Sprintf("role:%s", role)); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	if action == ActionDeliveryRetry || action == ActionTransactionReconcile {
		s.log.Info("authorization granted",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
	}
	return nil
}

// ensureGrouping keeps exactly one role link per operator so a role change
// in the policy file replaces the old grant.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	viewer := "role:" + config.RoleViewer
	operator := "role:" + config.RoleOperator
	policies := [][]string{
		// read-only
		{viewer, ObjectDelivery, ActionDeliveryView},
		{viewer, ObjectTransaction, ActionTransactionView},
		{viewer, ObjectStats, ActionStatsView},

		{operator, ObjectDelivery, ActionDeliveryView},
		{operator, ObjectDelivery, ActionDeliveryRetry},
		{operator, ObjectTransaction, ActionTransactionView},
		{operator, ObjectStats, ActionStatsView},
		{operator, ObjectAudit, ActionAuditView},
		{operator, ObjectTransaction, ActionTransactionReconcile},
		{operator, ObjectLead, ActionLeadView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeOperator ActorType = "operator"
	ActorTypeSystem   ActorType = "system"
	// ActorTypeAnonymous covers failed logins where no operator was resolved.
	ActorTypeAnonymous ActorType = "anonymous"
)

const (
	ActionLogin         = "operator.login"
	ActionLoginFailed   = "operator.login_failed"
	ActionLogout        = "operator.logout"
	ActionDeliveryRetry = "delivery.retry"
	// ActionTransactionReconcile is an operator re-reading a payment from
	// its gateway.
	ActionTransactionReconcile = "transaction.reconcile"
)

// AuditLog records one operator action on the admin surface.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `gorm:"type:varchar(16);not null" json:"actor_type"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `gorm:"type:varchar(64);not null" json:"action"`
	TargetType string            `gorm:"type:varchar(32);not null" json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `json:"ip_address,omitempty"`
	UserAgent  *string           `json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "operator_audit_logs" }

type ListFilter struct {
	Action    string
	ActorType string
	ActorID   string
	StartAt   *time.Time
	EndAt     *time.Time
	BeforeID  snowflake.ID
	Limit     int
}

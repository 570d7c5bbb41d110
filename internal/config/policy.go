package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/nftcheckout/internal/auth/password"
	"github.com/spf13/viper"
)

// Policy holds operational knobs that can be changed without a restart.
type Policy struct {
	Delivery  DeliveryPolicy `mapstructure:"delivery"`
	Checkout  CheckoutPolicy `mapstructure:"checkout"`
	Operators []Operator     `mapstructure:"operators"`
}

type DeliveryPolicy struct {
	MaxAttempts   int           `mapstructure:"maxAttempts"`
	BaseBackoff   time.Duration `mapstructure:"baseBackoff"`
	MaxBackoff    time.Duration `mapstructure:"maxBackoff"`
	StaleAfter    time.Duration `mapstructure:"staleAfter"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
	BatchSize     int           `mapstructure:"batchSize"`
}

type CheckoutPolicy struct {
	IntentTTL time.Duration `mapstructure:"intentTTL"`
}

const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Operator is an admin account allowed to use the operator endpoints.
type Operator struct {
	Email        string `mapstructure:"email"`
	Role         string `mapstructure:"role"`
	PasswordHash string `mapstructure:"passwordHash"`
}

func DefaultPolicy() Policy {
	return Policy{
		Delivery: DeliveryPolicy{
			MaxAttempts:   8,
			BaseBackoff:   30 * time.Second,
			MaxBackoff:    30 * time.Minute,
			StaleAfter:    10 * time.Minute,
			SweepInterval: 15 * time.Second,
			BatchSize:     25,
		},
		Checkout: CheckoutPolicy{
			IntentTTL: 30 * time.Minute,
		},
	}
}

// WithDefaults fills zero values from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	defaults := DefaultPolicy()
	if p.Delivery.MaxAttempts <= 0 {
		p.Delivery.MaxAttempts = defaults.Delivery.MaxAttempts
	}
	if p.Delivery.BaseBackoff <= 0 {
		p.Delivery.BaseBackoff = defaults.Delivery.BaseBackoff
	}
	if p.Delivery.MaxBackoff <= 0 {
		p.Delivery.MaxBackoff = defaults.Delivery.MaxBackoff
	}
	if p.Delivery.StaleAfter <= 0 {
		p.Delivery.StaleAfter = defaults.Delivery.StaleAfter
	}
	if p.Delivery.SweepInterval <= 0 {
		p.Delivery.SweepInterval = defaults.Delivery.SweepInterval
	}
	if p.Delivery.BatchSize <= 0 {
		p.Delivery.BatchSize = defaults.Delivery.BatchSize
	}
	if p.Checkout.IntentTTL <= 0 {
		p.Checkout.IntentTTL = defaults.Checkout.IntentTTL
	}
	return p
}

// FindOperator looks up an operator by case-insensitive email.
func (p Policy) FindOperator(email string) (Operator, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, op := range p.Operators {
		if strings.ToLower(strings.TrimSpace(op.Email)) == email {
			return op, true
		}
	}
	return Operator{}, false
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy.WithDefaults())
	return holder
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("checkout")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/nftcheckout")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NFTCHECKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.delivery.maxAttempts", defaults.Delivery.MaxAttempts)
	v.SetDefault("policy.delivery.baseBackoff", defaults.Delivery.BaseBackoff)
	v.SetDefault("policy.delivery.maxBackoff", defaults.Delivery.MaxBackoff)
	v.SetDefault("policy.delivery.staleAfter", defaults.Delivery.StaleAfter)
	v.SetDefault("policy.delivery.sweepInterval", defaults.Delivery.SweepInterval)
	v.SetDefault("policy.delivery.batchSize", defaults.Delivery.BatchSize)
	v.SetDefault("policy.checkout.intentTTL", defaults.Checkout.IntentTTL)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var policy Policy
	if err := v.UnmarshalKey("policy", &policy); err != nil {
		return nil, err
	}
	policy = policy.WithDefaults()
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[checkout-policy] reload failed: %v", err)
			return
		}
		updated = updated.WithDefaults()
		if err := validatePolicy(updated); err != nil {
			log.Printf("[checkout-policy] invalid policy ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[checkout-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	return h.current.Load().(Policy)
}

func validatePolicy(p Policy) error {
	if p.Delivery.BaseBackoff > p.Delivery.MaxBackoff {
		return errors.New("policy.delivery.baseBackoff cannot exceed maxBackoff")
	}
	for _, op := range p.Operators {
		if strings.TrimSpace(op.Email) == "" {
			return errors.New("policy.operators[].email is required")
		}
		switch op.Role {
		case RoleOperator, RoleViewer:
		default:
			return fmt.Errorf("policy.operators[%s].role must be %q or %q", op.Email, RoleOperator, RoleViewer)
		}
		if strings.TrimSpace(op.PasswordHash) == "" {
			return errors.New("policy.operators[].passwordHash is required")
		}
		if err := password.Check(op.PasswordHash); err != nil {
			return fmt.Errorf("policy.operators[%s].passwordHash: %w", op.Email, err)
		}
	}
	return nil
}

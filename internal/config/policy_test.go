package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyWithDefaults(t *testing.T) {
	policy := Policy{Delivery: DeliveryPolicy{MaxAttempts: 3}}.WithDefaults()

	assert.Equal(t, 3, policy.Delivery.MaxAttempts)
	assert.Equal(t, 30*time.Second, policy.Delivery.BaseBackoff)
	assert.Equal(t, 30*time.Minute, policy.Checkout.IntentTTL)
}

func TestValidatePolicyRejectsInvertedBackoff(t *testing.T) {
	policy := DefaultPolicy()
	policy.Delivery.BaseBackoff = time.Hour
	policy.Delivery.MaxBackoff = time.Minute

	require.Error(t, validatePolicy(policy))
}

func TestFindOperatorIsCaseInsensitive(t *testing.T) {
	holder := NewStaticPolicyHolder(Policy{
		Operators: []Operator{{Email: "Ops@Example.com", Role: "operator", PasswordHash: "x"}},
	})

	op, ok := holder.Get().FindOperator(" ops@example.com ")
	require.True(t, ok)
	assert.Equal(t, "operator", op.Role)

	_, ok = holder.Get().FindOperator("nobody@example.com")
	assert.False(t, ok)
}

func TestValidatePolicyChecksOperators(t *testing.T) {
	policy := DefaultPolicy()
	policy.Operators = []Operator{{Email: "ops@example.com", Role: RoleOperator, PasswordHash: "plaintext"}}
	require.Error(t, validatePolicy(policy), "hash must be argon2id")

	policy.Operators[0].PasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA"
	require.NoError(t, validatePolicy(policy))

	policy.Operators[0].Role = "admin"
	require.Error(t, validatePolicy(policy))
}

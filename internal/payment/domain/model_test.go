package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGateway(t *testing.T) {
	g, err := ParseGateway(" PayPal ")
	require.NoError(t, err)
	assert.Equal(t, GatewayPayPal, g)

	_, err = ParseGateway("stripe")
	assert.ErrorIs(t, err, ErrUnknownGateway)
}

func TestBuyerMergeKeepsPrimaryValues(t *testing.T) {
	primary := Buyer{Email: "a@example.com"}
	merged := primary.Merge(Buyer{Email: "b@example.com", Name: "Ann", WalletAddress: "0xabc"})

	assert.Equal(t, "a@example.com", merged.Email)
	assert.Equal(t, "Ann", merged.Name)
	assert.Equal(t, "0xabc", merged.WalletAddress)
}

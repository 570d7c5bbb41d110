package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceipt(t *testing.T) {
	var gotAddr string
	var gotTo []string
	var gotMsg string
	provider := NewSMTP(Config{Host: "smtp.test", Port: 2525, From: "shop@example.com"})
	provider.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := SendReceipt(context.Background(), provider, Receipt{
		To:              "buyer@example.com",
		BuyerName:       "Asha",
		AssetID:         "7",
		ContractAddress: "0xabc",
		TransactionID:   "pay_R1",
		Amount:          decimal.New(4900, -2),
		Currency:        "INR",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Equal(t, []string{"buyer@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Your NFT purchase is complete\r\n")
	assert.Contains(t, gotMsg, "49.00 INR")
	assert.Contains(t, gotMsg, "Contract: 0xabc")
	assert.True(t, strings.HasPrefix(gotMsg, "From: shop@example.com\r\n"))
}

func TestSendReceiptSkipsWithoutRecipient(t *testing.T) {
	provider := NewSMTP(Config{})
	provider.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	require.NoError(t, SendReceipt(context.Background(), provider, Receipt{}))
}

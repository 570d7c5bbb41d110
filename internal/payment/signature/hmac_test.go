package signature

import (
	"strings"
	"testing"

	"github.com/smallbiznis/nftcheckout/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyHMACSHA256(t *testing.T) {
	payload := []byte(`{"event":"payment.captured"}`)
	secret := "whsec"
	valid := Sign(payload, secret)

	tests := []struct {
		name    string
		payload []byte
		secret  string
		sig     string
		wantErr bool
	}{
		{name: "valid", payload: payload, secret: secret, sig: valid},
		{name: "uppercase hex", payload: payload, secret: secret, sig: strings.ToUpper(valid)},
		{name: "wrong secret", payload: payload, secret: "other", sig: valid, wantErr: true},
		{name: "tampered payload", payload: []byte(`{"event":"payment.captured" }`), secret: secret, sig: valid, wantErr: true},
		{name: "empty secret", payload: payload, secret: "", sig: valid, wantErr: true},
		{name: "empty signature", payload: payload, secret: secret, sig: "", wantErr: true},
		{name: "non hex", payload: payload, secret: secret, sig: "zz-not-hex", wantErr: true},
		{name: "truncated", payload: payload, secret: secret, sig: valid[:32], wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifyHMACSHA256(tc.payload, tc.secret, tc.sig)
			if tc.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidSignature)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRazorpayCheckoutPayload(t *testing.T) {
	assert.Equal(t, "order_1|pay_1", string(RazorpayCheckoutPayload(" order_1", "pay_1 ")))
}

func TestVerifyRazorpayCheckout(t *testing.T) {
	sig := Sign(RazorpayCheckoutPayload("order_1", "pay_1"), "key_secret")

	require.NoError(t, VerifyRazorpayCheckout(" order_1", "pay_1", "key_secret", sig))
	require.NoError(t, VerifyRazorpayCheckout("order_1", "pay_1", "key_secret", strings.ToUpper(sig)))
	assert.ErrorIs(t, VerifyRazorpayCheckout("order_1", "pay_2", "key_secret", sig), domain.ErrInvalidSignature)
	assert.ErrorIs(t, VerifyRazorpayCheckout("order_1", "pay_1", "", sig), domain.ErrInvalidSignature)
	assert.ErrorIs(t, VerifyRazorpayCheckout("order_1", "pay_1", "key_secret", ""), domain.ErrInvalidSignature)
}

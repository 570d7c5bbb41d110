// Package signature checks gateway HMAC signatures over raw request bytes.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	razorpayutils "github.com/razorpay/razorpay-go/utils"
	"github.com/smallbiznis/nftcheckout/internal/payment/domain"
)

// VerifyHMACSHA256 checks a hex HMAC-SHA256 signature of payload. Any
// missing or malformed input fails closed.
func VerifyHMACSHA256(payload []byte, secret, signatureHex string) error {
	signatureHex, ok := normalize(secret, signatureHex)
	if !ok || !razorpayutils.VerifySignature(payload, signatureHex, secret) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// VerifyRazorpayCheckout checks the signature Razorpay hands the browser
// when a checkout completes.
func VerifyRazorpayCheckout(orderID, paymentID, secret, signatureHex string) error {
	signatureHex, ok := normalize(secret, signatureHex)
	if !ok {
		return domain.ErrInvalidSignature
	}
	params := map[string]interface{}{
		"razorpay_order_id":   strings.TrimSpace(orderID),
		"razorpay_payment_id": strings.TrimSpace(paymentID),
	}
	if !razorpayutils.VerifyPaymentSignature(params, signatureHex, secret) {
		return domain.ErrInvalidSignature
	}
	return nil
}

// normalize lower-cases a signature and rejects anything that is not a
// SHA-256 sized hex digest.
func normalize(secret, signatureHex string) (string, bool) {
	if secret == "" {
		return "", false
	}
	signatureHex = strings.ToLower(strings.TrimSpace(signatureHex))
	raw, err := hex.DecodeString(signatureHex)
	if err != nil || len(raw) != sha256.Size {
		return "", false
	}
	return signatureHex, true
}

// Sign returns the lower-case hex HMAC-SHA256 of payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// RazorpayCheckoutPayload is the string Razorpay signs when a checkout completes.
func RazorpayCheckoutPayload(orderID, paymentID string) []byte {
	return []byte(strings.TrimSpace(orderID) + "|" + strings.TrimSpace(paymentID))
}

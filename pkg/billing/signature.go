package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifySignature checks the HMAC-SHA256 hex digest of body against
// signatureHeader, using secret as the key. §6 says the payload carries a
// `signature` field but also describes the HMAC as computed "over the raw
// body" — circular if the signature itself is part of that body. This
// module resolves it the way most webhook providers do (Stripe, Shopify):
// the authoritative signature travels in a request header
// (X-Webhook-Signature), computed over the exact bytes of the body before
// parsing; the JSON `signature` field is accepted as present but not
// trusted for verification. See DESIGN.md for the rationale.
func VerifySignature(secret string, body []byte, signatureHeader string) bool {
	if secret == "" || signatureHeader == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Verifier authenticates storefront deliveries with the shared app secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign returns base64(HMAC-SHA256(secret, body)).
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature was produced over the exact body bytes.
// body must be the raw request body; any re-encoding breaks the comparison.
func (v *Verifier) Verify(body []byte, signature string) bool {
	if signature == "" || len(v.secret) == 0 {
		return false
	}
	claimed, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), claimed)
}

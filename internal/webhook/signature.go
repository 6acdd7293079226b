package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix precedes the hex digest in the X-Formerr-Signature header.
const SignaturePrefix = "sha256="

// Sign computes the delivery signature over the exact byte sequence that goes
// on the wire: sha256=<lowercase hex HMAC-SHA256>. The payload must not be
// re-serialized between signing and sending.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over the received body bytes and compares it
// against the header value in constant time. Used by receivers (including
// cmd/fake-receiver) to authenticate deliveries.
func Verify(payload []byte, secret, header string) bool {
	if !strings.HasPrefix(header, SignaturePrefix) {
		return false
	}
	want := Sign(payload, secret)
	return hmac.Equal([]byte(header), []byte(want))
}

package webhook

import (
	"strings"
	"testing"
)

func TestSign(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		secret  string
		want    string
	}{
		{
			// RFC 4231-style known vector for HMAC-SHA256
			name:    "known vector",
			payload: "The quick brown fox jumps over the lazy dog",
			secret:  "key",
			want:    "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8",
		},
		{
			name:    "empty payload still signs",
			payload: "",
			secret:  "whsec_abc",
		},
		{
			name:    "json payload",
			payload: `{"event":"submission.created","form_id":"form_42"}`,
			secret:  "whsec_abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sign([]byte(tt.payload), tt.secret)

			if !strings.HasPrefix(got, SignaturePrefix) {
				t.Errorf("Sign() = %q, missing %q prefix", got, SignaturePrefix)
			}
			if hex := strings.TrimPrefix(got, SignaturePrefix); len(hex) != 64 {
				t.Errorf("Sign() digest length = %d, want 64 hex chars", len(hex))
			}
			if got != strings.ToLower(got) {
				t.Errorf("Sign() = %q, digest must be lowercase", got)
			}
			if tt.want != "" && got != tt.want {
				t.Errorf("Sign() = %q, want %q", got, tt.want)
			}

			// Deterministic for identical inputs
			if again := Sign([]byte(tt.payload), tt.secret); again != got {
				t.Errorf("Sign() not deterministic: %q vs %q", got, again)
			}
		})
	}
}

func TestSignDistinguishesInputs(t *testing.T) {
	payload := []byte(`{"event":"form.updated"}`)

	if Sign(payload, "secret-a") == Sign(payload, "secret-b") {
		t.Error("Sign() produced equal signatures for different secrets")
	}
	if Sign([]byte("a"), "secret") == Sign([]byte("b"), "secret") {
		t.Error("Sign() produced equal signatures for different payloads")
	}
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"event":"submission.created","data":{"x":1}}`)
	secret := "whsec_0123456789abcdef0123456789abcdef"
	sig := Sign(payload, secret)

	tests := []struct {
		name    string
		payload []byte
		secret  string
		header  string
		want    bool
	}{
		{"valid signature", payload, secret, sig, true},
		{"wrong secret", payload, "whsec_other", sig, false},
		{"tampered payload", []byte(`{"event":"form.deleted"}`), secret, sig, false},
		{"missing prefix", payload, secret, strings.TrimPrefix(sig, SignaturePrefix), false},
		{"empty header", payload, secret, "", false},
		{"garbage header", payload, secret, "sha256=zzzz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.payload, tt.secret, tt.header); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

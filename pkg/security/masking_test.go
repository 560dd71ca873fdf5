package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		absent   string
	}{
		{"api key", `{"error":"bad api_key: sk_live_abcdef1234567890"}`, "api_key: " + redacted, "sk_live_abcdef1234567890"},
		{"jwt", "token eyJhbGciOi.eyJzdWIiOi.c2lnbmF0dXJl", "eyJ" + redacted, "c2lnbmF0dXJl"},
		{"email", "notify alice@example.com", "al***@example.com", "alice@"},
		{"tron address", "payout to TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE failed", "TQn9Y2...bLSE", "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := MaskString(tt.input)
			assert.Contains(t, out, tt.contains)
			assert.NotContains(t, out, tt.absent)
		})
	}
}

func TestMaskAddressAndKey(t *testing.T) {
	assert.Equal(t, "TQn9Y2...bLSE", MaskAddress("TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE"))
	assert.Equal(t, "*****", MaskAddress("short"))
	assert.Equal(t, "abcd****", MaskAPIKey("abcdefgh"))
	assert.Equal(t, "****", MaskAPIKey("abc"))
}

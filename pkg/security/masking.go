// Package security masks credentials and personal data before they reach logs
// or error messages.
package security

import (
	"regexp"
	"strings"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	jwtPattern    = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`)
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|token|password|signature)(["\s:=]+["']?)([a-zA-Z0-9_\-]{12,})`)
	// TRON base58check addresses
	tronPattern = regexp.MustCompile(`\bT[1-9A-HJ-NP-Za-km-z]{33}\b`)
)

const redacted = "***REDACTED***"

// MaskString masks credentials, emails and wallet addresses found in s
func MaskString(s string) string {
	s = jwtPattern.ReplaceAllString(s, "eyJ"+redacted)
	s = apiKeyPattern.ReplaceAllString(s, "$1$2"+redacted)
	s = emailPattern.ReplaceAllStringFunc(s, maskEmail)
	s = tronPattern.ReplaceAllStringFunc(s, MaskAddress)
	return s
}

// MaskAddress keeps the first 6 and last 4 characters of a wallet address
func MaskAddress(addr string) string {
	if len(addr) < 12 {
		return strings.Repeat("*", len(addr))
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// MaskAPIKey keeps only the first 4 characters of a key
func MaskAPIKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-4)
}

func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***@***"
	}
	return maskPartial(local, 2) + "@" + domain
}

func maskPartial(s string, showChars int) string {
	if len(s) <= showChars {
		return strings.Repeat("*", len(s))
	}
	return s[:showChars] + strings.Repeat("*", len(s)-showChars)
}

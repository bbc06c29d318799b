package utils

import (
	"regexp"
	"strings"
)

var dsnPasswordRegex = regexp.MustCompile(`(:)([^:@/]+)(@)`)

// MaskDSN hides the password part of a connection string.
func MaskDSN(dsn string) string {
	return dsnPasswordRegex.ReplaceAllString(dsn, ":***@")
}

// MaskKey shortens a hex key or signature for logs: first and last 6 chars.
// WOTS public keys are 128 hex chars and signatures several thousand.
func MaskKey(key string) string {
	key = strings.TrimPrefix(strings.TrimPrefix(key, "0x"), "0X")
	if len(key) <= 16 {
		return key
	}
	return key[:6] + "…" + key[len(key)-6:]
}

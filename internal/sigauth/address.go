package sigauth

import (
	"encoding/hex"
	"strings"
)

// DecodeHex strips an optional 0x prefix and decodes hex.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

// AddressOf derives the market-maker address for a WOTS+ public key:
// 0x + last 20 bytes of keccak256(publicKey).
func AddressOf(publicKey string) (string, error) {
	raw, err := DecodeHex(publicKey)
	if err != nil || len(raw) != PubKeySize {
		return "", ErrMalformedKey
	}
	return "0x" + hex.EncodeToString(keccak(raw)[12:]), nil
}

// NormalizeKey returns the lowercase unprefixed hex form of a public key so
// that equality checks ignore prefix and case.
func NormalizeKey(publicKey string) string {
	raw, err := DecodeHex(publicKey)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(publicKey))
	}
	return hex.EncodeToString(raw)
}

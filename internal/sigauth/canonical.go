package sigauth

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/Checker-Finance/private-otc/pkg/model"
)

// Canonical signed messages are the compact JSON encoding of a positional
// array: strings as-is (no HTML escaping), timestamps as integer Unix
// milliseconds. Signers must produce byte-identical payloads.

func canonical(fields ...any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(fields)
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// CreateRequestMessage is signed by the taker: [assetPair, direction, amount, timeout].
func CreateRequestMessage(assetPair, direction, amount string, timeout time.Time) []byte {
	return canonical(assetPair, direction, amount, timeout.UnixMilli())
}

// SubmitQuoteMessage is signed by the maker: [quoteRequestId, price, expiration].
func SubmitQuoteMessage(quoteRequestID, price string, expiration time.Time) []byte {
	return canonical(quoteRequestID, price, expiration.UnixMilli())
}

// AcceptQuoteMessage is signed by the taker: [quoteId, quoteRequestId].
func AcceptQuoteMessage(quoteID, quoteRequestID string) []byte {
	return canonical(quoteID, quoteRequestID)
}

// CancelRequestMessage is signed by the taker: [quoteRequestId].
func CancelRequestMessage(quoteRequestID string) []byte {
	return canonical(quoteRequestID)
}

// SendMessageMessage is signed by the sender: [quoteRequestId, recipientStealthAddress, encryptedContent].
func SendMessageMessage(quoteRequestID, recipient, encryptedContent string) []byte {
	return canonical(quoteRequestID, recipient, encryptedContent)
}

// WhitelistMessage is signed by the admin: [address, operation].
func WhitelistMessage(address string, action model.AuditAction) []byte {
	return canonical(address, string(action))
}

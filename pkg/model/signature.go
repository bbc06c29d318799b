package model

import "time"

// Operation names the action a one-time signature authorised.
type Operation string

const (
	OpCreateQuoteRequest Operation = "create_quote_request"
	OpCancelQuoteRequest Operation = "cancel_quote_request"
	OpSubmitQuote        Operation = "submit_quote"
	OpAcceptQuote        Operation = "accept_quote"
	OpSendMessage        Operation = "send_message"
	OpWhitelistAdd       Operation = "whitelist_add"
	OpWhitelistRemove    Operation = "whitelist_remove"
)

// UsedSignature records that a signature has been consumed.
// Its existence is authoritative proof of reuse, whatever the operation.
type UsedSignature struct {
	SignatureHash string    `json:"signature_hash"`
	OperationType Operation `json:"operation_type"`
	PublicKey     string    `json:"public_key"`
	UsedAt        time.Time `json:"used_at"`
}

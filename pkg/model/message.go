package model

import "time"

// Message is an encrypted note between the taker and a maker on one request.
// The server never sees the plaintext. Readers get Direction instead of the
// sender key, which would double as a read credential.
type Message struct {
	ID                      string    `json:"id"`
	QuoteRequestID          string    `json:"quote_request_id"`
	SenderPublicKey         string    `json:"-"`
	RecipientStealthAddress string    `json:"recipient_stealth_address"`
	EncryptedContent        string    `json:"encrypted_content"`
	EphemeralPublicKey      string    `json:"ephemeral_public_key"`
	IV                      string    `json:"iv"`
	AuthTag                 string    `json:"auth_tag"`
	CreatedAt               time.Time `json:"created_at"`
}

// MessageDirection tags a message relative to the caller reading it.
type MessageDirection string

const (
	MessageSent     MessageDirection = "sent"
	MessageReceived MessageDirection = "received"
)

// MessageView is a Message as returned to one caller.
type MessageView struct {
	Message
	Direction MessageDirection `json:"direction"`
}

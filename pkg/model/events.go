package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Checker-Finance/private-otc/pkg/chain"
)

// Event types published on the bus and forwarded to brokers.
const (
	EventQuoteRequestCreated   = "quote_request.created"
	EventQuoteRequestCancelled = "quote_request.cancelled"
	EventQuoteRequestFilled    = "quote_request.filled"
	EventQuoteSubmitted        = "quote.submitted"
)

// Envelope wraps every event published to NATS or RabbitMQ.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh v1 envelope.
func NewEnvelope(eventType string, payload any, ts time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:        uuid.New(),
		EventType: eventType,
		Version:   "v1",
		Timestamp: ts.UTC(),
		Payload:   raw,
	}, nil
}

// Event is implemented by every domain event.
type Event interface {
	EventType() string
	OccurredAt() time.Time
}

type QuoteRequestCreated struct {
	QuoteRequestID   string      `json:"quote_request_id"`
	AssetPair        string      `json:"asset_pair"`
	Direction        Direction   `json:"direction"`
	Chain            chain.Chain `json:"chain"`
	AmountCommitment string      `json:"amount_commitment"`
	ExpiresAt        time.Time   `json:"expires_at"`
	At               time.Time   `json:"at"`
}

func (e QuoteRequestCreated) EventType() string    { return EventQuoteRequestCreated }
func (e QuoteRequestCreated) OccurredAt() time.Time { return e.At }

type QuoteRequestCancelled struct {
	QuoteRequestID string    `json:"quote_request_id"`
	At             time.Time `json:"at"`
}

func (e QuoteRequestCancelled) EventType() string    { return EventQuoteRequestCancelled }
func (e QuoteRequestCancelled) OccurredAt() time.Time { return e.At }

type QuoteSubmitted struct {
	QuoteID         string    `json:"quote_id"`
	QuoteRequestID  string    `json:"quote_request_id"`
	PriceCommitment string    `json:"price_commitment"`
	ExpiresAt       time.Time `json:"expires_at"`
	At              time.Time `json:"at"`
}

func (e QuoteSubmitted) EventType() string    { return EventQuoteSubmitted }
func (e QuoteSubmitted) OccurredAt() time.Time { return e.At }

type QuoteRequestFilled struct {
	QuoteRequestID   string      `json:"quote_request_id"`
	QuoteID          string      `json:"quote_id"`
	NullifierHash    string      `json:"nullifier_hash"`
	SettlementTxHash string      `json:"settlement_tx_hash,omitempty"`
	Chain            chain.Chain `json:"chain"`
	At               time.Time   `json:"at"`
}

func (e QuoteRequestFilled) EventType() string    { return EventQuoteRequestFilled }
func (e QuoteRequestFilled) OccurredAt() time.Time { return e.At }

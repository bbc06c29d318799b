package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/private-otc/pkg/chain"
)

// Direction is the taker's side of the trade on the base asset.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Valid reports whether d is buy or sell.
func (d Direction) Valid() bool { return d == DirectionBuy || d == DirectionSell }

// RequestStatus is the lifecycle state of a QuoteRequest.
type RequestStatus string

const (
	RequestActive    RequestStatus = "active"
	RequestExpired   RequestStatus = "expired"
	RequestFilled    RequestStatus = "filled"
	RequestCancelled RequestStatus = "cancelled"
)

// QuoteStatus is the lifecycle state of a Quote.
type QuoteStatus string

const (
	QuoteActive   QuoteStatus = "active"
	QuoteExpired  QuoteStatus = "expired"
	QuoteAccepted QuoteStatus = "accepted"
)

// QuoteRequest is a taker's private trade intent.
// NullifierHash is set if and only if Status is filled. TakerPublicKey is
// the read credential for the request's messages and never leaves the server.
type QuoteRequest struct {
	ID               string        `json:"id"`
	AssetPair        string        `json:"asset_pair"`
	Direction        Direction     `json:"direction"`
	AmountCommitment string        `json:"amount_commitment"`
	StealthAddress   string        `json:"stealth_address"`
	StealthPublicKey string        `json:"stealth_public_key"`
	TakerPublicKey   string        `json:"-"`
	Chain            chain.Chain   `json:"chain"`
	CreatedAt        time.Time     `json:"created_at"`
	ExpiresAt        time.Time     `json:"expires_at"`
	Status           RequestStatus `json:"status"`
	NullifierHash    string        `json:"nullifier_hash,omitempty"`
	SettlementTxHash string        `json:"settlement_tx_hash,omitempty"`
	FilledQuoteID    string        `json:"filled_quote_id,omitempty"`

	// Commitment opening; kept server side only.
	Amount         decimal.Decimal `json:"-"`
	AmountBlinding string          `json:"-"`
}

// ExpiredAt reports whether the request's deadline has passed at now.
func (r *QuoteRequest) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// BaseAsset returns the symbol before the slash, e.g. SOL in SOL/USDC.
func (r *QuoteRequest) BaseAsset() string {
	base, _, _ := strings.Cut(r.AssetPair, "/")
	return base
}

// QuoteAsset returns the symbol after the slash, e.g. USDC in SOL/USDC.
func (r *QuoteRequest) QuoteAsset() string {
	_, quote, _ := strings.Cut(r.AssetPair, "/")
	return quote
}

// Quote is a market maker's hidden-price answer to a QuoteRequest.
// ExpiresAt never exceeds the parent request's ExpiresAt.
type Quote struct {
	ID               string      `json:"id"`
	QuoteRequestID   string      `json:"quote_request_id"`
	PriceCommitment  string      `json:"price_commitment"`
	MakerPublicKey   string      `json:"-"`
	MakerAddress     string      `json:"maker_address"`
	StealthAddress   string      `json:"stealth_address"`
	StealthPublicKey string      `json:"stealth_public_key"`
	CreatedAt        time.Time   `json:"created_at"`
	ExpiresAt        time.Time   `json:"expires_at"`
	Status           QuoteStatus `json:"status"`

	Price         decimal.Decimal `json:"-"`
	PriceBlinding string          `json:"-"`
}

// ExpiredAt reports whether the quote's deadline has passed at now.
func (q *Quote) ExpiredAt(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}

// QuoteSummary is the public listing view of an open quote.
type QuoteSummary struct {
	ID              string    `json:"id"`
	PriceCommitment string    `json:"price_commitment"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Summary returns the listing view of q.
func (q *Quote) Summary() QuoteSummary {
	return QuoteSummary{ID: q.ID, PriceCommitment: q.PriceCommitment, ExpiresAt: q.ExpiresAt}
}

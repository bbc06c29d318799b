// Package store persists quote requests, quotes, messages, the market-maker
// whitelist and the used-signature ledger.
//
// Every read-then-write on a status field is a single conditional update or
// runs inside FillQuoteRequest; callers never do read-modify-write themselves.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Checker-Finance/private-otc/pkg/model"
)

var (
	// ErrNotFound is returned by point lookups that match no row.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when an insert collides with an existing key.
	ErrDuplicate = errors.New("store: duplicate key")
)

// Fill is what a successful settlement writes onto the quote request.
type Fill struct {
	NullifierHash    string
	SettlementTxHash string
}

// SettleFunc runs while the quote request (and quote) are locked. It sees the
// locked rows and returns the fill to persist, or an error to roll back.
type SettleFunc func(ctx context.Context, req *model.QuoteRequest, quote *model.Quote) (*Fill, error)

// QuoteRequestStore persists quote requests.
type QuoteRequestStore interface {
	InsertQuoteRequest(ctx context.Context, r *model.QuoteRequest) error
	GetQuoteRequest(ctx context.Context, id string) (*model.QuoteRequest, error)
	// UpdateQuoteRequestStatus moves id from -> to and reports whether it did.
	UpdateQuoteRequestStatus(ctx context.Context, id string, from, to model.RequestStatus) (bool, error)
	// FillQuoteRequest locks the request and quote, runs settle, then marks the
	// request filled and the quote accepted in one transaction. Any error from
	// settle leaves both rows untouched.
	FillQuoteRequest(ctx context.Context, requestID, quoteID string, settle SettleFunc) (*model.QuoteRequest, *model.Quote, error)
}

// QuoteStore persists quotes.
type QuoteStore interface {
	InsertQuote(ctx context.Context, q *model.Quote) error
	GetQuote(ctx context.Context, id string) (*model.Quote, error)
	// ListQuotesByRequest returns quotes on requestID ordered by creation.
	// An empty status matches any status; a zero aliveAt disables the expiry filter.
	ListQuotesByRequest(ctx context.Context, requestID string, status model.QuoteStatus, aliveAt time.Time) ([]model.Quote, error)
	UpdateQuoteStatus(ctx context.Context, id string, from, to model.QuoteStatus) (bool, error)
}

// MessageStore persists encrypted messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, m *model.Message) error
	// ListMessages returns messages on requestID in ascending time order.
	ListMessages(ctx context.Context, requestID string) ([]model.Message, error)
}

// WhitelistStore persists the market-maker whitelist and its audit log.
type WhitelistStore interface {
	// AddWhitelistEntry inserts e and appends audit atomically. ErrDuplicate if present.
	AddWhitelistEntry(ctx context.Context, e model.WhitelistEntry, audit model.AuditRecord) error
	// RemoveWhitelistEntry deletes address and appends audit atomically. ErrNotFound if absent.
	RemoveWhitelistEntry(ctx context.Context, address string, audit model.AuditRecord) error
	GetWhitelistEntry(ctx context.Context, address string) (*model.WhitelistEntry, error)
	ListWhitelist(ctx context.Context) ([]model.WhitelistEntry, error)
	ListAudit(ctx context.Context, limit int) ([]model.AuditRecord, error)
}

// SignatureLedger persists consumed signatures. Satisfies sigauth.Ledger.
type SignatureLedger interface {
	GetUsedSignature(ctx context.Context, signatureHash string) (*model.UsedSignature, error)
	InsertUsedSignature(ctx context.Context, rec model.UsedSignature) (bool, error)
	DeleteUsedSignature(ctx context.Context, signatureHash string) error
}

// ExpiryStore bulk-expires rows whose deadline passed. Both updates are
// conditional on the active status, so rows locked by a fill are skipped
// once the fill commits.
type ExpiryStore interface {
	ExpireQuoteRequests(ctx context.Context, now time.Time) ([]string, error)
	ExpireQuotes(ctx context.Context, now time.Time) ([]string, error)
}

// Store is the full persistence collaborator.
type Store interface {
	QuoteRequestStore
	QuoteStore
	ExpiryStore
	MessageStore
	WhitelistStore
	SignatureLedger
	HealthCheck(ctx context.Context) error
	Close() error
}

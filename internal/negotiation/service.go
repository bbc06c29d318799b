// Package negotiation owns the quote-request and quote lifecycles: creation,
// quoting, cancellation, lazy expiry and the exactly-once fill on acceptance.
package negotiation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/metrics"
	"github.com/Checker-Finance/private-otc/internal/otcerr"
	"github.com/Checker-Finance/private-otc/internal/settlement"
	"github.com/Checker-Finance/private-otc/internal/sigauth"
	"github.com/Checker-Finance/private-otc/internal/store"
	"github.com/Checker-Finance/private-otc/pkg/chain"
	"github.com/Checker-Finance/private-otc/pkg/eventbus"
	"github.com/Checker-Finance/private-otc/pkg/model"
)

// Store is the persistence the state machine needs.
type Store interface {
	store.QuoteRequestStore
	store.QuoteStore
}

// Settlement moves funds and answers balance checks.
type Settlement interface {
	Withdraw(ctx context.Context, req settlement.WithdrawRequest) (*settlement.WithdrawResult, error)
	CheckBalance(ctx context.Context, q settlement.BalanceQuery) (bool, error)
}

// Whitelist answers whether a market-maker address may quote.
type Whitelist interface {
	IsWhitelisted(ctx context.Context, address string) (bool, error)
}

// Config tunes the state machine.
type Config struct {
	// MaxRequestHorizon caps how far in the future a request may expire.
	MaxRequestHorizon time.Duration
	// SettlementTimeout bounds the withdraw call made while the fill holds its locks.
	SettlementTimeout time.Duration
	// WhitelistEnabled gates SubmitQuote on the whitelist.
	WhitelistEnabled bool
	// DefaultChain is used when a request does not name one.
	DefaultChain chain.Chain
	// ExplorerNetwork selects the explorer cluster/subdomain ("" for mainnet).
	ExplorerNetwork string
	Units           Decimals
}

func (c *Config) applyDefaults() {
	if c.MaxRequestHorizon <= 0 {
		c.MaxRequestHorizon = 24 * time.Hour
	}
	if c.SettlementTimeout <= 0 {
		c.SettlementTimeout = 15 * time.Second
	}
	if !c.DefaultChain.Valid() {
		c.DefaultChain = chain.Solana
	}
	if c.Units == nil {
		c.Units = DefaultAssetDecimals
	}
}

// Service is the negotiation state machine.
type Service struct {
	logger     *zap.Logger
	cfg        Config
	store      Store
	auth       *sigauth.Service
	settlement Settlement
	whitelist  Whitelist
	bus        *eventbus.EventBus
	now        func() time.Time
}

// NewService wires the state machine. bus may be nil.
func NewService(
	logger *zap.Logger,
	cfg Config,
	st Store,
	auth *sigauth.Service,
	settle Settlement,
	whitelist Whitelist,
	bus *eventbus.EventBus,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Service{
		logger:     logger,
		cfg:        cfg,
		store:      st,
		auth:       auth,
		settlement: settle,
		whitelist:  whitelist,
		bus:        bus,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) publish(ev model.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

// observe records the outcome of one operation. Use with a named error result.
func (s *Service) observe(op model.Operation, start time.Time, err *error) {
	result := "ok"
	if *err != nil {
		result = otcerr.ErrInternal.Code
		if e, ok := otcerr.As(*err); ok {
			result = e.Code
		}
	}
	metrics.IncOperation(string(op), result)
	metrics.ObserveDuration(metrics.OperationDuration, start, string(op))
}

func (s *Service) authenticate(ctx context.Context, req sigauth.Request) (*sigauth.Grant, error) {
	grant, err := s.auth.Authenticate(ctx, req, sigauth.Options{})
	switch {
	case err == nil:
		metrics.IncSignature("ok")
	case errors.Is(err, otcerr.ErrSignatureReused):
		metrics.IncSignature("reused")
	case errors.Is(err, otcerr.ErrInvalidSignature):
		metrics.IncSignature("invalid")
	}
	return grant, err
}

// release gives back the signature of an operation that did not persist.
// Deferred right after authenticate; a committed grant is left alone.
func (s *Service) release(ctx context.Context, grant *sigauth.Grant) {
	_ = grant.Release(ctx)
}

func notFoundOr(err error, nf *otcerr.Error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nf
	}
	return otcerr.Internal(err)
}

// loadRequest reads a request and applies lazy expiry.
func (s *Service) loadRequest(ctx context.Context, id string) (*model.QuoteRequest, error) {
	if id == "" {
		return nil, otcerr.Validation("quoteRequestId", "quoteRequestId is required")
	}
	r, err := s.store.GetQuoteRequest(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, otcerr.ErrRequestNotFound)
	}
	return s.expireRequest(ctx, r)
}

// expireRequest persists active → expired once the deadline passed. If the
// conditional update loses a race the row is re-read.
func (s *Service) expireRequest(ctx context.Context, r *model.QuoteRequest) (*model.QuoteRequest, error) {
	if r.Status != model.RequestActive || !r.ExpiredAt(s.now()) {
		return r, nil
	}
	ok, err := s.store.UpdateQuoteRequestStatus(ctx, r.ID, model.RequestActive, model.RequestExpired)
	if err != nil {
		return nil, otcerr.Internal(err)
	}
	if ok {
		metrics.IncTransition(string(model.RequestExpired))
		s.logger.Info("negotiation.request.expired", zap.String("quote_request_id", r.ID))
		r.Status = model.RequestExpired
		return r, nil
	}
	fresh, err := s.store.GetQuoteRequest(ctx, r.ID)
	if err != nil {
		return nil, otcerr.Internal(err)
	}
	return fresh, nil
}

func (s *Service) expireQuote(ctx context.Context, q *model.Quote) {
	if q.Status != model.QuoteActive || !q.ExpiredAt(s.now()) {
		return
	}
	ok, err := s.store.UpdateQuoteStatus(ctx, q.ID, model.QuoteActive, model.QuoteExpired)
	if err != nil {
		s.logger.Warn("negotiation.quote.expire_failed", zap.String("quote_id", q.ID), zap.Error(err))
		return
	}
	if ok {
		q.Status = model.QuoteExpired
	}
}

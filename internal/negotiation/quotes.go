package negotiation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/otcerr"
	"github.com/Checker-Finance/private-otc/internal/privacy"
	"github.com/Checker-Finance/private-otc/internal/settlement"
	"github.com/Checker-Finance/private-otc/internal/sigauth"
	"github.com/Checker-Finance/private-otc/internal/store"
	"github.com/Checker-Finance/private-otc/pkg/model"
	"github.com/Checker-Finance/private-otc/pkg/utils"
)

// SubmitQuoteInput is a market maker's signed price.
type SubmitQuoteInput struct {
	QuoteRequestID string
	Price          string
	Expiration     time.Time
	MakerPublicKey string
	Signature      string
}

// SubmitQuoteResult carries the price opening and the maker's stealth key,
// returned once.
type SubmitQuoteResult struct {
	Quote             *model.Quote
	PriceCommitment   string
	PriceBlinding     string
	StealthAddress    string
	StealthPrivateKey string
}

// SubmitQuote records a whitelisted maker's hidden-price quote on an active request.
func (s *Service) SubmitQuote(ctx context.Context, in SubmitQuoteInput) (res *SubmitQuoteResult, err error) {
	defer s.observe(model.OpSubmitQuote, time.Now(), &err)
	now := s.now()

	if err := requireKey("makerPublicKey", in.MakerPublicKey); err != nil {
		return nil, err
	}
	makerAddr, err := sigauth.AddressOf(in.MakerPublicKey)
	if err != nil {
		return nil, otcerr.Validation("makerPublicKey", "makerPublicKey must be a %d-byte hex key", sigauth.PubKeySize)
	}
	if s.cfg.WhitelistEnabled {
		ok, err := s.whitelist.IsWhitelisted(ctx, makerAddr)
		if err != nil {
			return nil, otcerr.Internal(err)
		}
		if !ok {
			s.logger.Info("negotiation.quote.not_whitelisted", zap.String("maker_address", makerAddr))
			return nil, otcerr.ErrNotWhitelisted
		}
	}

	req, err := s.loadRequest(ctx, in.QuoteRequestID)
	if err != nil {
		return nil, err
	}
	if err := requestStateErr(req.Status); err != nil {
		return nil, err
	}
	if !in.Expiration.After(now) {
		return nil, otcerr.Validation("expirationTime", "expiration must be in the future")
	}
	if in.Expiration.After(req.ExpiresAt) {
		return nil, otcerr.Validation("expirationTime", "expiration must not exceed the quote request expiry")
	}
	price, priceUnits, err := parsePositive("price", in.Price, req.QuoteAsset(), s.cfg.Units)
	if err != nil {
		return nil, err
	}

	grant, err := s.authenticate(ctx, sigauth.Request{
		Message:   sigauth.SubmitQuoteMessage(req.ID, in.Price, in.Expiration),
		Signature: in.Signature,
		PublicKey: in.MakerPublicKey,
		Operation: model.OpSubmitQuote,
	})
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, grant)

	commitment, err := privacy.CreateCommitment(priceUnits, nil)
	if err != nil {
		return nil, otcerr.Internal(err)
	}
	if err := s.checkMakerBalance(ctx, req, price, commitment.Commitment); err != nil {
		return nil, err
	}
	stealth, err := privacy.GenerateStealthAddress(nil, req.Chain)
	if err != nil {
		return nil, otcerr.Internal(err)
	}

	q := &model.Quote{
		ID:               uuid.NewString(),
		QuoteRequestID:   req.ID,
		PriceCommitment:  commitment.Commitment,
		MakerPublicKey:   sigauth.NormalizeKey(in.MakerPublicKey),
		MakerAddress:     makerAddr,
		StealthAddress:   stealth.Address,
		StealthPublicKey: stealth.PublicKey,
		CreatedAt:        now,
		ExpiresAt:        in.Expiration.UTC(),
		Status:           model.QuoteActive,
		Price:            price,
		PriceBlinding:    commitment.Blinding,
	}
	if err := s.store.InsertQuote(ctx, q); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, otcerr.ErrDuplicateID.Wrap(err)
		}
		return nil, otcerr.Internal(err)
	}
	grant.Commit()

	s.logger.Info("negotiation.quote.submitted",
		zap.String("quote_id", q.ID),
		zap.String("quote_request_id", req.ID),
		zap.String("maker", utils.MaskKey(q.MakerPublicKey)),
		zap.Time("expires_at", q.ExpiresAt))
	s.publish(model.QuoteSubmitted{
		QuoteID:         q.ID,
		QuoteRequestID:  req.ID,
		PriceCommitment: q.PriceCommitment,
		ExpiresAt:       q.ExpiresAt,
		At:              now,
	})

	return &SubmitQuoteResult{
		Quote:             q,
		PriceCommitment:   commitment.Commitment,
		PriceBlinding:     commitment.Blinding,
		StealthAddress:    stealth.Address,
		StealthPrivateKey: stealth.PrivateKey,
	}, nil
}

// checkMakerBalance asks whether the maker can deliver its leg: the base
// amount when the taker buys, amount × price of the quote asset when it sells.
func (s *Service) checkMakerBalance(ctx context.Context, req *model.QuoteRequest, price decimal.Decimal, commitment string) error {
	need := s.cfg.Units.SettlementAmount(req.Amount, price, req.QuoteAsset())
	if req.Direction == model.DirectionBuy {
		units, err := s.cfg.Units.ToBaseUnits(req.Amount, req.BaseAsset())
		if err != nil {
			return otcerr.Internal(err)
		}
		need = units
	}
	sufficient, err := s.settlement.CheckBalance(ctx, settlement.BalanceQuery{
		Commitment: commitment,
		Amount:     need.String(),
		Chain:      req.Chain,
	})
	if err != nil {
		return err
	}
	if !sufficient {
		return otcerr.ErrInsufficientBalance
	}
	return nil
}

// ListQuotes returns the open quotes on a request: active and not yet expired.
// Quotes found past their deadline are marked expired on the way. A request
// that is no longer active has no open quotes.
func (s *Service) ListQuotes(ctx context.Context, quoteRequestID string) ([]model.QuoteSummary, error) {
	req, err := s.loadRequest(ctx, quoteRequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.RequestActive {
		return []model.QuoteSummary{}, nil
	}
	quotes, err := s.store.ListQuotesByRequest(ctx, quoteRequestID, model.QuoteActive, time.Time{})
	if err != nil {
		return nil, otcerr.Internal(err)
	}
	now := s.now()
	out := make([]model.QuoteSummary, 0, len(quotes))
	for i := range quotes {
		q := &quotes[i]
		if q.ExpiredAt(now) {
			s.expireQuote(ctx, q)
			continue
		}
		out = append(out, q.Summary())
	}
	return out, nil
}

// QuotesForRequest returns every quote on a request regardless of status.
func (s *Service) QuotesForRequest(ctx context.Context, quoteRequestID string) ([]model.Quote, error) {
	quotes, err := s.store.ListQuotesByRequest(ctx, quoteRequestID, "", time.Time{})
	if err != nil {
		return nil, otcerr.Internal(err)
	}
	return quotes, nil
}

package negotiation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/metrics"
	"github.com/Checker-Finance/private-otc/internal/otcerr"
	"github.com/Checker-Finance/private-otc/internal/privacy"
	"github.com/Checker-Finance/private-otc/internal/settlement"
	"github.com/Checker-Finance/private-otc/internal/sigauth"
	"github.com/Checker-Finance/private-otc/internal/store"
	"github.com/Checker-Finance/private-otc/pkg/model"
)

// AcceptInput is a taker's signed acceptance of one quote.
type AcceptInput struct {
	QuoteID        string
	QuoteRequestID string
	TakerPublicKey string
	Signature      string
}

// AcceptResult describes a completed fill. Nullifier is the secret; only its
// hash is stored.
type AcceptResult struct {
	QuoteRequest        *model.QuoteRequest
	Quote               *model.Quote
	Nullifier           string
	NullifierHash       string
	SettlementRequestID string
	SettlementStatus    string
	TxHash              string
	ExplorerURL         string
	ZKCompressed        bool
}

// AcceptQuote fills a request with one of its quotes. Settlement runs while
// the store holds the request and quote locked; any settlement failure leaves
// both untouched.
func (s *Service) AcceptQuote(ctx context.Context, in AcceptInput) (res *AcceptResult, err error) {
	defer s.observe(model.OpAcceptQuote, time.Now(), &err)

	if in.QuoteID == "" {
		return nil, otcerr.Validation("quoteId", "quoteId is required")
	}
	if err := requireKey("takerPublicKey", in.TakerPublicKey); err != nil {
		return nil, err
	}
	req, err := s.loadRequest(ctx, in.QuoteRequestID)
	if err != nil {
		return nil, err
	}
	quote, err := s.store.GetQuote(ctx, in.QuoteID)
	if err != nil {
		return nil, notFoundOr(err, otcerr.ErrQuoteNotFound)
	}
	if quote.QuoteRequestID != req.ID {
		return nil, otcerr.ErrQuoteMismatch
	}
	if sigauth.NormalizeKey(in.TakerPublicKey) != req.TakerPublicKey {
		return nil, otcerr.ErrNotOwner
	}
	if err := requestStateErr(req.Status); err != nil {
		return nil, err
	}
	if err := quoteStateErr(quote, s.now()); err != nil {
		s.expireQuote(ctx, quote)
		return nil, err
	}

	grant, err := s.authenticate(ctx, sigauth.Request{
		Message:   sigauth.AcceptQuoteMessage(quote.ID, req.ID),
		Signature: in.Signature,
		PublicKey: in.TakerPublicKey,
		Operation: model.OpAcceptQuote,
	})
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, grant)

	var (
		nullifier *privacy.Nullifier
		withdraw  *settlement.WithdrawResult
	)
	settle := func(ctx context.Context, locked *model.QuoteRequest, lockedQuote *model.Quote) (*store.Fill, error) {
		now := s.now()
		if err := requestStateErr(locked.Status); err != nil {
			return nil, err
		}
		if locked.ExpiredAt(now) {
			return nil, otcerr.ErrRequestExpired
		}
		if lockedQuote.QuoteRequestID != locked.ID {
			return nil, otcerr.ErrQuoteMismatch
		}
		if err := quoteStateErr(lockedQuote, now); err != nil {
			return nil, err
		}

		n, err := privacy.GenerateNullifier()
		if err != nil {
			return nil, otcerr.Internal(err)
		}
		amount := s.cfg.Units.SettlementAmount(locked.Amount, lockedQuote.Price, locked.QuoteAsset())

		sctx, cancel := context.WithTimeout(ctx, s.cfg.SettlementTimeout)
		defer cancel()
		start := time.Now()
		out, err := s.settlement.Withdraw(sctx, settlement.WithdrawRequest{
			Commitment:    locked.AmountCommitment,
			NullifierHash: n.NullifierHash,
			Recipient:     locked.StealthAddress,
			Amount:        amount.String(),
			Chain:         locked.Chain,
		})
		if err != nil {
			metrics.ObserveDuration(metrics.SettlementDuration, start, "withdraw", "error")
			if _, ok := otcerr.As(err); !ok {
				err = otcerr.ErrSettlementUnavailable.Wrap(err)
			}
			return nil, err
		}
		if !out.Success {
			metrics.ObserveDuration(metrics.SettlementDuration, start, "withdraw", "rejected")
			return nil, otcerr.ErrSettlementFailed.WithMessage("settlement status %q", out.Status)
		}
		metrics.ObserveDuration(metrics.SettlementDuration, start, "withdraw", "ok")

		nullifier, withdraw = n, out
		return &store.Fill{NullifierHash: n.NullifierHash, SettlementTxHash: out.TxHash}, nil
	}

	filled, accepted, err := s.store.FillQuoteRequest(ctx, req.ID, quote.ID, settle)
	if err != nil {
		if withdraw != nil {
			// funds moved; the signature stays spent
			grant.Commit()
		}
		return nil, s.fillFailed(ctx, req, quote, withdraw, err)
	}
	grant.Commit()

	metrics.IncTransition(string(model.RequestFilled))
	s.logger.Info("negotiation.accept.settled",
		zap.String("quote_request_id", filled.ID),
		zap.String("quote_id", accepted.ID),
		zap.String("nullifier_hash", nullifier.NullifierHash),
		zap.String("settlement_request_id", withdraw.RequestID),
		zap.String("tx_hash", withdraw.TxHash))
	s.publish(model.QuoteRequestFilled{
		QuoteRequestID:   filled.ID,
		QuoteID:          accepted.ID,
		NullifierHash:    nullifier.NullifierHash,
		SettlementTxHash: withdraw.TxHash,
		Chain:            filled.Chain,
		At:               s.now(),
	})

	return &AcceptResult{
		QuoteRequest:        filled,
		Quote:               accepted,
		Nullifier:           nullifier.Nullifier,
		NullifierHash:       nullifier.NullifierHash,
		SettlementRequestID: withdraw.RequestID,
		SettlementStatus:    withdraw.Status,
		TxHash:              withdraw.TxHash,
		ExplorerURL:         filled.Chain.ExplorerTxURL(withdraw.TxHash, s.cfg.ExplorerNetwork),
		ZKCompressed:        withdraw.ZKCompressed,
	}, nil
}

// fillFailed classifies a failed fill and persists lazy expiry the fill saw.
func (s *Service) fillFailed(ctx context.Context, req *model.QuoteRequest, quote *model.Quote, withdraw *settlement.WithdrawResult, err error) error {
	switch {
	case errors.Is(err, otcerr.ErrRequestExpired):
		if _, expErr := s.expireRequest(ctx, req); expErr != nil {
			s.logger.Warn("negotiation.request.expire_failed", zap.String("quote_request_id", req.ID), zap.Error(expErr))
		}
	case errors.Is(err, otcerr.ErrQuoteExpired):
		s.expireQuote(ctx, quote)
	case errors.Is(err, store.ErrNotFound):
		return otcerr.ErrRequestNotFound.Wrap(err)
	}

	if withdraw != nil {
		// funds moved but the local fill did not commit
		s.logger.Error("negotiation.accept.commit_after_settlement_failed",
			zap.String("quote_request_id", req.ID),
			zap.String("quote_id", quote.ID),
			zap.String("settlement_request_id", withdraw.RequestID),
			zap.String("tx_hash", withdraw.TxHash),
			zap.Error(err))
		return otcerr.Internal(err)
	}

	if _, ok := otcerr.As(err); !ok {
		s.logger.Error("negotiation.accept.fill_failed", zap.String("quote_request_id", req.ID), zap.Error(err))
	} else {
		s.logger.Info("negotiation.accept.rejected",
			zap.String("quote_request_id", req.ID),
			zap.String("quote_id", quote.ID),
			zap.Error(err))
	}
	return otcerr.Internal(err)
}

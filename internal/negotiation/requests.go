package negotiation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/metrics"
	"github.com/Checker-Finance/private-otc/internal/otcerr"
	"github.com/Checker-Finance/private-otc/internal/privacy"
	"github.com/Checker-Finance/private-otc/internal/settlement"
	"github.com/Checker-Finance/private-otc/internal/sigauth"
	"github.com/Checker-Finance/private-otc/internal/store"
	"github.com/Checker-Finance/private-otc/pkg/chain"
	"github.com/Checker-Finance/private-otc/pkg/model"
	"github.com/Checker-Finance/private-otc/pkg/utils"
)

// CreateQuoteRequestInput is a taker's signed intent. Amount is signed as given.
type CreateQuoteRequestInput struct {
	AssetPair      string
	Direction      string
	Amount         string
	Timeout        time.Time
	Chain          string
	TakerPublicKey string
	Signature      string
}

// CreateQuoteRequestResult carries the secrets the taker gets exactly once.
type CreateQuoteRequestResult struct {
	QuoteRequest      *model.QuoteRequest
	StealthAddress    string
	StealthPrivateKey string
	AmountCommitment  string
	AmountBlinding    string
	ExpiresAt         time.Time
}

// CreateQuoteRequest validates, authenticates and persists a new active request.
func (s *Service) CreateQuoteRequest(ctx context.Context, in CreateQuoteRequestInput) (res *CreateQuoteRequestResult, err error) {
	defer s.observe(model.OpCreateQuoteRequest, time.Now(), &err)
	now := s.now()

	if err := validateAssetPair(in.AssetPair); err != nil {
		return nil, err
	}
	dir, err := parseDirection(in.Direction)
	if err != nil {
		return nil, err
	}
	draft := model.QuoteRequest{AssetPair: in.AssetPair}
	amount, baseUnits, err := parsePositive("amount", in.Amount, draft.BaseAsset(), s.cfg.Units)
	if err != nil {
		return nil, err
	}
	if !in.Timeout.After(now) {
		return nil, otcerr.Validation("timeout", "timeout must be in the future")
	}
	if in.Timeout.Sub(now) > s.cfg.MaxRequestHorizon {
		return nil, otcerr.Validation("timeout", "timeout must be within %s", s.cfg.MaxRequestHorizon)
	}
	c := s.cfg.DefaultChain
	if in.Chain != "" {
		if c, err = chain.Parse(in.Chain); err != nil {
			return nil, otcerr.Validation("chain", "%v", err)
		}
	}
	if err := requireKey("takerPublicKey", in.TakerPublicKey); err != nil {
		return nil, err
	}

	grant, err := s.authenticate(ctx, sigauth.Request{
		Message:   sigauth.CreateRequestMessage(in.AssetPair, in.Direction, in.Amount, in.Timeout),
		Signature: in.Signature,
		PublicKey: in.TakerPublicKey,
		Operation: model.OpCreateQuoteRequest,
	})
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, grant)

	stealth, err := privacy.GenerateStealthAddress(nil, c)
	if err != nil {
		return nil, otcerr.Internal(err)
	}
	commitment, err := privacy.CreateCommitment(baseUnits, nil)
	if err != nil {
		return nil, otcerr.Internal(err)
	}

	sufficient, err := s.settlement.CheckBalance(ctx, settlement.BalanceQuery{
		Commitment: commitment.Commitment,
		Amount:     baseUnits.String(),
		Chain:      c,
	})
	if err != nil {
		return nil, err
	}
	if !sufficient {
		return nil, otcerr.ErrInsufficientBalance
	}

	req := &model.QuoteRequest{
		ID:               uuid.NewString(),
		AssetPair:        in.AssetPair,
		Direction:        dir,
		AmountCommitment: commitment.Commitment,
		StealthAddress:   stealth.Address,
		StealthPublicKey: stealth.PublicKey,
		TakerPublicKey:   sigauth.NormalizeKey(in.TakerPublicKey),
		Chain:            c,
		CreatedAt:        now,
		ExpiresAt:        in.Timeout.UTC(),
		Status:           model.RequestActive,
		Amount:           amount,
		AmountBlinding:   commitment.Blinding,
	}
	if err := s.store.InsertQuoteRequest(ctx, req); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, otcerr.ErrDuplicateID.Wrap(err)
		}
		return nil, otcerr.Internal(err)
	}
	grant.Commit()

	s.logger.Info("negotiation.request.created",
		zap.String("quote_request_id", req.ID),
		zap.String("asset_pair", req.AssetPair),
		zap.String("direction", string(req.Direction)),
		zap.String("chain", c.String()),
		zap.String("taker", utils.MaskKey(req.TakerPublicKey)),
		zap.Time("expires_at", req.ExpiresAt))
	s.publish(model.QuoteRequestCreated{
		QuoteRequestID:   req.ID,
		AssetPair:        req.AssetPair,
		Direction:        req.Direction,
		Chain:            req.Chain,
		AmountCommitment: req.AmountCommitment,
		ExpiresAt:        req.ExpiresAt,
		At:               now,
	})

	return &CreateQuoteRequestResult{
		QuoteRequest:      req,
		StealthAddress:    stealth.Address,
		StealthPrivateKey: stealth.PrivateKey,
		AmountCommitment:  commitment.Commitment,
		AmountBlinding:    commitment.Blinding,
		ExpiresAt:         req.ExpiresAt,
	}, nil
}

// GetQuoteRequest returns a request with lazy expiry applied.
func (s *Service) GetQuoteRequest(ctx context.Context, id string) (*model.QuoteRequest, error) {
	return s.loadRequest(ctx, id)
}

// CancelInput is a taker's signed cancellation.
type CancelInput struct {
	QuoteRequestID string
	TakerPublicKey string
	Signature      string
}

// CancelQuoteRequest moves an active request to cancelled.
func (s *Service) CancelQuoteRequest(ctx context.Context, in CancelInput) (res *model.QuoteRequest, err error) {
	defer s.observe(model.OpCancelQuoteRequest, time.Now(), &err)

	if err := requireKey("takerPublicKey", in.TakerPublicKey); err != nil {
		return nil, err
	}
	req, err := s.loadRequest(ctx, in.QuoteRequestID)
	if err != nil {
		return nil, err
	}
	if sigauth.NormalizeKey(in.TakerPublicKey) != req.TakerPublicKey {
		return nil, otcerr.ErrNotOwner
	}
	if err := requestStateErr(req.Status); err != nil {
		return nil, err
	}

	grant, err := s.authenticate(ctx, sigauth.Request{
		Message:   sigauth.CancelRequestMessage(req.ID),
		Signature: in.Signature,
		PublicKey: in.TakerPublicKey,
		Operation: model.OpCancelQuoteRequest,
	})
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, grant)

	ok, err := s.store.UpdateQuoteRequestStatus(ctx, req.ID, model.RequestActive, model.RequestCancelled)
	if err != nil {
		return nil, otcerr.Internal(err)
	}
	if !ok {
		// lost a race with a fill, another cancel or expiry
		cur, err := s.store.GetQuoteRequest(ctx, req.ID)
		if err != nil {
			return nil, otcerr.Internal(err)
		}
		if stateErr := requestStateErr(cur.Status); stateErr != nil {
			return nil, stateErr
		}
		return nil, otcerr.ErrInternal.WithMessage("cancel of %s did not apply", req.ID)
	}
	grant.Commit()

	req.Status = model.RequestCancelled
	metrics.IncTransition(string(model.RequestCancelled))
	s.logger.Info("negotiation.request.cancelled", zap.String("quote_request_id", req.ID))
	s.publish(model.QuoteRequestCancelled{QuoteRequestID: req.ID, At: s.now()})
	return req, nil
}

// Package messaging carries encrypted notes between a taker and the makers
// quoting on its request, and manages the market-maker whitelist.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/metrics"
	"github.com/Checker-Finance/private-otc/internal/otcerr"
	"github.com/Checker-Finance/private-otc/internal/sigauth"
	"github.com/Checker-Finance/private-otc/internal/store"
	"github.com/Checker-Finance/private-otc/pkg/model"
	"github.com/Checker-Finance/private-otc/pkg/utils"
)

// Requests looks up the negotiation records messaging authorizes against.
type Requests interface {
	GetQuoteRequest(ctx context.Context, id string) (*model.QuoteRequest, error)
	// QuotesForRequest returns every quote on the request regardless of status.
	QuotesForRequest(ctx context.Context, quoteRequestID string) ([]model.Quote, error)
}

// Service stores and lists messages.
type Service struct {
	logger   *zap.Logger
	requests Requests
	store    store.MessageStore
	auth     *sigauth.Service
	now      func() time.Time
}

// NewService wires a messaging service.
func NewService(logger *zap.Logger, requests Requests, st store.MessageStore, auth *sigauth.Service) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger:   logger,
		requests: requests,
		store:    st,
		auth:     auth,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SendInput is a signed, already encrypted message.
type SendInput struct {
	QuoteRequestID          string
	SenderPublicKey         string
	RecipientStealthAddress string
	EncryptedContent        string
	EphemeralPublicKey      string
	IV                      string
	AuthTag                 string
	Signature               string
}

// party is the caller's role on one request.
type party struct {
	req    *model.QuoteRequest
	quotes []model.Quote
	key    string
	taker  bool
	// own holds a maker's stealth addresses on this request.
	own map[string]bool
}

func (p *party) counterparty(address string) bool {
	if p.taker {
		for _, q := range p.quotes {
			if q.StealthAddress == address {
				return true
			}
		}
		return false
	}
	return address == p.req.StealthAddress
}

// resolve identifies publicKey as the taker or a quoting maker on the request.
func (s *Service) resolve(ctx context.Context, quoteRequestID, publicKey string) (*party, error) {
	if publicKey == "" {
		return nil, otcerr.Validation("publicKey", "publicKey is required")
	}
	req, err := s.requests.GetQuoteRequest(ctx, quoteRequestID)
	if err != nil {
		return nil, err
	}
	quotes, err := s.requests.QuotesForRequest(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	p := &party{req: req, quotes: quotes, key: sigauth.NormalizeKey(publicKey), own: map[string]bool{}}
	if p.key == req.TakerPublicKey {
		p.taker = true
		return p, nil
	}
	for _, q := range quotes {
		if q.MakerPublicKey == p.key {
			p.own[q.StealthAddress] = true
		}
	}
	if len(p.own) == 0 {
		return nil, otcerr.ErrUnauthorized
	}
	return p, nil
}

// SendMessage stores a message from the taker to a quoting maker or back.
func (s *Service) SendMessage(ctx context.Context, in SendInput) (msg *model.Message, err error) {
	start := time.Now()
	defer func() { observe(model.OpSendMessage, start, err) }()

	if err := validateCiphertext(in); err != nil {
		return nil, err
	}
	if in.RecipientStealthAddress == "" {
		return nil, otcerr.Validation("recipientStealthAddress", "recipientStealthAddress is required")
	}
	p, err := s.resolve(ctx, in.QuoteRequestID, in.SenderPublicKey)
	if err != nil {
		return nil, err
	}
	if !p.counterparty(in.RecipientStealthAddress) {
		return nil, otcerr.ErrInvalidRecipient
	}

	grant, err := authenticate(ctx, s.auth, sigauth.Request{
		Message:   sigauth.SendMessageMessage(p.req.ID, in.RecipientStealthAddress, in.EncryptedContent),
		Signature: in.Signature,
		PublicKey: in.SenderPublicKey,
		Operation: model.OpSendMessage,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = grant.Release(ctx) }()

	msg = &model.Message{
		ID:                      uuid.NewString(),
		QuoteRequestID:          p.req.ID,
		SenderPublicKey:         p.key,
		RecipientStealthAddress: in.RecipientStealthAddress,
		EncryptedContent:        in.EncryptedContent,
		EphemeralPublicKey:      in.EphemeralPublicKey,
		IV:                      in.IV,
		AuthTag:                 in.AuthTag,
		CreatedAt:               s.now(),
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, otcerr.ErrDuplicateID.Wrap(err)
		}
		return nil, otcerr.Internal(err)
	}
	grant.Commit()

	s.logger.Info("messaging.message.sent",
		zap.String("message_id", msg.ID),
		zap.String("quote_request_id", msg.QuoteRequestID),
		zap.Bool("from_taker", p.taker),
		zap.String("sender", utils.MaskKey(msg.SenderPublicKey)))
	return msg, nil
}

// GetMessages lists the messages the caller may read on a request, oldest
// first. The taker reads everything; a maker reads what it sent and what was
// addressed to its own stealth addresses.
func (s *Service) GetMessages(ctx context.Context, quoteRequestID, callerPublicKey string) ([]model.MessageView, error) {
	p, err := s.resolve(ctx, quoteRequestID, callerPublicKey)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, p.req.ID)
	if err != nil {
		return nil, otcerr.Internal(err)
	}

	out := make([]model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		sent := m.SenderPublicKey == p.key
		if !p.taker && !sent && !p.own[m.RecipientStealthAddress] {
			continue
		}
		dir := model.MessageReceived
		if sent {
			dir = model.MessageSent
		}
		out = append(out, model.MessageView{Message: m, Direction: dir})
	}
	return out, nil
}

func observe(op model.Operation, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = otcerr.ErrInternal.Code
		if e, ok := otcerr.As(err); ok {
			result = e.Code
		}
	}
	metrics.IncOperation(string(op), result)
	metrics.ObserveDuration(metrics.OperationDuration, start, string(op))
}

func authenticate(ctx context.Context, auth *sigauth.Service, req sigauth.Request) (*sigauth.Grant, error) {
	grant, err := auth.Authenticate(ctx, req, sigauth.Options{})
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

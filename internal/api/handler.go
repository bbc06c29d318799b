// Package api exposes the negotiation core over HTTP.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/messaging"
	"github.com/Checker-Finance/private-otc/internal/negotiation"
	"github.com/Checker-Finance/private-otc/pkg/model"
)

// AdminCredentialHeader carries "<adminId>:<apiKey>" on admin routes.
const AdminCredentialHeader = "X-Admin-Credential"

// Negotiator is the quote lifecycle the handler drives.
type Negotiator interface {
	CreateQuoteRequest(ctx context.Context, in negotiation.CreateQuoteRequestInput) (*negotiation.CreateQuoteRequestResult, error)
	GetQuoteRequest(ctx context.Context, id string) (*model.QuoteRequest, error)
	CancelQuoteRequest(ctx context.Context, in negotiation.CancelInput) (*model.QuoteRequest, error)
	SubmitQuote(ctx context.Context, in negotiation.SubmitQuoteInput) (*negotiation.SubmitQuoteResult, error)
	ListQuotes(ctx context.Context, quoteRequestID string) ([]model.QuoteSummary, error)
	AcceptQuote(ctx context.Context, in negotiation.AcceptInput) (*negotiation.AcceptResult, error)
}

// Messenger stores and lists encrypted messages.
type Messenger interface {
	SendMessage(ctx context.Context, in messaging.SendInput) (*model.Message, error)
	GetMessages(ctx context.Context, quoteRequestID, callerPublicKey string) ([]model.MessageView, error)
}

// WhitelistManager administers market makers.
type WhitelistManager interface {
	AddMarketMaker(ctx context.Context, in messaging.WhitelistInput) (*model.WhitelistEntry, error)
	RemoveMarketMaker(ctx context.Context, in messaging.WhitelistInput) error
	ListMarketMakers(ctx context.Context, credential string) ([]model.WhitelistEntry, error)
	AuditLog(ctx context.Context, credential string, limit int) ([]model.AuditRecord, error)
}

// Handler serves the negotiation API.
type Handler struct {
	logger      *zap.Logger
	negotiation Negotiator
	messaging   Messenger
	whitelist   WhitelistManager
}

// NewHandler creates a Handler.
func NewHandler(logger *zap.Logger, n Negotiator, m Messenger, w WhitelistManager) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logger: logger, negotiation: n, messaging: m, whitelist: w}
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// CreateQuoteRequest handles POST /quote-requests.
func (h *Handler) CreateQuoteRequest(c *fiber.Ctx) error {
	var req CreateQuoteRequestBody
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if err := req.Validate(); err != nil {
		return writeError(c, h.logger, "create_quote_request", err)
	}

	res, err := h.negotiation.CreateQuoteRequest(c.Context(), negotiation.CreateQuoteRequestInput{
		AssetPair:      req.AssetPair,
		Direction:      req.Direction,
		Amount:         req.Amount,
		Timeout:        fromMillis(req.Timeout),
		Chain:          req.Chain,
		TakerPublicKey: req.TakerPublicKey,
		Signature:      req.Signature,
	})
	if err != nil {
		return writeError(c, h.logger, "create_quote_request", err)
	}

	return c.Status(fiber.StatusCreated).JSON(CreateQuoteRequestResponse{
		QuoteRequestID:    res.QuoteRequest.ID,
		Status:            string(res.QuoteRequest.Status),
		StealthAddress:    res.StealthAddress,
		StealthPrivateKey: res.StealthPrivateKey,
		AmountCommitment:  res.AmountCommitment,
		AmountBlinding:    res.AmountBlinding,
		Chain:             res.QuoteRequest.Chain.String(),
		ExpiresAt:         res.ExpiresAt,
	})
}

// GetQuoteRequest handles GET /quote-requests/:id.
func (h *Handler) GetQuoteRequest(c *fiber.Ctx) error {
	req, err := h.negotiation.GetQuoteRequest(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, h.logger, "get_quote_request", err)
	}
	return c.JSON(req)
}

// CancelQuoteRequest handles POST /quote-requests/:id/cancel.
func (h *Handler) CancelQuoteRequest(c *fiber.Ctx) error {
	var req CancelBody
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if err := req.Validate(); err != nil {
		return writeError(c, h.logger, "cancel_quote_request", err)
	}
	res, err := h.negotiation.CancelQuoteRequest(c.Context(), negotiation.CancelInput{
		QuoteRequestID: c.Params("id"),
		TakerPublicKey: req.TakerPublicKey,
		Signature:      req.Signature,
	})
	if err != nil {
		return writeError(c, h.logger, "cancel_quote_request", err)
	}
	return c.JSON(res)
}

// SubmitQuote handles POST /quote-requests/:id/quotes.
func (h *Handler) SubmitQuote(c *fiber.Ctx) error {
	var req SubmitQuoteBody
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if err := req.Validate(); err != nil {
		return writeError(c, h.logger, "submit_quote", err)
	}

	res, err := h.negotiation.SubmitQuote(c.Context(), negotiation.SubmitQuoteInput{
		QuoteRequestID: c.Params("id"),
		Price:          req.Price,
		Expiration:     fromMillis(req.ExpirationTime),
		MakerPublicKey: req.MakerPublicKey,
		Signature:      req.Signature,
	})
	if err != nil {
		return writeError(c, h.logger, "submit_quote", err)
	}

	return c.Status(fiber.StatusCreated).JSON(SubmitQuoteResponse{
		QuoteID:           res.Quote.ID,
		QuoteRequestID:    res.Quote.QuoteRequestID,
		Status:            string(res.Quote.Status),
		PriceCommitment:   res.PriceCommitment,
		PriceBlinding:     res.PriceBlinding,
		StealthAddress:    res.StealthAddress,
		StealthPrivateKey: res.StealthPrivateKey,
		ExpiresAt:         res.Quote.ExpiresAt,
	})
}

// ListQuotes handles GET /quote-requests/:id/quotes.
func (h *Handler) ListQuotes(c *fiber.Ctx) error {
	quotes, err := h.negotiation.ListQuotes(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, h.logger, "list_quotes", err)
	}
	return c.JSON(fiber.Map{"quotes": quotes})
}

// AcceptQuote handles POST /quote-requests/:id/accept.
func (h *Handler) AcceptQuote(c *fiber.Ctx) error {
	var req AcceptQuoteBody
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if err := req.Validate(); err != nil {
		return writeError(c, h.logger, "accept_quote", err)
	}

	res, err := h.negotiation.AcceptQuote(c.Context(), negotiation.AcceptInput{
		QuoteID:        req.QuoteID,
		QuoteRequestID: c.Params("id"),
		TakerPublicKey: req.TakerPublicKey,
		Signature:      req.Signature,
	})
	if err != nil {
		return writeError(c, h.logger, "accept_quote", err)
	}

	return c.JSON(AcceptQuoteResponse{
		QuoteRequestID:      res.QuoteRequest.ID,
		QuoteID:             res.Quote.ID,
		Status:              string(res.QuoteRequest.Status),
		Nullifier:           res.Nullifier,
		NullifierHash:       res.NullifierHash,
		SettlementRequestID: res.SettlementRequestID,
		SettlementStatus:    res.SettlementStatus,
		TxHash:              res.TxHash,
		ExplorerURL:         res.ExplorerURL,
		ZKCompressed:        res.ZKCompressed,
	})
}

// SendMessage handles POST /quote-requests/:id/messages.
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageBody
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if err := req.Validate(); err != nil {
		return writeError(c, h.logger, "send_message", err)
	}

	msg, err := h.messaging.SendMessage(c.Context(), messaging.SendInput{
		QuoteRequestID:          c.Params("id"),
		SenderPublicKey:         req.SenderPublicKey,
		RecipientStealthAddress: req.RecipientStealthAddress,
		EncryptedContent:        req.EncryptedContent,
		EphemeralPublicKey:      req.EphemeralPublicKey,
		IV:                      req.IV,
		AuthTag:                 req.AuthTag,
		Signature:               req.Signature,
	})
	if err != nil {
		return writeError(c, h.logger, "send_message", err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetMessages handles GET /quote-requests/:id/messages?publicKey=.
func (h *Handler) GetMessages(c *fiber.Ctx) error {
	msgs, err := h.messaging.GetMessages(c.Context(), c.Params("id"), c.Query("publicKey"))
	if err != nil {
		return writeError(c, h.logger, "get_messages", err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// whitelistInput parses a whitelist mutation. A nil input means the error
// response has already been written.
func (h *Handler) whitelistInput(c *fiber.Ctx, op string) (*messaging.WhitelistInput, error) {
	var req WhitelistBody
	if err := c.BodyParser(&req); err != nil {
		return nil, badBody(c, err)
	}
	if req.Address == "" {
		req.Address = c.Params("address")
	}
	if err := req.Validate(); err != nil {
		return nil, writeError(c, h.logger, op, err)
	}
	return &messaging.WhitelistInput{
		Address:        req.Address,
		Credential:     c.Get(AdminCredentialHeader),
		AdminPublicKey: req.AdminPublicKey,
		Signature:      req.Signature,
	}, nil
}

// AddMarketMaker handles POST /admin/whitelist.
func (h *Handler) AddMarketMaker(c *fiber.Ctx) error {
	in, err := h.whitelistInput(c, "whitelist_add")
	if in == nil {
		return err
	}
	entry, err := h.whitelist.AddMarketMaker(c.Context(), *in)
	if err != nil {
		return writeError(c, h.logger, "whitelist_add", err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// RemoveMarketMaker handles DELETE /admin/whitelist/:address.
func (h *Handler) RemoveMarketMaker(c *fiber.Ctx) error {
	in, err := h.whitelistInput(c, "whitelist_remove")
	if in == nil {
		return err
	}
	if err := h.whitelist.RemoveMarketMaker(c.Context(), *in); err != nil {
		return writeError(c, h.logger, "whitelist_remove", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListMarketMakers handles GET /admin/whitelist.
func (h *Handler) ListMarketMakers(c *fiber.Ctx) error {
	entries, err := h.whitelist.ListMarketMakers(c.Context(), c.Get(AdminCredentialHeader))
	if err != nil {
		return writeError(c, h.logger, "whitelist_list", err)
	}
	return c.JSON(fiber.Map{"marketMakers": entries})
}

// AuditLog handles GET /admin/whitelist/audit?limit=.
func (h *Handler) AuditLog(c *fiber.Ctx) error {
	recs, err := h.whitelist.AuditLog(c.Context(), c.Get(AdminCredentialHeader), c.QueryInt("limit", 0))
	if err != nil {
		return writeError(c, h.logger, "whitelist_audit", err)
	}
	return c.JSON(fiber.Map{"records": recs})
}

package messaging

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/adminauth"
	"github.com/Checker-Finance/private-otc/internal/otcerr"
	"github.com/Checker-Finance/private-otc/internal/sigauth"
	"github.com/Checker-Finance/private-otc/internal/store"
	"github.com/Checker-Finance/private-otc/pkg/model"
)

var makerAddressRe = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// DefaultAuditLimit caps AuditLog when no limit is given.
const DefaultAuditLimit = 100

// Whitelist manages which market-maker addresses may quote.
type Whitelist struct {
	logger *zap.Logger
	store  store.WhitelistStore
	admins adminauth.Authenticator
	auth   *sigauth.Service
	now    func() time.Time
}

// NewWhitelist wires whitelist management.
func NewWhitelist(logger *zap.Logger, st store.WhitelistStore, admins adminauth.Authenticator, auth *sigauth.Service) *Whitelist {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Whitelist{
		logger: logger,
		store:  st,
		admins: admins,
		auth:   auth,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WhitelistInput is an admin's signed mutation. Credential is
// "<adminId>:<apiKey>"; the WOTS signature covers [address, action].
type WhitelistInput struct {
	Address        string
	Credential     string
	AdminPublicKey string
	Signature      string
}

func normalizeAddress(addr string) (string, error) {
	a := strings.ToLower(strings.TrimSpace(addr))
	if !makerAddressRe.MatchString(a) {
		return "", otcerr.Validation("address", "address must be 0x followed by 40 hex characters")
	}
	return a, nil
}

// AddMarketMaker admits an address and appends an audit record.
func (w *Whitelist) AddMarketMaker(ctx context.Context, in WhitelistInput) (*model.WhitelistEntry, error) {
	admin, grant, addr, err := w.authorize(ctx, in, model.AuditAdd, model.OpWhitelistAdd)
	if err != nil {
		return nil, err
	}
	defer func() { _ = grant.Release(ctx) }()

	now := w.now()
	entry := model.WhitelistEntry{Address: addr, AddedBy: admin, AddedAt: now}
	err = w.store.AddWhitelistEntry(ctx, entry, w.auditRecord(model.AuditAdd, addr, admin, now))
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return nil, otcerr.ErrAlreadyWhitelisted
	case err != nil:
		return nil, otcerr.Internal(err)
	}
	grant.Commit()

	w.logger.Info("whitelist.added", zap.String("address", addr), zap.String("admin", admin))
	return &entry, nil
}

// RemoveMarketMaker revokes an address and appends an audit record.
func (w *Whitelist) RemoveMarketMaker(ctx context.Context, in WhitelistInput) error {
	admin, grant, addr, err := w.authorize(ctx, in, model.AuditRemove, model.OpWhitelistRemove)
	if err != nil {
		return err
	}
	defer func() { _ = grant.Release(ctx) }()

	err = w.store.RemoveWhitelistEntry(ctx, addr, w.auditRecord(model.AuditRemove, addr, admin, w.now()))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return otcerr.ErrNotInWhitelist
	case err != nil:
		return otcerr.Internal(err)
	}
	grant.Commit()

	w.logger.Info("whitelist.removed", zap.String("address", addr), zap.String("admin", admin))
	return nil
}

// ListMarketMakers returns every whitelisted address.
func (w *Whitelist) ListMarketMakers(ctx context.Context, credential string) ([]model.WhitelistEntry, error) {
	if _, err := w.admins.Authenticate(ctx, credential); err != nil {
		return nil, err
	}
	entries, err := w.store.ListWhitelist(ctx)
	if err != nil {
		return nil, otcerr.Internal(err)
	}
	return entries, nil
}

// AuditLog returns the newest audit records first.
func (w *Whitelist) AuditLog(ctx context.Context, credential string, limit int) ([]model.AuditRecord, error) {
	if _, err := w.admins.Authenticate(ctx, credential); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	recs, err := w.store.ListAudit(ctx, limit)
	if err != nil {
		return nil, otcerr.Internal(err)
	}
	return recs, nil
}

// IsWhitelisted reports whether address may quote.
func (w *Whitelist) IsWhitelisted(ctx context.Context, address string) (bool, error) {
	_, err := w.store.GetWhitelistEntry(ctx, strings.ToLower(strings.TrimSpace(address)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// authorize checks the admin credential first, then the one-time signature.
func (w *Whitelist) authorize(ctx context.Context, in WhitelistInput, action model.AuditAction, op model.Operation) (string, *sigauth.Grant, string, error) {
	addr, err := normalizeAddress(in.Address)
	if err != nil {
		return "", nil, "", err
	}
	admin, err := w.admins.Authenticate(ctx, in.Credential)
	if err != nil {
		w.logger.Warn("whitelist.admin_rejected", zap.String("operation", string(op)), zap.Error(err))
		return "", nil, "", err
	}
	if in.AdminPublicKey == "" {
		return "", nil, "", otcerr.Validation("adminPublicKey", "adminPublicKey is required")
	}
	grant, err := authenticate(ctx, w.auth, sigauth.Request{
		Message:   sigauth.WhitelistMessage(addr, action),
		Signature: in.Signature,
		PublicKey: in.AdminPublicKey,
		Operation: op,
	})
	if err != nil {
		return "", nil, "", err
	}
	return admin, grant, addr, nil
}

func (w *Whitelist) auditRecord(action model.AuditAction, addr, admin string, at time.Time) model.AuditRecord {
	return model.AuditRecord{
		ID:        uuid.NewString(),
		Action:    action,
		Address:   addr,
		Admin:     admin,
		CreatedAt: at,
	}
}

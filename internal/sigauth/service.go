// Package sigauth authenticates callers by WOTS+ one-time signatures and
// enforces that every signature is consumed at most once.
package sigauth

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/otcerr"
	"github.com/Checker-Finance/private-otc/pkg/model"
	"github.com/Checker-Finance/private-otc/pkg/utils"
)

// Ledger persists consumed signatures keyed by signature hash.
type Ledger interface {
	// GetUsedSignature returns nil, nil when the hash has never been used.
	GetUsedSignature(ctx context.Context, signatureHash string) (*model.UsedSignature, error)
	// InsertUsedSignature is an atomic insert-if-absent; it reports whether
	// this call wrote the row.
	InsertUsedSignature(ctx context.Context, rec model.UsedSignature) (bool, error)
	// DeleteUsedSignature drops a row. Only used to release a reservation
	// whose operation did not happen.
	DeleteUsedSignature(ctx context.Context, signatureHash string) error
}

// VerifyResult is the outcome of a signature verification.
type VerifyResult struct {
	IsValid       bool
	SignatureHash string
	Err           error
}

// SignatureHash returns hex(keccak256(signature bytes)).
func SignatureHash(sig []byte) string {
	return hex.EncodeToString(keccak(sig))
}

// VerifySignature checks a hex WOTS+ signature over message. The 0x prefix is
// optional on both hex inputs and is never part of the verified bytes.
func VerifySignature(message []byte, signature, publicKey string) VerifyResult {
	sig, err := DecodeHex(signature)
	if err != nil || len(sig) == 0 {
		return VerifyResult{Err: ErrMalformedSignature}
	}
	pub, err := DecodeHex(publicKey)
	if err != nil {
		return VerifyResult{Err: ErrMalformedKey}
	}
	if err := Verify(pub, message, sig); err != nil {
		return VerifyResult{Err: err}
	}
	return VerifyResult{IsValid: true, SignatureHash: SignatureHash(sig)}
}

// Request is one signed operation to authenticate.
type Request struct {
	Message   []byte
	Signature string
	PublicKey string
	Operation model.Operation
}

// Options adjust Authenticate for a single call site.
type Options struct {
	// SkipReuseCheck authenticates a signature even if it was already consumed.
	SkipReuseCheck bool
	// SkipMarkUsed authenticates without reserving the signature.
	SkipMarkUsed bool
}

// Service verifies signatures and tracks their use in a Ledger.
type Service struct {
	logger *zap.Logger
	ledger Ledger
	now    func() time.Time
}

// NewService constructs a Service over ledger.
func NewService(logger *zap.Logger, ledger Ledger) *Service {
	return &Service{logger: logger, ledger: ledger, now: time.Now}
}

// CheckSignatureReuse reports whether signature has been consumed by any operation.
func (s *Service) CheckSignatureReuse(ctx context.Context, signature string) (bool, error) {
	sig, err := DecodeHex(signature)
	if err != nil || len(sig) == 0 {
		return false, otcerr.Validation("signature", "signature must be hex")
	}
	rec, err := s.ledger.GetUsedSignature(ctx, SignatureHash(sig))
	if err != nil {
		return false, fmt.Errorf("lookup used signature: %w", err)
	}
	return rec != nil, nil
}

// MarkSignatureUsed records signature as consumed and returns its hash.
// Marking the same signature again succeeds and returns the same hash.
func (s *Service) MarkSignatureUsed(ctx context.Context, signature string, op model.Operation, publicKey string) (string, error) {
	sig, err := DecodeHex(signature)
	if err != nil || len(sig) == 0 {
		return "", otcerr.Validation("signature", "signature must be hex")
	}
	hash := SignatureHash(sig)
	inserted, err := s.ledger.InsertUsedSignature(ctx, model.UsedSignature{
		SignatureHash: hash,
		OperationType: op,
		PublicKey:     NormalizeKey(publicKey),
		UsedAt:        s.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("mark signature used: %w", err)
	}
	if !inserted {
		s.logger.Debug("sigauth.mark_used.already_marked",
			zap.String("signature_hash", hash),
			zap.String("operation", string(op)))
	}
	return hash, nil
}

// Authenticate verifies req and reserves the signature with one conditional
// insert, so of two concurrent calls carrying the same signature only one
// gets a Grant. The caller must Commit the grant once the guarded state
// transition has happened, or Release it so the signature stays usable.
// Invalid signatures are never recorded.
func (s *Service) Authenticate(ctx context.Context, req Request, opts Options) (*Grant, error) {
	res := VerifySignature(req.Message, req.Signature, req.PublicKey)
	if !res.IsValid {
		s.logger.Info("sigauth.verify.failed",
			zap.String("operation", string(req.Operation)),
			zap.String("public_key", utils.MaskKey(req.PublicKey)),
			zap.Error(res.Err))
		return nil, otcerr.ErrInvalidSignature.Wrap(res.Err)
	}
	grant := &Grant{svc: s, req: req, SignatureHash: res.SignatureHash}

	if opts.SkipMarkUsed {
		if opts.SkipReuseCheck {
			return grant, nil
		}
		rec, err := s.ledger.GetUsedSignature(ctx, res.SignatureHash)
		if err != nil {
			return nil, otcerr.Internal(fmt.Errorf("lookup used signature: %w", err))
		}
		if rec != nil {
			return nil, s.reused(req, res.SignatureHash, rec.OperationType)
		}
		return grant, nil
	}

	inserted, err := s.ledger.InsertUsedSignature(ctx, model.UsedSignature{
		SignatureHash: res.SignatureHash,
		OperationType: req.Operation,
		PublicKey:     NormalizeKey(req.PublicKey),
		UsedAt:        s.now().UTC(),
	})
	if err != nil {
		return nil, otcerr.Internal(fmt.Errorf("reserve signature: %w", err))
	}
	if !inserted && !opts.SkipReuseCheck {
		return nil, s.reused(req, res.SignatureHash, "")
	}
	grant.reserved = inserted
	return grant, nil
}

func (s *Service) reused(req Request, hash string, firstUsedFor model.Operation) error {
	fields := []zap.Field{
		zap.String("operation", string(req.Operation)),
		zap.String("signature_hash", hash),
	}
	if firstUsedFor != "" {
		fields = append(fields, zap.String("first_used_for", string(firstUsedFor)))
	}
	s.logger.Warn("sigauth.signature_reused", fields...)
	return otcerr.ErrSignatureReused
}

// Grant is an authenticated signature whose ledger row is held until the
// guarded operation either commits or gives the signature back.
type Grant struct {
	svc       *Service
	req       Request
	reserved  bool
	committed bool

	SignatureHash string
}

// Commit keeps the signature consumed. Call it once the state transition
// has persisted; a later Release is then a no-op.
func (g *Grant) Commit() {
	if g != nil {
		g.committed = true
	}
}

// Release frees the reservation of an uncommitted grant so the same signed
// request can be retried. It still runs when ctx is already cancelled. A
// failed release leaves the signature consumed.
func (g *Grant) Release(ctx context.Context) error {
	if g == nil || g.committed || !g.reserved {
		return nil
	}
	g.reserved = false
	if err := g.svc.ledger.DeleteUsedSignature(context.WithoutCancel(ctx), g.SignatureHash); err != nil {
		g.svc.logger.Error("sigauth.release_failed",
			zap.String("operation", string(g.req.Operation)),
			zap.String("signature_hash", g.SignatureHash),
			zap.Error(err))
		return otcerr.Internal(err)
	}
	return nil
}

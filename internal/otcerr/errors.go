// Package otcerr defines the error taxonomy shared by the negotiation core.
//
// Every failure surfaced to a caller is an *Error carrying a Kind (how the
// caller should react) and a Code (what happened). errors.Is matches on Code,
// so wrapped or re-messaged copies still compare equal to the sentinels below.
package otcerr

import (
	"errors"
	"fmt"
)

// Kind groups errors by how a caller may recover.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindSignature     Kind = "signature"
	KindConflict      Kind = "conflict"
	KindExternal      Kind = "external"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Error is a classified failure. Field is set for validation errors.
type Error struct {
	Kind    Kind
	Code    string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

var (
	ErrValidation = &Error{Kind: KindValidation, Code: "VALIDATION_ERROR"}
	ErrEmptyContent = &Error{Kind: KindValidation, Code: "EMPTY_CONTENT", Field: "encryptedContent",
		Message: "message content must not be empty"}
	ErrQuoteMismatch = &Error{Kind: KindValidation, Code: "QUOTE_REQUEST_MISMATCH",
		Message: "quote does not belong to this quote request"}

	ErrNotOwner = &Error{Kind: KindAuthorization, Code: "NOT_OWNER",
		Message: "caller is not the taker of this quote request"}
	ErrNotWhitelisted = &Error{Kind: KindAuthorization, Code: "NOT_WHITELISTED",
		Message: "market maker is not whitelisted"}
	ErrUnauthorized = &Error{Kind: KindAuthorization, Code: "UNAUTHORIZED",
		Message: "caller is not a party to this quote request"}
	ErrInvalidRecipient = &Error{Kind: KindAuthorization, Code: "INVALID_RECIPIENT",
		Message: "recipient is not the counter-party of the sender"}
	ErrAdminUnauthorized = &Error{Kind: KindAuthorization, Code: "ADMIN_UNAUTHORIZED",
		Message: "admin credential rejected"}

	ErrInvalidSignature = &Error{Kind: KindSignature, Code: "INVALID_SIGNATURE",
		Message: "signature verification failed"}
	ErrSignatureReused = &Error{Kind: KindSignature, Code: "SIGNATURE_REUSED",
		Message: "signature has already been used"}

	ErrRequestExpired = &Error{Kind: KindConflict, Code: "QUOTE_REQUEST_EXPIRED",
		Message: "quote request has expired"}
	ErrRequestCancelled = &Error{Kind: KindConflict, Code: "QUOTE_REQUEST_CANCELLED",
		Message: "quote request is cancelled"}
	ErrRequestFilled = &Error{Kind: KindConflict, Code: "QUOTE_REQUEST_FILLED",
		Message: "quote request is already filled"}
	ErrQuoteExpired = &Error{Kind: KindConflict, Code: "QUOTE_EXPIRED",
		Message: "quote has expired"}
	ErrQuoteNotActive = &Error{Kind: KindConflict, Code: "QUOTE_NOT_ACTIVE",
		Message: "quote is no longer active"}
	ErrAlreadyWhitelisted = &Error{Kind: KindConflict, Code: "ALREADY_WHITELISTED",
		Message: "address is already whitelisted"}
	ErrNullifierUsed = &Error{Kind: KindConflict, Code: "NULLIFIER_ALREADY_USED",
		Message: "nullifier has already been spent"}
	ErrDuplicateID = &Error{Kind: KindConflict, Code: "DUPLICATE_ID"}

	ErrRequestNotFound = &Error{Kind: KindNotFound, Code: "QUOTE_REQUEST_NOT_FOUND",
		Message: "quote request not found"}
	ErrQuoteNotFound = &Error{Kind: KindNotFound, Code: "QUOTE_NOT_FOUND",
		Message: "quote not found"}
	ErrNotInWhitelist = &Error{Kind: KindNotFound, Code: "WHITELIST_ENTRY_NOT_FOUND",
		Message: "address is not whitelisted"}

	ErrInsufficientBalance = &Error{Kind: KindExternal, Code: "INSUFFICIENT_BALANCE",
		Message: "insufficient balance"}
	ErrSettlementUnavailable = &Error{Kind: KindExternal, Code: "SETTLEMENT_UNAVAILABLE",
		Message: "settlement service unavailable"}
	ErrSettlementFailed = &Error{Kind: KindExternal, Code: "SETTLEMENT_FAILED",
		Message: "settlement did not complete"}

	ErrInternal = &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "internal error"}
)

// Validation builds a field-level validation error.
func Validation(field, format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    ErrValidation.Code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// Internal classifies an unexpected failure. Already classified errors pass through.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return ErrInternal.Wrap(err)
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

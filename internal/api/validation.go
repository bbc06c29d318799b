package api

import (
	"strings"

	"github.com/Checker-Finance/private-otc/internal/otcerr"
)

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return otcerr.Validation(field, "%s is required", field)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (r CreateQuoteRequestBody) Validate() error {
	if err := firstErr(
		required("assetPair", r.AssetPair),
		required("direction", r.Direction),
		required("amount", r.Amount),
		required("takerPublicKey", r.TakerPublicKey),
		required("signature", r.Signature),
	); err != nil {
		return err
	}
	if r.Timeout <= 0 {
		return otcerr.Validation("timeout", "timeout must be a Unix millisecond timestamp")
	}
	return nil
}

func (r CancelBody) Validate() error {
	return firstErr(
		required("takerPublicKey", r.TakerPublicKey),
		required("signature", r.Signature),
	)
}

func (r SubmitQuoteBody) Validate() error {
	if err := firstErr(
		required("price", r.Price),
		required("makerPublicKey", r.MakerPublicKey),
		required("signature", r.Signature),
	); err != nil {
		return err
	}
	if r.ExpirationTime <= 0 {
		return otcerr.Validation("expirationTime", "expirationTime must be a Unix millisecond timestamp")
	}
	return nil
}

func (r AcceptQuoteBody) Validate() error {
	return firstErr(
		required("quoteId", r.QuoteID),
		required("takerPublicKey", r.TakerPublicKey),
		required("signature", r.Signature),
	)
}

// Validate leaves encryptedContent to the messaging layer, which rejects an
// empty body with its own code.
func (r SendMessageBody) Validate() error {
	return firstErr(
		required("senderPublicKey", r.SenderPublicKey),
		required("recipientStealthAddress", r.RecipientStealthAddress),
		required("signature", r.Signature),
	)
}

func (r WhitelistBody) Validate() error {
	return firstErr(
		required("address", r.Address),
		required("adminPublicKey", r.AdminPublicKey),
		required("signature", r.Signature),
	)
}

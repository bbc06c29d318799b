package negotiation

import (
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/private-otc/internal/otcerr"
	"github.com/Checker-Finance/private-otc/internal/privacy"
	"github.com/Checker-Finance/private-otc/pkg/model"
)

var assetPairRe = regexp.MustCompile(`^[A-Z0-9]{2,10}/[A-Z0-9]{2,10}$`)

// curveOrder bounds committed values.
var curveOrder, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)

func validateAssetPair(pair string) error {
	if !assetPairRe.MatchString(pair) {
		return otcerr.Validation("assetPair", "asset pair must look like BASE/QUOTE, e.g. SOL/USDC")
	}
	base, quote, _ := strings.Cut(pair, "/")
	if base == quote {
		return otcerr.Validation("assetPair", "base and quote asset must differ")
	}
	return nil
}

func parseDirection(s string) (model.Direction, error) {
	d := model.Direction(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", otcerr.Validation("direction", "direction must be buy or sell")
	}
	return d, nil
}

// parsePositive parses a positive decimal and converts it into base units of
// asset. The result fits a commitment.
func parsePositive(field, raw, asset string, units Decimals) (decimal.Decimal, *big.Int, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, nil, otcerr.Validation(field, "%s must be a decimal number", field)
	}
	if !v.IsPositive() {
		return decimal.Zero, nil, otcerr.Validation(field, "%s must be positive", field)
	}
	base, err := units.ToBaseUnits(v, asset)
	if err != nil {
		return decimal.Zero, nil, otcerr.Validation(field, "%v", err)
	}
	if base.Cmp(curveOrder) >= 0 {
		return decimal.Zero, nil, otcerr.Validation(field, "%s is too large", field).Wrap(privacy.ErrValueOutOfRange)
	}
	return v, base, nil
}

func requireKey(field, key string) error {
	if strings.TrimSpace(key) == "" {
		return otcerr.Validation(field, "%s is required", field)
	}
	return nil
}

// requestStateErr maps a non-active request status to its lifecycle error.
func requestStateErr(s model.RequestStatus) error {
	switch s {
	case model.RequestExpired:
		return otcerr.ErrRequestExpired
	case model.RequestCancelled:
		return otcerr.ErrRequestCancelled
	case model.RequestFilled:
		return otcerr.ErrRequestFilled
	}
	return nil
}

func quoteStateErr(q *model.Quote, now time.Time) error {
	switch {
	case q.Status == model.QuoteExpired:
		return otcerr.ErrQuoteExpired
	case q.Status != model.QuoteActive:
		return otcerr.ErrQuoteNotActive
	case q.ExpiredAt(now):
		return otcerr.ErrQuoteExpired
	}
	return nil
}

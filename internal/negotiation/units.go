package negotiation

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDecimals applies to assets missing from the table.
const DefaultDecimals = 9

// Decimals maps an asset symbol to the number of decimals of its base unit.
type Decimals map[string]int32

// DefaultAssetDecimals covers the assets the settlement service handles.
var DefaultAssetDecimals = Decimals{
	"SOL":  9,
	"USDC": 6,
	"USDT": 6,
	"ETH":  18,
	"WETH": 18,
	"BTC":  8,
	"WBTC": 8,
}

// Of returns the decimals for asset.
func (d Decimals) Of(asset string) int32 {
	if n, ok := d[strings.ToUpper(asset)]; ok {
		return n
	}
	return DefaultDecimals
}

// ToBaseUnits converts amount into integer base units of asset. Amounts with
// more fractional digits than the asset supports are rejected.
func (d Decimals) ToBaseUnits(amount decimal.Decimal, asset string) (*big.Int, error) {
	shifted := amount.Shift(d.Of(asset))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%s supports at most %d decimals", strings.ToUpper(asset), d.Of(asset))
	}
	return shifted.BigInt(), nil
}

// SettlementAmount is amount × price in base units of the quote asset,
// truncated toward zero.
func (d Decimals) SettlementAmount(amount, price decimal.Decimal, quoteAsset string) *big.Int {
	return amount.Mul(price).Shift(d.Of(quoteAsset)).Truncate(0).BigInt()
}

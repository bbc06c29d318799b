package negotiation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimals_ToBaseUnits(t *testing.T) {
	d := DefaultAssetDecimals

	got, err := d.ToBaseUnits(decimal.RequireFromString("1.5"), "SOL")
	require.NoError(t, err)
	assert.Equal(t, "1500000000", got.String())

	got, err = d.ToBaseUnits(decimal.RequireFromString("0.000001"), "usdc")
	require.NoError(t, err)
	assert.Equal(t, "1", got.String())

	_, err = d.ToBaseUnits(decimal.RequireFromString("0.0000001"), "USDC")
	assert.Error(t, err)

	got, err = d.ToBaseUnits(decimal.RequireFromString("2"), "BONK")
	require.NoError(t, err)
	assert.Equal(t, "2000000000", got.String(), "unknown assets use the default")
}

func TestDecimals_SettlementAmountTruncates(t *testing.T) {
	d := DefaultAssetDecimals
	amt := d.SettlementAmount(decimal.RequireFromString("0.3333333"), decimal.RequireFromString("3"), "USDC")
	assert.Equal(t, "999999", amt.String())
}

func TestValidateAssetPair(t *testing.T) {
	assert.NoError(t, validateAssetPair("SOL/USDC"))
	assert.NoError(t, validateAssetPair("WBTC/ETH"))
	for _, bad := range []string{"", "SOL", "SOL/", "/USDC", "sol/usdc", "SOL/USDC/ETH", "S OL/USDC", "USDC/USDC"} {
		assert.Error(t, validateAssetPair(bad), bad)
	}
}

func TestParsePositive(t *testing.T) {
	v, units, err := parsePositive("amount", " 2.25 ", "SOL", DefaultAssetDecimals)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.RequireFromString("2.25")))
	assert.Equal(t, "2250000000", units.String())

	for _, bad := range []string{"", "0", "0.000", "-1", "1e", "NaN"} {
		_, _, err := parsePositive("amount", bad, "SOL", DefaultAssetDecimals)
		assert.Error(t, err, bad)
	}
}

package privacy

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/private-otc/pkg/chain"
)

func TestGenerateStealthAddress_FreshRecipient(t *testing.T) {
	sa, err := GenerateStealthAddress(nil, chain.Solana)
	require.NoError(t, err)

	require.NotEmpty(t, sa.PrivateKey)
	priv, err := ParsePrivateKey(sa.PrivateKey)
	require.NoError(t, err)

	assert.Equal(t, sa.PublicKey, CompressedHex(priv.PubKey()), "private key must control the stealth key")
	assert.Equal(t, chain.Solana.FormatAddress(priv.PubKey()), sa.Address)
	require.NoError(t, chain.Solana.ValidateAddress(sa.Address))
}

func TestGenerateStealthAddress_KnownRecipientCanDerive(t *testing.T) {
	recipient, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	sa, err := GenerateStealthAddress(recipient.PubKey(), chain.EVM)
	require.NoError(t, err)
	assert.Empty(t, sa.PrivateKey, "sender must not learn the recipient's stealth key")

	eph, err := ParsePublicKey(sa.EphemeralPublicKey)
	require.NoError(t, err)
	derived, err := DeriveStealthPrivateKey(recipient, eph)
	require.NoError(t, err)

	assert.Equal(t, sa.PublicKey, CompressedHex(derived.PubKey()))
	assert.Equal(t, sa.Address, chain.EVM.FormatAddress(derived.PubKey()))
}

func TestDeriveStealthPrivateKey_WrongRecipient(t *testing.T) {
	recipient, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	stranger, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	sa, err := GenerateStealthAddress(recipient.PubKey(), chain.EVM)
	require.NoError(t, err)
	eph, err := ParsePublicKey(sa.EphemeralPublicKey)
	require.NoError(t, err)

	derived, err := DeriveStealthPrivateKey(stranger, eph)
	require.NoError(t, err)
	assert.NotEqual(t, sa.PublicKey, CompressedHex(derived.PubKey()))

	_, err = DeriveStealthPrivateKey(nil, eph)
	assert.Error(t, err)
}

func TestGenerateStealthAddress_Unlinkable(t *testing.T) {
	recipient, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	const n = 200
	addrs := make(map[string]struct{}, n)
	ephs := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		sa, err := GenerateStealthAddress(recipient.PubKey(), chain.Solana)
		require.NoError(t, err)
		addrs[sa.Address] = struct{}{}
		ephs[sa.EphemeralPublicKey] = struct{}{}
	}
	assert.Len(t, addrs, n, "every stealth address must be distinct")
	assert.Len(t, ephs, n)
}

package sigauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Checker-Finance/private-otc/pkg/model"
)

func TestCanonicalMessages(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		got  []byte
		want string
	}{
		{"create", CreateRequestMessage("SOL/USDC", "buy", "1.5", ts), `["SOL/USDC","buy","1.5",1767225600000]`},
		{"submit", SubmitQuoteMessage("req-1", "150.25", ts), `["req-1","150.25",1767225600000]`},
		{"accept", AcceptQuoteMessage("q-1", "req-1"), `["q-1","req-1"]`},
		{"cancel", CancelRequestMessage("req-1"), `["req-1"]`},
		{"message", SendMessageMessage("req-1", "0xabc", "deadbeef"), `["req-1","0xabc","deadbeef"]`},
		{"whitelist", WhitelistMessage("0xabc", model.AuditAdd), `["0xabc","add"]`},
		{"no html escaping", CancelRequestMessage("<a&b>"), `["<a&b>"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(tt.got))
		})
	}
}

func TestCanonicalMessages_TimezoneIndependent(t *testing.T) {
	utc := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("BRT", -3*3600))
	assert.Equal(t, CreateRequestMessage("A/B", "sell", "1", utc), CreateRequestMessage("A/B", "sell", "1", local))
}

func TestAddressOf(t *testing.T) {
	k, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	a, err := AddressOf(k.PublicKeyHex())
	assert.NoError(t, err)
	b, err := AddressOf("0x" + k.PublicKeyHex())
	assert.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 42)

	_, err = AddressOf("abcd")
	assert.ErrorIs(t, err, ErrMalformedKey)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "abcd", NormalizeKey("0xABCD"))
	assert.Equal(t, "abcd", NormalizeKey("abcd"))
	assert.Equal(t, "not-hex", NormalizeKey(" NOT-HEX "))
}

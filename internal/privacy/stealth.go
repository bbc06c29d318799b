package privacy

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/Checker-Finance/private-otc/pkg/chain"
)

// StealthAddress is a one-time receive address.
//
// PublicKey is P' = P + H(r·P)·G. PrivateKey (p + H(r·P)) is filled only when
// the recipient key pair was generated here; otherwise the recipient derives it
// with DeriveStealthPrivateKey from EphemeralPublicKey.
type StealthAddress struct {
	Address            string
	PublicKey          string
	PrivateKey         string
	EphemeralPublicKey string
}

// GenerateStealthAddress derives a fresh stealth address for recipient on c.
// A nil recipient gets a freshly generated key pair.
func GenerateStealthAddress(recipient *btcec.PublicKey, c chain.Chain) (*StealthAddress, error) {
	var recipientPriv *btcec.PrivateKey
	if recipient == nil {
		k, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, fmt.Errorf("generate recipient key: %w", err)
		}
		recipientPriv = k
		recipient = k.PubKey()
	}

	ephemeral, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	s, err := sharedTweak(&ephemeral.Key, recipient)
	if err != nil {
		return nil, err
	}
	stealthPub, err := addScalarBase(recipient, s)
	if err != nil {
		return nil, err
	}

	out := &StealthAddress{
		Address:            c.FormatAddress(stealthPub),
		PublicKey:          CompressedHex(stealthPub),
		EphemeralPublicKey: CompressedHex(ephemeral.PubKey()),
	}
	if recipientPriv != nil {
		k := recipientPriv.Key
		k.Add(s)
		if k.IsZero() {
			return nil, ErrInvalidScalar
		}
		out.PrivateKey = scalarHex(&k)
	}
	return out, nil
}

// DeriveStealthPrivateKey recomputes p + H(p·R) for the recipient.
func DeriveStealthPrivateKey(recipient *btcec.PrivateKey, ephemeral *btcec.PublicKey) (*btcec.PrivateKey, error) {
	if recipient == nil || ephemeral == nil {
		return nil, fmt.Errorf("derive stealth key: missing key")
	}
	s, err := sharedTweak(&recipient.Key, ephemeral)
	if err != nil {
		return nil, err
	}
	k := recipient.Key
	k.Add(s)
	if k.IsZero() {
		return nil, ErrInvalidScalar
	}
	return btcec.PrivKeyFromScalar(&k), nil
}

// sharedTweak hashes the compressed ECDH point k·P to a scalar.
func sharedTweak(k *btcec.ModNScalar, pub *btcec.PublicKey) (*btcec.ModNScalar, error) {
	shared, err := scalarMult(k, pub)
	if err != nil {
		return nil, err
	}
	return hashToScalar(shared.SerializeCompressed())
}

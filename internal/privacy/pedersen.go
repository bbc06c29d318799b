package privacy

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ErrValueOutOfRange is returned for committed values outside [0, n).
var ErrValueOutOfRange = errors.New("committed value must be in [0, n)")

// Commitment is a Pedersen commitment C = v·G + b·H with its opening.
// Commitment is the compressed point in hex; Blinding is a 32-byte hex scalar.
type Commitment struct {
	Commitment string
	Value      *big.Int
	Blinding   string
}

// CreateCommitment commits to value. A uniform blinding is drawn when blinding is nil.
func CreateCommitment(value *big.Int, blinding *btcec.ModNScalar) (*Commitment, error) {
	if value == nil || value.Sign() < 0 || value.Cmp(curveOrder) >= 0 {
		return nil, ErrValueOutOfRange
	}
	if blinding == nil {
		b, err := randomScalar()
		if err != nil {
			return nil, err
		}
		blinding = b
	} else if blinding.IsZero() {
		return nil, fmt.Errorf("%w: zero blinding", ErrInvalidScalar)
	}

	point, err := commit(value, blinding)
	if err != nil {
		return nil, err
	}
	return &Commitment{
		Commitment: CompressedHex(point),
		Value:      new(big.Int).Set(value),
		Blinding:   scalarHex(blinding),
	}, nil
}

// VerifyCommitment recomputes the commitment from the claimed opening.
// Malformed input of any kind yields false.
func VerifyCommitment(commitment string, value *big.Int, blinding string) bool {
	if value == nil || value.Sign() < 0 || value.Cmp(curveOrder) >= 0 {
		return false
	}
	claimed, err := ParsePublicKey(commitment)
	if err != nil {
		return false
	}
	b, err := ParseScalar(blinding)
	if err != nil {
		return false
	}
	point, err := commit(value, b)
	if err != nil {
		return false
	}
	return bytes.Equal(point.SerializeCompressed(), claimed.SerializeCompressed())
}

func commit(value *big.Int, blinding *btcec.ModNScalar) (*btcec.PublicKey, error) {
	var v btcec.ModNScalar
	v.SetByteSlice(value.FillBytes(make([]byte, 32)))

	h := generatorH
	var vG, bH, c btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&v, &vG)
	btcec.ScalarMultNonConst(blinding, &h, &bH)
	btcec.AddNonConst(&vG, &bH, &c)
	if isInfinity(&c) {
		return nil, ErrInvalidPoint
	}
	c.ToAffine()
	return pointToPubKey(&c), nil
}

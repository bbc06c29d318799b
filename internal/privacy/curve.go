package privacy

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/sha3"
)

// generatorHTag seeds the second commitment generator. Nobody knows log_G(H).
const generatorHTag = "private-otc/pedersen/H/v1"

var (
	// ErrInvalidPoint is returned for encodings that are not points on secp256k1.
	ErrInvalidPoint = errors.New("invalid secp256k1 point")
	// ErrInvalidScalar is returned for scalars that are zero, malformed or not below n.
	ErrInvalidScalar = errors.New("invalid secp256k1 scalar")

	curveOrder = new(big.Int).Set(btcec.S256().N)
	generatorH = deriveGeneratorH()
)

// Keccak256 hashes the concatenation of data with legacy Keccak-256.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// deriveGeneratorH maps the tag onto the curve by try-and-increment:
// x = keccak(tag || counter) until x is a valid field element with a square root.
func deriveGeneratorH() btcec.JacobianPoint {
	var ctr [4]byte
	for i := uint32(0); ; i++ {
		binary.BigEndian.PutUint32(ctr[:], i)
		digest := Keccak256([]byte(generatorHTag), ctr[:])

		var x, y btcec.FieldVal
		if overflow := x.SetByteSlice(digest); overflow {
			continue
		}
		if !btcec.DecompressY(&x, false, &y) {
			continue
		}
		y.Normalize()
		var z btcec.FieldVal
		z.SetInt(1)
		return btcec.MakeJacobianPoint(&x, &y, &z)
	}
}

// GeneratorH returns the compressed encoding of the second generator.
func GeneratorH() string {
	h := generatorH
	return hex.EncodeToString(pointToPubKey(&h).SerializeCompressed())
}

func isInfinity(p *btcec.JacobianPoint) bool {
	return (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero()
}

// pointToPubKey converts an affine point (Z == 1) to a public key.
func pointToPubKey(p *btcec.JacobianPoint) *btcec.PublicKey {
	x, y := p.X, p.Y
	x.Normalize()
	y.Normalize()
	return btcec.NewPublicKey(&x, &y)
}

// scalarMult returns k·P.
func scalarMult(k *btcec.ModNScalar, pub *btcec.PublicKey) (*btcec.PublicKey, error) {
	var p, r btcec.JacobianPoint
	pub.AsJacobian(&p)
	btcec.ScalarMultNonConst(k, &p, &r)
	if isInfinity(&r) {
		return nil, ErrInvalidPoint
	}
	r.ToAffine()
	return pointToPubKey(&r), nil
}

// addScalarBase returns P + k·G.
func addScalarBase(pub *btcec.PublicKey, k *btcec.ModNScalar) (*btcec.PublicKey, error) {
	var p, kG, sum btcec.JacobianPoint
	pub.AsJacobian(&p)
	btcec.ScalarBaseMultNonConst(k, &kG)
	btcec.AddNonConst(&p, &kG, &sum)
	if isInfinity(&sum) {
		return nil, ErrInvalidPoint
	}
	sum.ToAffine()
	return pointToPubKey(&sum), nil
}

// randomScalar draws a uniform non-zero scalar.
func randomScalar() (*btcec.ModNScalar, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate scalar: %w", err)
	}
	k := priv.Key
	return &k, nil
}

// hashToScalar reduces keccak(data) modulo n.
func hashToScalar(data ...[]byte) (*btcec.ModNScalar, error) {
	var s btcec.ModNScalar
	s.SetByteSlice(Keccak256(data...))
	if s.IsZero() {
		return nil, ErrInvalidScalar
	}
	return &s, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

// ParsePublicKey decodes a compressed or uncompressed secp256k1 key in hex.
func ParsePublicKey(s string) (*btcec.PublicKey, error) {
	raw, err := decodeHex(s)
	if err != nil || len(raw) == 0 {
		return nil, ErrInvalidPoint
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return pub, nil
}

// ParsePrivateKey decodes a 32-byte hex private key.
func ParsePrivateKey(s string) (*btcec.PrivateKey, error) {
	k, err := ParseScalar(s)
	if err != nil {
		return nil, err
	}
	return btcec.PrivKeyFromScalar(k), nil
}

// ParseScalar decodes a 32-byte hex scalar that is non-zero and below n.
func ParseScalar(s string) (*btcec.ModNScalar, error) {
	raw, err := decodeHex(s)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidScalar
	}
	var k btcec.ModNScalar
	if overflow := k.SetByteSlice(raw); overflow || k.IsZero() {
		return nil, ErrInvalidScalar
	}
	return &k, nil
}

func scalarHex(k *btcec.ModNScalar) string {
	b := k.Bytes()
	return hex.EncodeToString(b[:])
}

// CompressedHex encodes a public key as 33-byte compressed hex.
func CompressedHex(pub *btcec.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}

package sigauth

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// WOTS+ parameters: n-byte hashes, Winternitz parameter w = 16.
const (
	N          = 32
	W          = 16
	len1       = 2 * N // message nibbles
	len2       = 3     // checksum nibbles: max 64*15 = 960 < 16^3
	Chains     = len1 + len2
	PubKeySize = 2 * N
	SigSize    = Chains * N
)

var (
	ErrMalformedKey       = errors.New("malformed wots public key")
	ErrMalformedSignature = errors.New("malformed wots signature")
)

// PrivateKey is a WOTS+ one-time key. It must sign a single message only;
// the server enforces this per signature, clients per key.
type PrivateKey struct {
	skSeed  [N]byte
	pubSeed [N]byte
	pub     []byte
}

// GenerateKey draws a fresh WOTS+ key pair.
func GenerateKey() (*PrivateKey, error) {
	var seed [2 * N]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("wots keygen: %w", err)
	}
	return NewKeyFromSeed(seed[:N], seed[N:])
}

// NewKeyFromSeed derives a key pair deterministically from its two seeds.
func NewKeyFromSeed(skSeed, pubSeed []byte) (*PrivateKey, error) {
	if len(skSeed) != N || len(pubSeed) != N {
		return nil, fmt.Errorf("wots seeds must be %d bytes", N)
	}
	k := &PrivateKey{}
	copy(k.skSeed[:], skSeed)
	copy(k.pubSeed[:], pubSeed)

	tops := make([][]byte, Chains)
	for i := 0; i < Chains; i++ {
		tops[i] = chain(k.pubSeed[:], i, 0, W-1, k.secret(i))
	}
	k.pub = append(append([]byte{}, k.pubSeed[:]...), compress(k.pubSeed[:], tops)...)
	return k, nil
}

// PublicKey returns pubSeed || root.
func (k *PrivateKey) PublicKey() []byte {
	return append([]byte{}, k.pub...)
}

// PublicKeyHex returns the hex public key without prefix.
func (k *PrivateKey) PublicKeyHex() string {
	return hex.EncodeToString(k.pub)
}

// Sign returns the 67*32-byte signature of msg.
func (k *PrivateKey) Sign(msg []byte) []byte {
	digits := baseW(digest(k.pubSeed[:], msg))
	sig := make([]byte, 0, SigSize)
	for i, d := range digits {
		sig = append(sig, chain(k.pubSeed[:], i, 0, d, k.secret(i))...)
	}
	return sig
}

// SignHex signs msg and hex encodes the signature.
func (k *PrivateKey) SignHex(msg []byte) string {
	return hex.EncodeToString(k.Sign(msg))
}

func (k *PrivateKey) secret(i int) []byte {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], uint32(i))
	return keccak(k.skSeed[:], []byte("sk"), idx[:])
}

// Verify checks sig over msg against the public key.
func Verify(pub, msg, sig []byte) error {
	if len(pub) != PubKeySize {
		return ErrMalformedKey
	}
	if len(sig) != SigSize {
		return ErrMalformedSignature
	}
	pubSeed, root := pub[:N], pub[N:]

	digits := baseW(digest(pubSeed, msg))
	tops := make([][]byte, Chains)
	for i, d := range digits {
		tops[i] = chain(pubSeed, i, d, W-1-d, sig[i*N:(i+1)*N])
	}
	if !bytes.Equal(compress(pubSeed, tops), root) {
		return errors.New("wots signature does not match public key")
	}
	return nil
}

// chain applies the tweaked hash steps times starting at position start.
func chain(pubSeed []byte, idx, start, steps int, x []byte) []byte {
	var tweak [8]byte
	out := append([]byte{}, x...)
	for j := start; j < start+steps; j++ {
		binary.BigEndian.PutUint32(tweak[:4], uint32(idx))
		binary.BigEndian.PutUint32(tweak[4:], uint32(j))
		out = keccak(pubSeed, tweak[:], out)
	}
	return out
}

func compress(pubSeed []byte, tops [][]byte) []byte {
	parts := append([][]byte{pubSeed, []byte("pk")}, tops...)
	return keccak(parts...)
}

func digest(pubSeed, msg []byte) []byte {
	return keccak(pubSeed, []byte("msg"), msg)
}

// baseW splits the digest into nibbles and appends the checksum nibbles.
func baseW(d []byte) []int {
	out := make([]int, 0, Chains)
	for _, b := range d {
		out = append(out, int(b>>4), int(b&0x0f))
	}
	csum := 0
	for _, v := range out {
		csum += W - 1 - v
	}
	out = append(out, (csum>>8)&0x0f, (csum>>4)&0x0f, csum&0x0f)
	return out
}

func keccak(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

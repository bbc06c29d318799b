package privacy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/hkdf"
)

const (
	ivSize      = 12
	authTagSize = 16
	messageInfo = "private-otc/message/v1"
)

var (
	// ErrMissingParameter is returned when a ciphertext field is absent.
	ErrMissingParameter = errors.New("missing encryption parameter")
	// ErrDecryptFailed covers wrong keys and tampered ciphertexts or tags.
	ErrDecryptFailed = errors.New("message authentication failed")
)

// EncryptedMessage is an AES-256-GCM ciphertext addressed to one public key.
// All fields are hex encoded.
type EncryptedMessage struct {
	EncryptedContent   string `json:"encrypted_content"`
	EphemeralPublicKey string `json:"ephemeral_public_key"`
	IV                 string `json:"iv"`
	AuthTag            string `json:"auth_tag"`
}

// EncryptMessage seals plaintext for recipient with a fresh ephemeral key.
func EncryptMessage(recipient *btcec.PublicKey, plaintext []byte) (*EncryptedMessage, error) {
	if recipient == nil {
		return nil, fmt.Errorf("%w: recipient key", ErrMissingParameter)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: plaintext", ErrMissingParameter)
	}

	ephemeral, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	ephPub := ephemeral.PubKey().SerializeCompressed()

	aead, err := messageCipher(btcec.GenerateSharedSecret(ephemeral, recipient), ephPub)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, ephPub)
	ct, tag := sealed[:len(sealed)-authTagSize], sealed[len(sealed)-authTagSize:]

	return &EncryptedMessage{
		EncryptedContent:   hex.EncodeToString(ct),
		EphemeralPublicKey: hex.EncodeToString(ephPub),
		IV:                 hex.EncodeToString(iv),
		AuthTag:            hex.EncodeToString(tag),
	}, nil
}

// DecryptMessage opens msg with the recipient's private key.
func DecryptMessage(priv *btcec.PrivateKey, msg *EncryptedMessage) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: private key", ErrMissingParameter)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: message", ErrMissingParameter)
	}
	fields := []struct{ name, val string }{
		{"encrypted content", msg.EncryptedContent},
		{"ephemeral public key", msg.EphemeralPublicKey},
		{"iv", msg.IV},
		{"auth tag", msg.AuthTag},
	}
	for _, f := range fields {
		if f.val == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingParameter, f.name)
		}
	}

	ct, err := decodeHex(msg.EncryptedContent)
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	iv, err := decodeHex(msg.IV)
	if err != nil || len(iv) != ivSize {
		return nil, fmt.Errorf("invalid iv")
	}
	tag, err := decodeHex(msg.AuthTag)
	if err != nil || len(tag) != authTagSize {
		return nil, fmt.Errorf("invalid auth tag")
	}
	ephemeral, err := ParsePublicKey(msg.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("ephemeral public key: %w", err)
	}
	ephPub := ephemeral.SerializeCompressed()

	aead, err := messageCipher(btcec.GenerateSharedSecret(priv, ephemeral), ephPub)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, iv, append(ct, tag...), ephPub)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// messageCipher expands the ECDH secret with HKDF-SHA256, salted with the
// ephemeral key, into an AES-256-GCM instance.
func messageCipher(shared, salt []byte) (cipher.AEAD, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, []byte(messageInfo)), key); err != nil {
		return nil, fmt.Errorf("derive message key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

package messaging

import (
	"encoding/hex"
	"strings"

	"github.com/Checker-Finance/private-otc/internal/otcerr"
	"github.com/Checker-Finance/private-otc/internal/privacy"
	"github.com/Checker-Finance/private-otc/pkg/model"
)

// Compose encrypts content to a counter-party's stealth public key. It runs on
// the sender's side; the server only ever stores the result.
func Compose(recipientStealthPublicKey string, content []byte) (*privacy.EncryptedMessage, error) {
	if len(content) == 0 {
		return nil, otcerr.ErrEmptyContent
	}
	pub, err := privacy.ParsePublicKey(recipientStealthPublicKey)
	if err != nil {
		return nil, otcerr.Validation("recipientPublicKey", "recipient public key: %v", err)
	}
	msg, err := privacy.EncryptMessage(pub, content)
	if err != nil {
		return nil, otcerr.Internal(err)
	}
	return msg, nil
}

// Open decrypts a stored message with the recipient's stealth private key.
func Open(stealthPrivateKey string, m model.Message) ([]byte, error) {
	priv, err := privacy.ParsePrivateKey(stealthPrivateKey)
	if err != nil {
		return nil, otcerr.Validation("privateKey", "stealth private key: %v", err)
	}
	return privacy.DecryptMessage(priv, &privacy.EncryptedMessage{
		EncryptedContent:   m.EncryptedContent,
		EphemeralPublicKey: m.EphemeralPublicKey,
		IV:                 m.IV,
		AuthTag:            m.AuthTag,
	})
}

func validateCiphertext(in SendInput) error {
	if strings.TrimSpace(in.EncryptedContent) == "" {
		return otcerr.ErrEmptyContent
	}
	for field, v := range map[string]string{
		"encryptedContent": in.EncryptedContent,
		"iv":               in.IV,
		"authTag":          in.AuthTag,
	} {
		if _, err := hex.DecodeString(v); err != nil || v == "" {
			return otcerr.Validation(field, "%s must be hex", field)
		}
	}
	if _, err := privacy.ParsePublicKey(in.EphemeralPublicKey); err != nil {
		return otcerr.Validation("ephemeralPublicKey", "ephemeralPublicKey must be a secp256k1 public key")
	}
	return nil
}

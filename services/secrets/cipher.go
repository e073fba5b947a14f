package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/upb/mcp-auth-gateway/services"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCiphertext is returned for values that cannot be opened with the current key
var ErrCiphertext = errors.New("ciphertext cannot be decrypted")

// Cipher seals secret values with XChaCha20-Poly1305. Stored form is
// base64url(nonce || ciphertext); the secret name is bound as associated data.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a raw 32-byte key
func NewCipher(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrEncryptionKeyValue, err)
	}
	return &Cipher{aead: aead}, nil
}

// LoadCipher decodes a base64 key (standard or URL alphabet, padded or not).
// An empty key yields a random one; values sealed with it do not survive a restart.
func LoadCipher(encoded string, logger *zap.Logger) (*Cipher, error) {
	if encoded == "" {
		logger.Warn("SECRETS_ENCRYPTION_KEY not set, generated an ephemeral key; stored secrets will be unreadable after restart")
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate encryption key: %w", err)
		}
		return NewCipher(key)
	}

	key, err := decodeKey(encoded)
	if err != nil {
		return nil, err
	}
	return NewCipher(key)
}

// GenerateKey returns a fresh key in the form LoadCipher accepts
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

func decodeKey(encoded string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		key, err := enc.DecodeString(encoded)
		if err != nil {
			continue
		}
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("%w: must decode to %d bytes, got %d", services.ErrEncryptionKeyValue, chacha20poly1305.KeySize, len(key))
		}
		return key, nil
	}
	return nil, fmt.Errorf("%w: not valid base64", services.ErrEncryptionKeyValue)
}

// Encrypt seals plaintext for the record called name
func (c *Cipher) Encrypt(name, plaintext string) (string, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(name))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt for the same name
func (c *Cipher) Decrypt(name, encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCiphertext
	}
	if len(raw) < chacha20poly1305.NonceSizeX+c.aead.Overhead() {
		return "", ErrCiphertext
	}
	nonce, ct := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := c.aead.Open(nil, nonce, ct, []byte(name))
	if err != nil {
		return "", ErrCiphertext
	}
	return string(plaintext), nil
}

package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Encryptor seals short secrets (access tokens) before they reach a persistent store
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

var errCiphertextTooShort = errors.New("ciphertext too short")

type aeadEncryptor struct {
	aead cipher.AEAD
}

var _ Encryptor = (*aeadEncryptor)(nil)

// NewEncryptor derives an XChaCha20-Poly1305 key from a 32-byte secret.
// The configured secret is run through HKDF so the same value can be shared
// with other purposes without reusing the raw key.
func NewEncryptor(key []byte) (Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}

	derived := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, key, nil, []byte("identity-bot token encryption"))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("deriving encryption key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &aeadEncryptor{aead: aead}, nil
}

// Encrypt returns base64(nonce || sealed)
func (e *aeadEncryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *aeadEncryptor) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(raw) < e.aead.NonceSize() {
		return "", errCiphertextTooShort
	}
	nonce, sealed := raw[:e.aead.NonceSize()], raw[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}

package oauthstate

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt is returned when stored credential material cannot be opened,
// e.g. after the encryption key changed.
var ErrDecrypt = errors.New("failed to decrypt credential")

// Sealer encrypts credential material at rest with XChaCha20-Poly1305.
// The owning identity is bound as additional data, so a ciphertext copied to
// another identity's row does not open.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a Sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// GenerateKey returns a fresh random key, base64 encoded for configuration.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// ParseKey decodes a base64 key as produced by GenerateKey.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid base64: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

// Seal encrypts plaintext for identity. The output is nonce || ciphertext.
func (s *Sealer) Seal(identity string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(identity)), nil
}

// Open reverses Seal.
func (s *Sealer) Open(identity string, sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, ErrDecrypt
	}
	nonce, ct := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	pt, err := s.aead.Open(nil, nonce, ct, []byte(identity))
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

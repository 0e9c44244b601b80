// Package cryptoseal seals and opens sensitive configuration fields
// (credentials, channel configs, monitoring integration passwords) with a
// process-wide encryption key. No ecosystem AEAD wrapper appears in the
// dependency surface; this is a thin wrapper over crypto/aes and
// crypto/cipher, which is what the standard library is for.
package cryptoseal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// Sealer encrypts and decrypts byte payloads with AES-256-GCM. The key is
// derived from the configured secret via SHA-256 so operators can supply a
// secret of any length.
type Sealer struct {
	gcm cipher.AEAD
}

// New creates a Sealer from a process-wide secret.
func New(secret string) (*Sealer, error) {
	key := sha256.Sum256([]byte(secret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext and returns a base64-encoded nonce||ciphertext.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := s.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a value produced by Seal, returning the original plaintext.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}

	nonceSize := s.gcm.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}

// Mask returns a display-safe placeholder for a sensitive value, e.g. for API
// responses that must never echo raw credentials.
func Mask(string) string {
	return "***"
}

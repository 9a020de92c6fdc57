// Package crypto seals sensitive data at rest, primarily the stored Instagram
// password. It implements AES-256-GCM authenticated encryption with a single
// process-wide key supplied as base64 in the environment.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Sealer encrypts and decrypts credential material. Implementations must use
// authenticated encryption so a tampered ciphertext is rejected rather than
// decrypted to garbage.
type Sealer interface {
	// Seal transforms plaintext into nonce-prefixed authenticated ciphertext.
	Seal(plaintext []byte) ([]byte, error)

	// Open verifies and transforms ciphertext back to plaintext. It returns an
	// error if the authentication check fails.
	Open(ciphertext []byte) ([]byte, error)
}

// AESSealer implements Sealer using AES-256-GCM.
type AESSealer struct {
	key []byte // 32 bytes
}

// NewAESSealer creates a sealer from a base64-encoded 32-byte key, e.g. one
// generated with `openssl rand -base64 32`.
func NewAESSealer(base64Key string) (*AESSealer, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes (256 bits), got %d bytes", len(key))
	}
	return &AESSealer{key: key}, nil
}

func (s *AESSealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext and returns nonce || ciphertext || tag. The nonce is
// randomly generated per call. Callers should base64-encode the result before
// storing it in a text column.
func (s *AESSealer) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext is empty")
	}
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts and authenticates ciphertext produced by Seal.
func (s *AESSealer) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("ciphertext is empty")
	}
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short: expected at least %d bytes, got %d", nonceSize, len(ciphertext))
	}
	nonce, rest := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, rest, nil)
	if err != nil {
		// Do not leak cipher internals into logs or user-facing errors.
		return nil, fmt.Errorf("decryption failed: authentication or integrity check failed")
	}
	return plaintext, nil
}

// SealString encrypts a string and returns base64 ciphertext suitable for a
// database text column. Empty input stays empty.
func SealString(s Sealer, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	ct, err := s.Seal([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// OpenString base64-decodes and decrypts a string from database storage.
func OpenString(s Sealer, base64Ciphertext string) (string, error) {
	if base64Ciphertext == "" {
		return "", nil
	}
	ct, err := base64.StdEncoding.DecodeString(base64Ciphertext)
	if err != nil {
		return "", fmt.Errorf("base64 decode failed: %w", err)
	}
	pt, err := s.Open(ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

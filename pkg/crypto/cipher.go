// Package crypto encrypts target-database credentials at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrEmptyKey is returned when the encryption key is empty.
	ErrEmptyKey = errors.New("encryption key must not be empty")
	// ErrDecrypt is returned when decryption fails due to invalid
	// ciphertext or a key mismatch.
	ErrDecrypt = errors.New("decryption failed: invalid ciphertext or wrong key")
)

// Cipher provides AES-256-GCM authenticated encryption for credential
// fields. Stored passwords are always ciphertext under the service's key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a key string. A base64-encoded 32-byte
// value (openssl rand -base64 32) is used directly; anything else is
// treated as a passphrase and hashed with SHA-256.
func NewCipher(keyInput string) (*Cipher, error) {
	if keyInput == "" {
		return nil, ErrEmptyKey
	}

	var key []byte
	if decoded, err := base64.StdEncoding.DecodeString(keyInput); err == nil && len(decoded) == 32 {
		key = decoded
	} else {
		sum := sha256.Sum256([]byte(keyInput))
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext || tag). Empty input stays
// empty rather than producing ciphertext for nothing.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Empty input stays empty.
func (c *Cipher) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode", ErrDecrypt)
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication", ErrDecrypt)
	}
	return string(plain), nil
}

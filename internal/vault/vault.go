// Package vault encrypts connection credentials at rest. Plaintext secrets
// exist only transiently inside a dispatch; everything persisted or returned
// over the API is ciphertext or a presence flag.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt is returned for any undecryptable ciphertext: wrong key,
// truncated value, or tampered payload. The cause is never detailed further.
var ErrDecrypt = errors.New("vault: decryption failed")

// Vault performs authenticated symmetric encryption of small secret strings.
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from 32 bytes of key material.
func New(key []byte) (*Vault, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault.New: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// NewFromHex creates a Vault from a hex-encoded 32-byte key, the form the
// key arrives in from injected configuration.
func NewFromHex(s string) (*Vault, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("vault.NewFromHex: %w", err)
	}
	return New(key)
}

// Encrypt seals a plaintext string. The random nonce is prepended to the
// sealed payload and the whole value is base64-encoded for storage.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault.Encrypt: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any failure returns
// ErrDecrypt; the caller must treat it as fatal for the invocation.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecrypt
	}
	ns := v.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrDecrypt
	}
	plaintext, err := v.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

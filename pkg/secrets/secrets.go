// Package secrets encrypts provider credentials at rest and masks them for display.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const keyInfo = "turnstile/secrets/v1"

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// deriveKey expands the master key into a 256-bit AES key
func deriveKey(masterKey string) ([]byte, error) {
	if masterKey == "" {
		return nil, errors.New("master key is empty")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(masterKey), nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

func newGCM(masterKey string) (cipher.AEAD, error) {
	key, err := deriveKey(masterKey)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with AES-256-GCM and returns base64(nonce || ciphertext)
func Encrypt(masterKey, plaintext string) (string, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt
func Decrypt(masterKey, encoded string) (string, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	if len(raw) < gcm.NonceSize() {
		return "", ErrMalformedCiphertext
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plain), nil
}

// Mask keeps a known prefix (up to and including the first underscore) and the
// last four characters, e.g. "whsec_****a1b2". Short values are fully masked.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}

	prefix := ""
	if i := strings.Index(secret, "_"); i > 0 && i < len(secret)-4 {
		prefix = secret[:i+1]
	}
	return prefix + "****" + secret[len(secret)-4:]
}

// CLAUDE:SUMMARY Symmetric sealing of broker credentials at rest (XChaCha20-Poly1305).
// Package secrets seals and opens short credential strings before they
// touch the catalog database. The key is derived from a passphrase so
// deployments can pass a plain string through the environment.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealed values carry a version prefix so the on-disk format can evolve.
const prefix = "sealed:v1:"

// Box seals and opens strings with a single symmetric key.
type Box struct {
	key [32]byte
}

// NewBox derives a sealing key from a passphrase. An empty passphrase is
// refused: storing credentials unsealed must be an explicit choice made
// by not constructing a Box at all.
func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("secrets: empty passphrase")
	}
	b := &Box{key: sha256.Sum256([]byte(passphrase))}
	return b, nil
}

// Seal encrypts plaintext and returns a printable token.
func (b *Box) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key[:])
	if err != nil {
		return "", fmt.Errorf("secrets: init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token produced by Seal. Values without the sealed
// prefix are returned unchanged so pre-sealing rows keep working.
func (b *Box) Open(token string) (string, error) {
	if !strings.HasPrefix(token, prefix) {
		return token, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, prefix))
	if err != nil {
		return "", fmt.Errorf("secrets: decode: %w", err)
	}
	aead, err := chacha20poly1305.NewX(b.key[:])
	if err != nil {
		return "", fmt.Errorf("secrets: init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("secrets: token too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: open: %w", err)
	}
	return string(plain), nil
}

// IsSealed reports whether a stored value carries the sealed prefix.
func IsSealed(v string) bool { return strings.HasPrefix(v, prefix) }

// Package cryptoengine implements the authenticated-encryption layer
// (C3): XChaCha20-Poly1305 with per-object associated data derived from
// (bucket, key). The nonce-handling shape — a dedicated small value
// type, a fresh-from-CSPRNG constructor, nothing else — is adapted from
// rclone's backend/crypt/cipher.go nonce type, swapping that package's
// NaCl secretbox (XSalsa20-Poly1305) primitive for
// golang.org/x/crypto/chacha20poly1305.NewX per spec.md's mandate.
package cryptoengine

import (
	"crypto/rand"
	"fmt"

	"github.com/fritsstegmann/fily/internal/apierror"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required master key length in bytes.
const KeySize = chacha20poly1305.KeySize // 32

// nonceSize and overhead mirror the AEAD's own constants; named here so
// the on-disk layout documented in spec.md §4.3/§6 is legible at a glance.
const (
	nonceSize = chacha20poly1305.NonceSizeX // 24
	tagSize   = chacha20poly1305.Overhead   // 16
)

// Engine seals and opens object payloads with a single process-wide
// master key, read-only after construction (spec.md §3/§5/§9: no lock
// needed).
type Engine struct {
	aead chacha20poly1305.AEAD
}

// New builds an Engine from a 32-byte master key.
func New(masterKey []byte) (*Engine, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("cryptoengine: master key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	aead, err := chacha20poly1305.NewX(masterKey)
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: construct AEAD: %w", err)
	}
	return &Engine{aead: aead}, nil
}

// AssociatedData builds the public, authenticated-but-not-secret binding
// for a ciphertext: the literal "bucket/key" string, UTF-8 encoded. Moving
// a blob to a different (bucket, key) therefore fails to decrypt, per
// spec.md §4.3/§8 end-to-end scenario 6.
func AssociatedData(bucket, key string) []byte {
	return []byte(bucket + "/" + key)
}

// Seal encrypts plaintext, returning nonce‖ciphertext‖tag as a single
// blob — the on-disk layout spec.md §4.3/§6 mandates, with no header.
func (e *Engine) Seal(plaintext, associatedData []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptoengine: draw nonce: %w", err)
	}
	out := make([]byte, 0, nonceSize+len(plaintext)+tagSize)
	out = append(out, nonce...)
	out = e.aead.Seal(out, nonce, plaintext, associatedData)
	return out, nil
}

// Open decrypts a nonce‖ciphertext‖tag blob produced by Seal. Any
// failure — truncated input, tag mismatch, or wrong associated data —
// is reported as a generic error; callers must surface this as
// InternalError, never NoSuchKey, per spec.md §4.3.
func (e *Engine) Open(blob, associatedData []byte) ([]byte, error) {
	if len(blob) < nonceSize+tagSize {
		return nil, apierror.Internal("", fmt.Errorf("cryptoengine: ciphertext too short (%d bytes)", len(blob)))
	}
	nonce := blob[:nonceSize]
	ciphertext := blob[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, apierror.Internal("", fmt.Errorf("cryptoengine: open ciphertext: %w", err))
	}
	return plaintext, nil
}

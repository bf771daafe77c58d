// Package ciphergate encrypts and decrypts wire payloads under a key derived
// from request-supplied key material.
//
// Envelopes are base64(nonce || ciphertext) produced by AES-256-GCM with a
// fresh random nonce per call. The cipher key is sha256(keyMaterial).
package ciphergate

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// NonceSize is the GCM nonce length prefixed to every envelope.
const NonceSize = 12

// ErrDecrypt is the only decryption error callers may surface.
var ErrDecrypt = errors.New("decryption failed")

// ErrNoKeyMaterial is returned by Encrypt when no key material is supplied.
var ErrNoKeyMaterial = errors.New("ciphergate: key material required")

// Reason classifies a decryption failure for logs. It must not reach clients.
type Reason int

const (
	ReasonNoKey Reason = iota + 1
	ReasonBadBase64
	ReasonBadIV
	ReasonCipher
)

func (r Reason) String() string {
	switch r {
	case ReasonNoKey:
		return "no_key_material"
	case ReasonBadBase64:
		return "bad_base64"
	case ReasonBadIV:
		return "bad_iv"
	case ReasonCipher:
		return "cipher_failure"
	default:
		return "unknown"
	}
}

// DecryptError carries the internal reason while rendering as ErrDecrypt.
type DecryptError struct {
	Reason Reason
}

func (e *DecryptError) Error() string { return ErrDecrypt.Error() }

func (e *DecryptError) Is(target error) bool { return target == ErrDecrypt }

func fail(r Reason) error { return &DecryptError{Reason: r} }

// ReasonOf extracts the failure reason from err, or 0 when err is not a DecryptError.
func ReasonOf(err error) Reason {
	var de *DecryptError
	if errors.As(err, &de) {
		return de.Reason
	}
	return 0
}

func newAEAD(keyMaterial string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(keyMaterial))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func Encrypt(plaintext []byte, keyMaterial string) (string, error) {
	if keyMaterial == "" {
		return "", ErrNoKeyMaterial
	}
	aead, err := newAEAD(keyMaterial)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, 0, NonceSize+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens an envelope produced by Encrypt. Every failure is a
// *DecryptError that compares equal to ErrDecrypt.
func Decrypt(envelope, keyMaterial string) ([]byte, error) {
	if keyMaterial == "" {
		return nil, fail(ReasonNoKey)
	}
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fail(ReasonBadBase64)
	}
	aead, err := newAEAD(keyMaterial)
	if err != nil {
		return nil, fail(ReasonCipher)
	}
	if len(raw) < NonceSize+aead.Overhead() {
		return nil, fail(ReasonBadIV)
	}
	plaintext, err := aead.Open(nil, raw[:NonceSize], raw[NonceSize:], nil)
	if err != nil {
		return nil, fail(ReasonCipher)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// Package cryptox implements the client-side end-to-end encryption: content
// key derivation from account credentials, password wrapping of that key for
// local persistence, and per-field AES-GCM.
//
// Every ciphertext is a single base64 (std encoding) string holding a random
// 12-byte nonce followed by the GCM output.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize selects AES-256.
	KeySize = 32
	// NonceSize is the GCM standard nonce length.
	NonceSize = 12
	// Iterations is the PBKDF2 work factor for both derivations.
	Iterations = 100000

	wrapSalt = "notesync-wrap-salt"
)

// Sentinels returned by DecryptOrSentinel. They are display values only and
// must never be stored or pushed as content.
const (
	SentinelLocked  = "[Locked]"
	SentinelBadData = "[Bad Data]"
)

var (
	// ErrDecrypt covers a wrong key, a wrong password and corrupt input alike.
	ErrDecrypt = errors.New("decryption failed")
	// ErrInvalidKey is returned for keys that are not KeySize bytes long.
	ErrInvalidKey = errors.New("invalid key size")
)

func deriveKey(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}

// DeriveKey derives the content key from the account password and email.
// The email is trimmed and lower-cased before it is used as the salt, so the
// same account produces the same key on every device.
//
// Example:
//
//	key := cryptox.DeriveKey([]byte("correct horse"), " Alice@Example.com ")
//	defer common.WipeByteArray(key)
func DeriveKey(password []byte, email string) []byte {
	salt := []byte(strings.ToLower(strings.TrimSpace(email)))
	return deriveKey(password, salt, Iterations)
}

func wrappingKey(password []byte) []byte {
	return deriveKey(password, []byte(wrapSalt), Iterations)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal returns nonce || AES-GCM(plaintext).
func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, blob []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < NonceSize+aead.Overhead() {
		return nil, ErrDecrypt
	}
	plaintext, err := aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// WrapKey encrypts key under a key derived from password. The result is the
// only form of the content key written to disk.
func WrapKey(key, password []byte) (string, error) {
	wk := wrappingKey(password)
	blob, err := seal(wk, key)
	if err != nil {
		return "", fmt.Errorf("wrap key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// UnwrapKey reverses WrapKey. A wrong password yields ErrDecrypt.
func UnwrapKey(wrapped string, password []byte) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, ErrDecrypt
	}
	key, err := open(wrappingKey(password), blob)
	if err != nil {
		return nil, err
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// EncryptField encrypts one text field. Empty input stays empty.
func EncryptField(key []byte, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	blob, err := seal(key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptField decrypts a value produced by EncryptField.
func DecryptField(key []byte, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecrypt
	}
	plaintext, err := open(key, blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DecryptOrSentinel never fails: a missing key gives SentinelLocked and any
// decryption error gives SentinelBadData.
func DecryptOrSentinel(key []byte, ciphertext string) string {
	if ciphertext == "" {
		return ""
	}
	if len(key) == 0 {
		return SentinelLocked
	}
	s, err := DecryptField(key, ciphertext)
	if err != nil {
		return SentinelBadData
	}
	return s
}

// IsSentinel reports whether s is one of the display sentinels.
func IsSentinel(s string) bool {
	return s == SentinelLocked || s == SentinelBadData
}

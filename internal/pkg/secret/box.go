// Package secret seals small secrets (storefront access tokens) before they
// are written to the database.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrDecrypt is returned when a sealed value cannot be opened with the key.
var ErrDecrypt = errors.New("secret: decryption failed")

// Box seals and opens values with a symmetric key.
type Box struct {
	key [keySize]byte
}

// NewBox derives the key from security.encryption_key. A 64-char hex string is
// used as-is; any other non-empty value is hashed down to 32 bytes.
func NewBox(encryptionKey string) (*Box, error) {
	if encryptionKey == "" {
		return nil, errors.New("secret: empty encryption key")
	}
	b := &Box{}
	if raw, err := hex.DecodeString(encryptionKey); err == nil && len(raw) == keySize {
		copy(b.key[:], raw)
		return b, nil
	}
	b.key = sha256.Sum256([]byte(encryptionKey))
	return b, nil
}

// Seal encrypts plaintext. The random nonce is prepended to the output.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("secret: generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &b.key), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &b.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}

// Package crypto implements the reversible field transform used to keep
// participant identity out of public views. The key lives next to the data
// it protects, so this is privacy by obscurity rather than a security boundary.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/google/logger"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrEmptyKey            = errors.New("encryption key is empty")
	ErrEncryptionFailed    = errors.New("encryption failed")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrDecryptionFailed    = errors.New("decryption failed")
)

// Plaintext kind tags. The tag travels inside the sealed payload so a string
// that happens to look like JSON ("0612345678", "true") comes back as a string.
const (
	kindString byte = 's'
	kindJSON   byte = 'j'
)

var (
	hkdfSalt = []byte("tombola-field-encryption")
	hkdfInfo = []byte("aes-256-gcm v1")
)

// Cipher seals values with AES-256-GCM under a key derived from a passphrase.
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewCipher derives the field key from passphrase.
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, ErrEmptyKey
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), hkdfSalt, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	return &Cipher{aead: aead, rand: rand.Reader}, nil
}

// Seal serializes v (strings as-is, anything else as JSON) and returns the
// base64 encoding of nonce||ciphertext.
func (c *Cipher) Seal(v any) (string, error) {
	var plain []byte
	switch val := v.(type) {
	case string:
		plain = append([]byte{kindString}, val...)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("%w: marshal: %v", ErrEncryptionFailed, err)
		}
		plain = append([]byte{kindJSON}, raw...)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrEncryptionFailed, err)
	}

	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. JSON payloads come back as generic JSON values
// (map[string]any, []any, float64, bool, nil); if the payload does not parse
// the plain string is returned.
func (c *Cipher) Open(ciphertext string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return nil, ErrMalformedCiphertext
	}

	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(plain) == 0 {
		return "", nil
	}

	switch plain[0] {
	case kindString:
		return string(plain[1:]), nil
	case kindJSON:
		return parseOrString(plain[1:]), nil
	default:
		return parseOrString(plain), nil
	}
}

func parseOrString(b []byte) any {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return string(b)
	}
	return v
}

// Encrypt is the lenient form of Seal: on failure the value is returned
// unchanged and stored in clear.
func (c *Cipher) Encrypt(v any) any {
	sealed, err := c.Seal(v)
	if err != nil {
		logger.Errorf("encrypt: %v (value kept in clear)", err)
		return v
	}
	return sealed
}

// Decrypt is the lenient form of Open: on failure the ciphertext is returned
// unchanged.
func (c *Cipher) Decrypt(ciphertext string) any {
	v, err := c.Open(ciphertext)
	if err != nil {
		logger.Warningf("decrypt: %v", err)
		return ciphertext
	}
	return v
}

// SelfTest round-trips a fixed sample record.
func (c *Cipher) SelfTest() bool {
	sample := map[string]any{"email": "test@example.com", "phone": "0123456789"}
	sealed, err := c.Seal(sample)
	if err != nil {
		return false
	}
	got, err := c.Open(sealed)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(sample, got)
}

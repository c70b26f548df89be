package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	keySize   = 32
	nonceSize = 12
)

// ErrDecryption covers every way a stored secret can be unreadable: no key,
// bad encoding, short blob or a failed authentication tag.
var ErrDecryption = errors.New("credential decryption failed")

// Codec seals landlord provider secrets with AES-256-GCM. Stored form is
// base64(nonce || ciphertext || tag).
type Codec struct {
	key       []byte
	legacyKey []byte
}

type DecryptResult struct {
	Plaintext string
	// Legacy is set when only the legacy key could open the value; the row
	// should be re-encrypted with the canonical key.
	Legacy bool
}

// NewCodec takes the canonical key as base64 of exactly 32 bytes. legacySecret
// is the pre-migration raw secret and may be empty.
func NewCodec(keyB64, legacySecret string) (*Codec, error) {
	c := &Codec{}
	if strings.TrimSpace(keyB64) != "" {
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(keyB64))
		if err != nil {
			return nil, fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY is not valid base64: %w", err)
		}
		if len(key) != keySize {
			return nil, fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must decode to %d bytes, got %d", keySize, len(key))
		}
		c.key = key
	}
	if legacySecret != "" {
		c.legacyKey = LegacyKey(legacySecret)
	}
	return c, nil
}

// LegacyKey derives the old key: the raw secret right-padded with '0' or
// truncated to 32 bytes.
func LegacyKey(secret string) []byte {
	b := []byte(secret)
	if len(b) >= keySize {
		return b[:keySize]
	}
	out := make([]byte, keySize)
	copy(out, b)
	for i := len(b); i < keySize; i++ {
		out[i] = '0'
	}
	return out
}

func (c *Codec) HasKey() bool { return len(c.key) == keySize }

func (c *Codec) Encrypt(plaintext string) (string, error) {
	if !c.HasKey() {
		return "", errors.New("credential encryption key is not configured")
	}
	return seal(c.key, plaintext)
}

// Decrypt opens a value with the canonical key only.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	if !c.HasKey() {
		return "", ErrDecryption
	}
	return open(c.key, ciphertext)
}

// DecryptWithFallback tries the canonical key, then the legacy key when
// allowLegacy is set.
func (c *Codec) DecryptWithFallback(ciphertext string, allowLegacy bool) (DecryptResult, error) {
	if c.HasKey() {
		if pt, err := open(c.key, ciphertext); err == nil {
			return DecryptResult{Plaintext: pt}, nil
		}
	}
	if allowLegacy && len(c.legacyKey) == keySize {
		if pt, err := open(c.legacyKey, ciphertext); err == nil {
			return DecryptResult{Plaintext: pt, Legacy: true}, nil
		}
	}
	return DecryptResult{}, ErrDecryption
}

// Reseal re-encrypts a legacy-key value under the canonical key. Values that
// already open with the canonical key come back unchanged with resealed=false.
func (c *Codec) Reseal(ciphertext string) (out string, resealed bool, err error) {
	if ciphertext == "" {
		return "", false, nil
	}
	res, err := c.DecryptWithFallback(ciphertext, true)
	if err != nil {
		return "", false, err
	}
	if !res.Legacy {
		return ciphertext, false, nil
	}
	out, err = c.Encrypt(res.Plaintext)
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}

func seal(key []byte, plaintext string) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func open(key []byte, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", ErrDecryption
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", ErrDecryption
	}
	if len(raw) < nonceSize+gcm.Overhead() {
		return "", ErrDecryption
	}
	pt, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(pt), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

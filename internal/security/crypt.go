package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// Cipher encrypts shop access tokens before they reach the database.
// A zero-key Cipher passes values through unchanged so local setups can run
// without a key.
type Cipher struct {
	key []byte
}

// NewCipher builds a Cipher from a base64 std-encoded 32-byte key.
// An empty string yields a pass-through Cipher.
func NewCipher(keyB64 string) (*Cipher, error) {
	if keyB64 == "" {
		return &Cipher{}, nil
	}
	k, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, err
	}
	if len(k) != 32 {
		return nil, errors.New("token encryption key must decode to 32 bytes")
	}
	return &Cipher{key: k}, nil
}

// Encrypt returns base64url(nonce|ciphertext), or the plaintext unchanged
// for a pass-through Cipher.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if len(c.key) == 0 {
		return plaintext, nil
	}
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ct := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(append(nonce, ct...)), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(stored string) (string, error) {
	if len(c.key) == 0 {
		return stored, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(stored)
	if err != nil {
		return "", err
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	ns := gcm.NonceSize()
	if len(raw) < ns {
		return "", errors.New("ciphertext too short")
	}

	pt, err := gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func (c *Cipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

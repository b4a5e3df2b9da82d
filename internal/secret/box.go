package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

var ErrInvalidKey = errors.New("invalid key length: must be 16, 24 or 32 bytes (raw) or 64 hex chars")

// Box seals strings with AES-GCM. The nonce is prepended to the ciphertext and
// the result is base64 encoded so it can live inside a JSON document.
type Box struct {
	aead cipher.AEAD
}

func NewBox(key string) (*Box, error) {
	raw, err := keyBytes(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Box{aead: aead}, nil
}

// Seal encrypts plain text.
func (b *Box) Seal(plainText string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}

	nonceSize := b.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, cipherText := data[:nonceSize], data[nonceSize:]
	plain, err := b.aead.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return "", err
	}

	return string(plain), nil
}

func keyBytes(key string) ([]byte, error) {
	if len(key) == 64 {
		return hex.DecodeString(key)
	}

	switch len(key) {
	case 16, 24, 32:
		return []byte(key), nil
	}
	return nil, ErrInvalidKey
}

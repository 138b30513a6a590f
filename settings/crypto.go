package settings

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	secretSize = 32
	hkdfInfo   = "chamdiem/settings/api-key/v1"
	apiKeyAD   = "api_key"
)

var errCiphertext = errors.New("settings: malformed sealed value")

// deriveKey expands the install secret into the AEAD key.
func deriveKey(secret []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("settings: derive key: %w", err)
	}
	return key, nil
}

// seal encrypts plain with XChaCha20-Poly1305 and returns
// base64(nonce || ciphertext).
func seal(key []byte, plain string) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("settings: cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("settings: nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plain), []byte(apiKeyAD))
	return base64.RawStdEncoding.EncodeToString(out), nil
}

// unseal reverses seal.
func unseal(key []byte, sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", errCiphertext
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("settings: cipher: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", errCiphertext
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, []byte(apiKeyAD))
	if err != nil {
		return "", fmt.Errorf("settings: unseal: %w", err)
	}
	return string(plain), nil
}

// Mask shows the first and last four characters of a key.
func Mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

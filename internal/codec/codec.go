// Package codec encrypts export bundles with a password.
//
// The portable format is base64(salt || iv || ciphertext), where the key is
// derived with PBKDF2-SHA256 and the payload is sealed with AES-256-GCM.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/pbkdf2"
)

const (
	Iterations = 100000
	SaltSize   = 16
	IVSize     = 12
	KeySize    = 32
)

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals data with a key derived from password. Every call uses a fresh salt and IV.
func Encrypt(data []byte, password string) (string, error) {
	buf := make([]byte, SaltSize+IVSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt, iv := buf[:SaltSize], buf[SaltSize:]

	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return "", err
	}
	out := gcm.Seal(buf, iv, data, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a payload produced by Encrypt. A wrong password or a damaged
// payload fails with model.ErrDecryptionFailure.
func Decrypt(payload, password string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecryptionFailure, err)
	}
	if len(raw) < SaltSize+IVSize {
		return nil, fmt.Errorf("%w: payload too short", model.ErrDecryptionFailure)
	}
	salt, iv, ct := raw[:SaltSize], raw[SaltSize:SaltSize+IVSize], raw[SaltSize+IVSize:]

	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, iv, ct, nil)
	if err != nil {
		return nil, model.ErrDecryptionFailure
	}
	return plain, nil
}

// EncryptJSON serializes v and encrypts it
func EncryptJSON(v interface{}, password string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return Encrypt(data, password)
}

// DecryptJSON decrypts payload into v
func DecryptJSON(payload, password string, v interface{}) error {
	data, err := Decrypt(payload, password)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", model.ErrDecryptionFailure, err)
	}
	return nil
}

package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrEncryption     = errors.New("encryption failed")
	ErrDecryption     = errors.New("decryption failed")
)

// Encryptor seals and opens blobs at rest.
type Encryptor interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
	// Overhead is the number of bytes Encrypt adds to its input.
	Overhead() int
}

// NewAESEncryptor creates an AES-GCM encryptor from a 16, 24 or 32 byte key.
func NewAESEncryptor(key []byte) (Encryptor, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrInvalidKeySize
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrEncryption
	}

	return &aesEncryptor{gcm: gcm}, nil
}

// NewEncryptorFromSecret derives a 256-bit key from an operator supplied
// secret with HKDF-SHA256. purpose separates keys derived from one secret.
func NewEncryptorFromSecret(secret, purpose string) (Encryptor, error) {
	if secret == "" {
		return nil, ErrInvalidKeySize
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose)), key); err != nil {
		return nil, ErrEncryption
	}
	return NewAESEncryptor(key)
}

type aesEncryptor struct {
	gcm cipher.AEAD
}

// Encrypt prefixes the ciphertext with a random nonce.
func (a *aesEncryptor) Encrypt(data []byte) ([]byte, error) {
	nonce := make([]byte, a.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, ErrEncryption
	}
	return a.gcm.Seal(nonce, nonce, data, nil), nil
}

func (a *aesEncryptor) Decrypt(data []byte) ([]byte, error) {
	nonceSize := a.gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrDecryption
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := a.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

func (a *aesEncryptor) Overhead() int {
	return a.gcm.NonceSize() + a.gcm.Overhead()
}

package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// EncryptionSecretEnv enables at-rest encryption of message bodies when set
	EncryptionSecretEnv = "WINBRIDGE_ENCRYPTION_SECRET"

	keySize          = 32 // AES-256
	nonceSize        = 12
	pbkdf2Iterations = 100000
	minSecretLength  = 32
	encryptionSalt   = "winbridge-queue-v1"
	encryptedPrefix  = "enc:v1:"
)

type encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptorFromEnv builds an encryptor from WINBRIDGE_ENCRYPTION_SECRET. An unset secret disables encryption.
func NewEncryptorFromEnv() (*encryptor, error) {
	return NewEncryptor(os.Getenv(EncryptionSecretEnv))
}

// NewEncryptor derives an AES-GCM key from secret. An empty secret yields a pass-through encryptor.
func NewEncryptor(secret string) (*encryptor, error) {
	if secret == "" {
		return &encryptor{}, nil
	}
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", minSecretLength)
	}

	key := pbkdf2.Key([]byte(secret), []byte(encryptionSalt), pbkdf2Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &encryptor{gcm: gcm}, nil
}

// Enabled reports whether values are encrypted on write
func (e *encryptor) Enabled() bool {
	return e.gcm != nil
}

// Encrypt seals plaintext with a random nonce. Output is prefixed so plaintext rows stay readable.
func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens values written by Encrypt and passes unprefixed values through
func (e *encryptor) Decrypt(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, encryptedPrefix)
	if !ok {
		return value, nil
	}
	if e.gcm == nil {
		return "", fmt.Errorf("value is encrypted but %s is not set", EncryptionSecretEnv)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := e.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

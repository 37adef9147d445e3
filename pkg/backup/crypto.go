package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/forest6511/applockctl/pkg/kdf"
)

// KeyLength is the length of derived keys in bytes (256 bits).
const KeyLength = 32

// nonceLength is the AES-GCM nonce length in bytes.
const nonceLength = 12

// HKDF info strings for key derivation. A single Argon2id pass is
// split into independent encryption and MAC keys.
const (
	hkdfInfoEncryption = "applockctl-backup-encryption"
	hkdfInfoMAC        = "applockctl-backup-mac"
)

// GenerateSalt generates a fresh random salt for one backup.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, kdf.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveBackupKeys derives encryption and MAC keys from a password,
// salt and Argon2id cost parameters.
func DeriveBackupKeys(password, salt []byte, opsLimit, memLimit uint32) (encKey, macKey []byte, err error) {
	if len(password) == 0 {
		return nil, nil, ErrEmptyPassword
	}

	masterKey, err := kdf.Derive(password, salt, opsLimit, memLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive backup key: %w", err)
	}
	defer kdf.SecureWipe(masterKey)

	encKey, err = deriveHKDF(masterKey, []byte(hkdfInfoEncryption))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	macKey, err = deriveHKDF(masterKey, []byte(hkdfInfoMAC))
	if err != nil {
		kdf.SecureWipe(encKey)
		return nil, nil, fmt.Errorf("failed to derive MAC key: %w", err)
	}
	return encKey, macKey, nil
}

// deriveHKDF derives a key using HKDF-SHA256.
func deriveHKDF(secret, info []byte) ([]byte, error) {
	hkdfReader := hkdf.New(sha256.New, secret, nil, info)
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptPayload encrypts the payload using AES-256-GCM. Returns nonce
// prepended to ciphertext.
func EncryptPayload(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}

	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptPayload decrypts the payload using AES-256-GCM. Expects nonce
// prepended to ciphertext.
func DecryptPayload(data, key []byte) ([]byte, error) {
	if len(data) < nonceLength {
		return nil, ErrDecryptionFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, data[:nonceLength], data[nonceLength:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// ComputeHMAC computes HMAC-SHA256 over the given data.
func ComputeHMAC(data, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// VerifyHMAC verifies the HMAC-SHA256 of the given data.
func VerifyHMAC(data, expectedMAC, key []byte) bool {
	return hmac.Equal(ComputeHMAC(data, key), expectedMAC)
}

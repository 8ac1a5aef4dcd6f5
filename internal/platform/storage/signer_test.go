package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func serviceAccountJSON(t *testing.T) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	payload, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "uploads@shop.iam.gserviceaccount.com",
		"private_key":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	return payload, key
}

func TestNewSignerFromCredentialsInlineAndFile(t *testing.T) {
	payload, key := serviceAccountJSON(t)

	inline, err := NewSignerFromCredentials(string(payload))
	if err != nil {
		t.Fatalf("inline credentials: %v", err)
	}
	if inline.Email() != "uploads@shop.iam.gserviceaccount.com" {
		t.Fatalf("unexpected email %q", inline.Email())
	}

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	fromFile, err := NewSignerFromCredentials(path)
	if err != nil {
		t.Fatalf("file credentials: %v", err)
	}

	sig, err := fromFile.SignBytes(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("SignBytes: %v", err)
	}
	digest := sha256.Sum256([]byte("payload"))
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}
}

func TestNewSignerFromCredentialsRejectsBadInput(t *testing.T) {
	for name, value := range map[string]string{
		"empty":         "  ",
		"not a key":     `{"type":"authorized_user"}`,
		"missing email": `{"type":"service_account","private_key":"x"}`,
		"bad pem":       `{"type":"service_account","client_email":"a@b","private_key":"not pem"}`,
		"missing file":  filepath.Join(t.TempDir(), "absent.json"),
	} {
		if _, err := NewSignerFromCredentials(value); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestSignBytesHonoursCancelledContext(t *testing.T) {
	payload, _ := serviceAccountJSON(t)
	signer, err := NewSignerFromCredentials(string(payload))
	if err != nil {
		t.Fatalf("NewSignerFromCredentials: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := signer.SignBytes(ctx, []byte("payload")); err == nil {
		t.Fatalf("expected cancelled context error")
	}
}

package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string {
	return f.email
}

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func newTestClient(t *testing.T, now time.Time) (*Client, *fakeSigner) {
	t.Helper()
	signer := &fakeSigner{email: "catalog@example.iam.gserviceaccount.com"}
	client, err := NewClient(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	return client, signer
}

func TestSignUploadSignsProductImagePut(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	client, signer := newTestClient(t, now)

	res, err := client.SignUpload(context.Background(), "tradeshop-media", "catalog/products/prd_1/images/u1/front.png", UploadOptions{
		ContentType:         "Image/PNG",
		ContentMD5:          "xN0dYbCPv0CM0k9d1u8G7g==",
		AllowedContentTypes: []string{"image/*"},
		Size:                2048,
		MaxSize:             1 << 20,
		ExpiresIn:           10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("SignUpload: %v", err)
	}
	if res.Method != "PUT" || !res.ExpiresAt.Equal(now.Add(10*time.Minute)) {
		t.Fatalf("unexpected upload %s expiring %v", res.Method, res.ExpiresAt)
	}
	want := map[string]string{
		"Content-Type":    "image/png",
		"Content-MD5":     "xN0dYbCPv0CM0k9d1u8G7g==",
		lengthRangeHeader: "0,1048576",
	}
	for key, value := range want {
		if res.Headers[key] != value {
			t.Fatalf("header %s: expected %q, got %q", key, value, res.Headers[key])
		}
	}
	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("parse signed URL: %v", err)
	}
	if parsed.Query().Get("X-Goog-Signature") == "" || !strings.Contains(parsed.Path, "front.png") {
		t.Fatalf("unexpected signed URL %s", res.URL)
	}
	if len(signer.payloads) != 1 {
		t.Fatalf("expected one signing call, got %d", len(signer.payloads))
	}
}

func TestSignUploadDefaultsExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	client, _ := newTestClient(t, now)
	res, err := client.SignUpload(context.Background(), "tradeshop-media", "catalog/products/prd_1/images/u2/side.webp", UploadOptions{ContentType: "image/webp"})
	if err != nil {
		t.Fatalf("SignUpload: %v", err)
	}
	if !res.ExpiresAt.Equal(now.Add(defaultUploadExpiry)) {
		t.Fatalf("expected default expiry, got %v", res.ExpiresAt)
	}
	if _, ok := res.Headers[lengthRangeHeader]; ok {
		t.Fatalf("no size cap was requested")
	}
}

func TestSignUploadRejectsInvalidOptions(t *testing.T) {
	client, _ := newTestClient(t, time.Now())
	cases := []struct {
		name   string
		object string
		opts   UploadOptions
	}{
		{"missing object", " ", UploadOptions{ContentType: "image/png"}},
		{"missing content type", "o", UploadOptions{}},
		{"malformed content type", "o", UploadOptions{ContentType: "not a type"}},
		{"content type denied", "o", UploadOptions{ContentType: "application/pdf", AllowedContentTypes: []string{"image/png", "image/jpeg"}}},
		{"md5 not base64", "o", UploadOptions{ContentType: "image/png", ContentMD5: "%%%"}},
		{"md5 wrong length", "o", UploadOptions{ContentType: "image/png", ContentMD5: "c2hvcnQ="}},
		{"too large", "o", UploadOptions{ContentType: "image/png", Size: 11, MaxSize: 10}},
		{"expiry", "o", UploadOptions{ContentType: "image/png", ExpiresIn: 2 * time.Hour}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.SignUpload(context.Background(), "tradeshop-media", tc.object, tc.opts)
			if !errors.Is(err, ErrInvalidUpload) {
				t.Fatalf("expected ErrInvalidUpload, got %v", err)
			}
		})
	}
}

func TestSignUploadSignerFailureIsNotValidation(t *testing.T) {
	signer := &fakeSigner{email: "catalog@example.iam.gserviceaccount.com", err: errors.New("iam: permission denied")}
	client, err := NewClient(signer)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.SignUpload(context.Background(), "tradeshop-media", "o", UploadOptions{ContentType: "image/png"})
	if err == nil || errors.Is(err, ErrInvalidUpload) {
		t.Fatalf("expected signing failure, got %v", err)
	}
}

func TestNewClientRequiresSigner(t *testing.T) {
	if _, err := NewClient(&fakeSigner{}); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner, got %v", err)
	}
}

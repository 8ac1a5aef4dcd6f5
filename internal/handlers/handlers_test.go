package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/tradeshop/api/internal/platform/auth"
)

// tokenVerifier accepts tokens of the form "uid" or "uid:ROLE".
type tokenVerifier struct{}

func (tokenVerifier) VerifyIDToken(_ context.Context, token string) (*firebaseauth.Token, error) {
	uid, role, _ := strings.Cut(token, ":")
	if uid == "" {
		return nil, errors.New("bad token")
	}
	claims := map[string]interface{}{"email": uid + "@example.com"}
	if role != "" {
		claims["role"] = role
	}
	return &firebaseauth.Token{UID: uid, Claims: claims}, nil
}

func newTestAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(tokenVerifier{})
}

func doRequest(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func errorCodeOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	decodeBody(t, rr, &body)
	code, _ := body["error"].(string)
	return code
}

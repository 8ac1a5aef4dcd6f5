package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/tradeshop/api/internal/platform/config"
)

// FirebaseVerifier verifies shopper ID tokens with the Firebase Admin SDK. When revocation checks
// are enabled every verification costs one extra Admin API round trip.
type FirebaseVerifier struct {
	client       *firebaseauth.Client
	checkRevoked bool
}

// NewFirebaseVerifier initialises the Admin SDK for cfg.ProjectID. FIREBASE_AUTH_EMULATOR_HOST
// is honoured by the SDK itself.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("auth: firebase project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client, checkRevoked: cfg.CheckRevoked}, nil
}

// VerifyIDToken implements TokenVerifier. Revoked and disabled-user tokens map to ErrTokenInvalid.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("auth: firebase verifier not initialised")
	}
	if !v.checkRevoked {
		return v.client.VerifyIDToken(ctx, idToken)
	}
	token, err := v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if firebaseauth.IsIDTokenRevoked(err) || firebaseauth.IsUserDisabled(err) {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return token, err
}

// DeleteUser removes the Firebase account. An account that is already gone is not an error.
func (v *FirebaseVerifier) DeleteUser(ctx context.Context, uid string) error {
	if v == nil || v.client == nil {
		return errors.New("auth: firebase verifier not initialised")
	}
	if err := v.client.DeleteUser(ctx, uid); err != nil && !firebaseauth.IsUserNotFound(err) {
		return err
	}
	return nil
}

package auth

import (
	"context"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/tradeshop/api/internal/domain"
)

// Identity is the shopper or administrator behind a verified Firebase ID token.
type Identity struct {
	UID   string
	Email string
	Name  string
	Phone string

	// ClaimRole comes from the token's custom claim; Role is the effective role and is
	// replaced by the stored user role after provisioning.
	ClaimRole domain.UserRole
	Role      domain.UserRole

	token *firebaseauth.Token
}

// Token returns the decoded ID token.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// IsAdmin reports whether either the stored role or the claim grants admin.
func (i *Identity) IsAdmin() bool {
	return i != nil && (i.Role == domain.RoleAdmin || i.ClaimRole == domain.RoleAdmin)
}

// CanAccessUser reports whether the caller may act on userID's orders, wallet and profile.
func (i *Identity) CanAccessUser(userID string) bool {
	if i == nil || userID == "" {
		return false
	}
	return i.UID == userID || i.IsAdmin()
}

type identityKey struct{}

// WithIdentity stores identity on ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by RequireFirebaseAuth.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}

package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

const latestVersion = "latest"

// Reference is a parsed secret://name[?version=N&project=P] locator.
type Reference struct {
	Canonical string
	Name      string
	Version   string
	Project   string
}

// ParseReference validates ref and splits it into name, version, and project override.
// The legacy sm:// scheme is accepted as an alias.
func ParseReference(ref string) (Reference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Reference{}, errors.New("secrets: empty reference")
	}
	if strings.HasPrefix(ref, "sm://") {
		ref = "secret://" + strings.TrimPrefix(ref, "sm://")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return Reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return Reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return Reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	query := u.Query()
	return Reference{
		Canonical: "secret://" + name,
		Name:      name,
		Version:   strings.TrimSpace(query.Get("version")),
		Project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

// resource returns the Secret Manager version path for the reference.
func (r Reference) resource(project, version string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, r.Name, version)
}

// envKey maps the secret name onto the upper snake case key used in fallback files,
// e.g. "stripe/api-key" becomes STRIPE_API_KEY.
func (r Reference) envKey() string {
	var b strings.Builder
	for _, ch := range r.Name {
		switch {
		case unicode.IsLetter(ch) || unicode.IsDigit(ch):
			b.WriteRune(unicode.ToUpper(ch))
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// masked hides the secret name in telemetry attributes.
func (r Reference) masked() string {
	h := sha256.Sum256([]byte(r.Canonical))
	return hex.EncodeToString(h[:8])
}

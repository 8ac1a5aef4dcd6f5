package firestore

import (
	"errors"
	"testing"

	"github.com/tradeshop/api/internal/platform/config"
)

func TestResolveTarget(t *testing.T) {
	env := map[string]string{
		envGoogleProjectID: "env-project",
		envEmulatorHost:    "localhost:8080",
	}
	getenv := func(key string) string { return env[key] }

	got, err := resolveTarget(config.FirestoreConfig{ProjectID: " shop ", EmulatorHost: "127.0.0.1:9000"}, getenv)
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if got.projectID != "shop" || got.emulatorHost != "127.0.0.1:9000" {
		t.Fatalf("configuration must win over environment, got %+v", got)
	}

	got, err = resolveTarget(config.FirestoreConfig{}, getenv)
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if got.projectID != "env-project" || got.emulatorHost != "localhost:8080" {
		t.Fatalf("expected environment fallback, got %+v", got)
	}

	if _, err := resolveTarget(config.FirestoreConfig{}, func(string) string { return "" }); !errors.Is(err, ErrProjectRequired) {
		t.Fatalf("expected ErrProjectRequired, got %v", err)
	}
}

// Package firestore opens the Firestore client that backs idempotency records.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tradeshop/api/internal/platform/config"
)

const (
	defaultDialTimeout = 10 * time.Second
	envEmulatorHost    = "FIRESTORE_EMULATOR_HOST"
	envGoogleProjectID = "GOOGLE_CLOUD_PROJECT"
)

// ErrProjectRequired is returned when neither configuration nor environment names a project.
var ErrProjectRequired = errors.New("firestore: project id is required")

// NewClient dials Firestore, switching to an unauthenticated plaintext connection when an
// emulator host is configured.
func NewClient(ctx context.Context, cfg config.FirestoreConfig, opts ...option.ClientOption) (*firestore.Client, error) {
	target, err := resolveTarget(cfg, os.Getenv)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	clientOpts := append([]option.ClientOption(nil), opts...)
	if target.emulatorHost != "" {
		if os.Getenv(envEmulatorHost) == "" {
			_ = os.Setenv(envEmulatorHost, target.emulatorHost)
		}
		clientOpts = append(clientOpts,
			option.WithoutAuthentication(),
			option.WithEndpoint(target.emulatorHost),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	client, err := firestore.NewClient(dialCtx, target.projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w", err)
	}
	return client, nil
}

type target struct {
	projectID    string
	emulatorHost string
}

func resolveTarget(cfg config.FirestoreConfig, getenv func(string) string) (target, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(getenv(envGoogleProjectID))
	}
	if projectID == "" {
		return target{}, ErrProjectRequired
	}
	host := strings.TrimSpace(cfg.EmulatorHost)
	if host == "" {
		host = strings.TrimSpace(getenv(envEmulatorHost))
	}
	return target{projectID: projectID, emulatorHost: host}, nil
}

// Package gcs signs gs://bucket/object raster references with V4 signed URLs from
// Google Cloud Storage. Supports Application Default Credentials, service account
// JSON keys, and Workload Identity Federation.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/rasterscope/rasterscope/internal/config"
	appstorage "github.com/rasterscope/rasterscope/internal/storage"
)

// Scheme is the reference scheme this backend signs
const Scheme = "gs"

func init() {
	appstorage.Register(Scheme, func(cfg *appconfig.StorageConfig) (appstorage.Signer, error) {
		if !cfg.GCS.Enabled {
			return nil, nil
		}
		return New(&cfg.GCS)
	})
}

// Signer produces signed GET URLs for GCS objects
type Signer struct {
	client *storage.Client
}

// New creates a GCS signer
//
// Authentication methods:
//   - "default" or empty: Application Default Credentials (ADC)
//   - "service_account": a service account key file or JSON
//   - "workload_identity": Workload Identity Federation, resolved through ADC
//
// Signing with ADC requires signBlob permission (iam.serviceAccountTokenCreator).
func New(cfg *appconfig.GCSStorageConfig, extra ...option.ClientOption) (*Signer, error) {
	var opts []option.ClientOption

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			authMethod = "service_account"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "service_account":
		if cfg.CredentialsJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		} else if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		} else {
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}

	case "workload_identity", "default":

	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', or 'workload_identity')", authMethod)
	}

	opts = append(opts, extra...)

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &Signer{client: client}, nil
}

// Close closes the GCS client
func (s *Signer) Close() error {
	return s.client.Close()
}

// SignURL checks the object exists and returns a V4 signed GET URL for it
func (s *Signer) SignURL(ctx context.Context, ref appstorage.Reference, ttl time.Duration) (string, error) {
	if _, err := ref.ObjectKey(); err != nil {
		return "", err
	}

	exists, err := s.Exists(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", appstorage.ErrNotFound, ref)
	}

	url, err := s.client.Bucket(ref.Bucket).SignedURL(ref.Key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return url, nil
}

// Exists checks whether bucket/object exists
func (s *Signer) Exists(ctx context.Context, bucket, object string) (bool, error) {
	_, err := s.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// Package s3 signs s3://bucket/key raster references against AWS S3 or an
// S3-compatible service (MinIO, DigitalOcean Spaces) via a configurable endpoint.
// Rasters are served through pre-signed GET URLs so tile traffic goes straight
// from the object store to the renderer. Authentication methods: the default AWS
// credential chain, static key/secret, OIDC web identity, and AssumeRole for
// cross-account access.
package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	appconfig "github.com/rasterscope/rasterscope/internal/config"
	"github.com/rasterscope/rasterscope/internal/storage"
)

// Scheme is the reference scheme this backend signs
const Scheme = "s3"

func init() {
	storage.Register(Scheme, func(cfg *appconfig.StorageConfig) (storage.Signer, error) {
		if !cfg.S3.Enabled {
			return nil, nil
		}
		return New(&cfg.S3)
	})
}

// Signer presigns GET requests for S3 objects
type Signer struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	region        string
	endpoint      string
}

// New creates an S3 signer. The bucket comes from each reference, so only the
// region and credentials are configured here.
//
// Authentication methods:
//   - "default" or empty: AWS default credential chain (env vars, shared config, IAM role, IMDS)
//   - "static": explicit access key and secret key
//   - "oidc": Web Identity/OIDC token (EKS, GitHub Actions, etc.)
//   - "assume_role": assumes an IAM role, optionally with an external ID
func New(cfg *appconfig.S3StorageConfig) (*Signer, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			authMethod = "static"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "static":
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("access_key_id and secret_access_key are required for static auth")
		}
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))

	case "oidc", "assume_role":
		// configured once the base config is loaded

	case "default":

	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'static', 'oidc', or 'assume_role')", authMethod)
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	switch authMethod {
	case "oidc":
		if cfg.RoleARN == "" {
			return nil, fmt.Errorf("role_arn is required for OIDC auth")
		}
		if cfg.WebIdentityTokenFile == "" {
			return nil, fmt.Errorf("web_identity_token_file is required for OIDC auth")
		}

		var webIdentityOpts []func(*stscreds.WebIdentityRoleOptions)
		if cfg.RoleSessionName != "" {
			webIdentityOpts = append(webIdentityOpts, func(o *stscreds.WebIdentityRoleOptions) {
				o.RoleSessionName = cfg.RoleSessionName
			})
		}

		provider := stscreds.NewWebIdentityRoleProvider(
			sts.NewFromConfig(awsCfg),
			cfg.RoleARN,
			stscreds.IdentityTokenFile(cfg.WebIdentityTokenFile),
			webIdentityOpts...,
		)
		awsCfg.Credentials = aws.NewCredentialsCache(provider)

	case "assume_role":
		if cfg.RoleARN == "" {
			return nil, fmt.Errorf("role_arn is required for assume_role auth")
		}

		var assumeRoleOpts []func(*stscreds.AssumeRoleOptions)
		if cfg.RoleSessionName != "" {
			assumeRoleOpts = append(assumeRoleOpts, func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = cfg.RoleSessionName
			})
		}
		if cfg.ExternalID != "" {
			assumeRoleOpts = append(assumeRoleOpts, func(o *stscreds.AssumeRoleOptions) {
				o.ExternalID = aws.String(cfg.ExternalID)
			})
		}

		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), cfg.RoleARN, assumeRoleOpts...)
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// S3-compatible services want path-style addressing
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return &Signer{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		region:        cfg.Region,
		endpoint:      cfg.Endpoint,
	}, nil
}

// SignURL checks the object exists and returns a presigned GET URL for it
func (s *Signer) SignURL(ctx context.Context, ref storage.Reference, ttl time.Duration) (string, error) {
	if _, err := ref.ObjectKey(); err != nil {
		return "", err
	}

	exists, err := s.Exists(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, ref)
	}

	request, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return request.URL, nil
}

// Exists checks whether bucket/key exists
func (s *Signer) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
		return false, nil
	}
	return false, fmt.Errorf("failed to check object %s/%s: %w", bucket, key, err)
}

// Package azure signs az://container/blob raster references with time-limited SAS
// (Shared Access Signature) URLs from Azure Blob Storage. When a CDN URL is
// configured, references resolve to the CDN path instead of a SAS URL.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/rasterscope/rasterscope/internal/config"
	"github.com/rasterscope/rasterscope/internal/storage"
)

// Scheme is the reference scheme this backend signs
const Scheme = "az"

func init() {
	storage.Register(Scheme, func(cfg *config.StorageConfig) (storage.Signer, error) {
		if !cfg.Azure.Enabled {
			return nil, nil
		}
		return New(&cfg.Azure)
	})
}

// Signer produces SAS URLs for Azure blobs
type Signer struct {
	client     *azblob.Client
	credential *azblob.SharedKeyCredential
	serviceURL string
	cdnURL     string
}

// New creates an Azure Blob Storage signer
func New(cfg *config.AzureStorageConfig) (*Signer, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &Signer{
		client:     client,
		credential: credential,
		serviceURL: serviceURL,
		cdnURL:     strings.TrimRight(cfg.CDNURL, "/"),
	}, nil
}

// SignURL checks the blob exists and returns a read-only SAS URL for it
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

	if s.cdnURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.cdnURL, ref.Bucket, escapeBlobName(ref.Key)), nil
	}

	sasPermissions := sas.BlobPermissions{Read: true}
	// start slightly in the past to tolerate clock skew
	startTime := time.Now().UTC().Add(-5 * time.Minute)
	expiryTime := time.Now().UTC().Add(ttl)

	sasQueryParams, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     startTime,
		ExpiryTime:    expiryTime,
		Permissions:   sasPermissions.String(),
		ContainerName: ref.Bucket,
		BlobName:      ref.Key,
	}.SignWithSharedKey(s.credential)
	if err != nil {
		return "", fmt.Errorf("failed to generate SAS token: %w", err)
	}

	blobURL := fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.serviceURL, "/"), ref.Bucket, escapeBlobName(ref.Key))
	return fmt.Sprintf("%s?%s", blobURL, sasQueryParams.Encode()), nil
}

// Exists checks whether container/blob exists
func (s *Signer) Exists(ctx context.Context, container, blobName string) (bool, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(container).NewBlobClient(blobName)

	_, err := blobClient.GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return false, nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("failed to get blob properties: %w", err)
}

// escapeBlobName escapes each path segment, keeping the separators
func escapeBlobName(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

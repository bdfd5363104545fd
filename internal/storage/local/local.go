// Package local resolves local://path raster references to files served from a
// directory by a static file server. It is intended for development and
// single-node deployments; the base URL must point at whatever serves base_path.
package local

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rasterscope/rasterscope/internal/config"
	"github.com/rasterscope/rasterscope/internal/storage"
)

// Scheme is the reference scheme this backend resolves
const Scheme = "local"

func init() {
	storage.Register(Scheme, func(cfg *config.StorageConfig) (storage.Signer, error) {
		if !cfg.Local.Enabled {
			return nil, nil
		}
		return New(&cfg.Local)
	})
}

// Signer maps local references onto BaseURL
type Signer struct {
	basePath string
	baseURL  string
}

// New creates a local signer. The base path must already exist.
func New(cfg *config.LocalStorageConfig) (*Signer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("local base_url is required")
	}
	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("raster base path %s is not a directory", cfg.BasePath)
	}

	return &Signer{
		basePath: cfg.BasePath,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// SignURL returns the served URL for ref. Local URLs do not expire, so ttl is ignored.
func (s *Signer) SignURL(ctx context.Context, ref storage.Reference, _ time.Duration) (string, error) {
	path, err := cleanPath(ref.Path())
	if err != nil {
		return "", err
	}

	exists, err := s.Exists(ctx, path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, ref)
	}

	return fmt.Sprintf("%s/%s", s.baseURL, escapePath(path)), nil
}

// escapePath escapes each path segment so that '?' and '#' in file names
// stay part of the served path
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// Exists checks if a regular file exists at path below the base directory
func (s *Signer) Exists(_ context.Context, path string) (bool, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(path))

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return info.Mode().IsRegular(), nil
}

// cleanPath rejects paths that would escape the base directory
func cleanPath(p string) (string, error) {
	cleaned := filepath.ToSlash(filepath.Clean("/" + p))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("empty local raster path")
	}
	if cleaned != p {
		return "", fmt.Errorf("local raster path %q is not canonical", p)
	}
	return cleaned, nil
}

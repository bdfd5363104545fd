package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rasterscope/rasterscope/internal/config"
)

// Resolver maps a raw raster URL or object reference to a fetchable URL
type Resolver struct {
	signers map[string]Signer
	ttl     time.Duration
}

// NewResolver builds a resolver from every registered, enabled backend
func NewResolver(cfg *config.StorageConfig) (*Resolver, error) {
	signers, err := newSigners(cfg)
	if err != nil {
		return nil, err
	}
	r := NewResolverWithSigners(cfg.SignedURLTTL, signers)
	slog.Info("raster reference resolver ready", "schemes", r.Schemes(), "ttl", r.ttl)
	return r, nil
}

// NewResolverWithSigners builds a resolver from explicit signers keyed by scheme
func NewResolverWithSigners(ttl time.Duration, signers map[string]Signer) *Resolver {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if signers == nil {
		signers = map[string]Signer{}
	}
	return &Resolver{signers: signers, ttl: ttl}
}

// Schemes returns the object-store schemes this resolver can sign, sorted
func (r *Resolver) Schemes() []string {
	schemes := make([]string, 0, len(r.signers))
	for s := range r.signers {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Resolve returns raw unchanged for http and https URLs and a signed URL for
// references whose scheme has an enabled signer. A scheme with no signer is
// ErrUnsupportedScheme; a malformed reference for a known scheme is
// ErrInvalidReference.
func (r *Resolver) Resolve(ctx context.Context, raw string) (string, error) {
	if IsDirectURL(raw) {
		return raw, nil
	}

	scheme := SchemeOf(raw)
	signer, ok := r.signers[scheme]
	if !ok {
		if scheme == "" {
			return "", fmt.Errorf("%w: %q has no scheme", ErrUnsupportedScheme, raw)
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}

	ref, err := ParseReference(raw)
	if err != nil {
		return "", err
	}

	signed, err := signer.SignURL(ctx, ref, r.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", ref, err)
	}
	slog.Debug("signed raster reference", "reference", ref.String(), "ttl", r.ttl)
	return signed, nil
}

// Package storage turns object-store raster references into URLs a map renderer
// can fetch.
//
// The catalog may hand out either a plain http(s) URL or a reference such as
// s3://bucket/key, gs://bucket/object, az://container/blob or local://path.
// Each reference scheme is served by a Signer registered from its backend
// package's init() function:
//
//	func init() {
//	    storage.Register("s3", func(cfg *config.StorageConfig) (storage.Signer, error) {
//	        return New(&cfg.S3)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init().
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnsupportedScheme is returned for references no enabled backend can sign
	ErrUnsupportedScheme = errors.New("unsupported raster reference scheme")
	// ErrInvalidReference is returned for references that are malformed for their scheme
	ErrInvalidReference = errors.New("invalid raster reference")
	// ErrNotFound is returned when the referenced object does not exist
	ErrNotFound = errors.New("raster object not found")
)

// Signer produces a time-limited fetchable URL for an object reference
type Signer interface {
	// SignURL returns a URL for ref valid for ttl. It returns ErrNotFound
	// when the object does not exist.
	SignURL(ctx context.Context, ref Reference, ttl time.Duration) (string, error)
}

// Reference is a parsed object-store reference: scheme://bucket/key
type Reference struct {
	Scheme string
	// Bucket is the bucket or container; for local references it is the first path element
	Bucket string
	// Key is everything after the first slash, taken literally. It is empty
	// for a reference with a single path element such as local://dem.tif.
	Key string
}

// String renders the reference back to its scheme://bucket/key form
func (r Reference) String() string {
	return r.Scheme + "://" + r.Path()
}

// Path returns bucket and key joined with a slash
func (r Reference) Path() string {
	if r.Key == "" {
		return r.Bucket
	}
	return r.Bucket + "/" + r.Key
}

// ObjectKey returns the key for backends that address objects inside a
// bucket. A reference naming only a bucket is an ErrInvalidReference.
func (r Reference) ObjectKey() (string, error) {
	if r.Key == "" {
		return "", fmt.Errorf("%w: %s names no object within %q", ErrInvalidReference, r, r.Bucket)
	}
	return r.Key, nil
}

// SchemeOf returns the lower-cased scheme of raw, or "" when raw has none
func SchemeOf(raw string) string {
	scheme, _, ok := strings.Cut(raw, "://")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

// ParseReference splits raw into scheme, bucket and key. The scheme is
// lower-cased. The bucket runs to the first slash and must be present; the
// remainder is the key, kept verbatim so that '?', '#' and '%' survive as
// part of object names.
func ParseReference(raw string) (Reference, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || !validScheme(scheme) {
		return Reference{}, fmt.Errorf("%w: %q has no scheme", ErrInvalidReference, raw)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Reference{}, fmt.Errorf("%w: %q must have the form scheme://bucket/key", ErrInvalidReference, raw)
	}

	return Reference{
		Scheme: strings.ToLower(scheme),
		Bucket: bucket,
		Key:    key,
	}, nil
}

// validScheme follows the URI scheme grammar: a letter, then letters, digits, '+', '-' or '.'
func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

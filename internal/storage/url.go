package storage

import "strings"

// IsDirectURL reports whether raw is already fetchable without signing
func IsDirectURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

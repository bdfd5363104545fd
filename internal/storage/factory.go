// factory.go implements the signer registry, mapping reference schemes (s3, gs,
// az, local) to constructor functions.
package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rasterscope/rasterscope/internal/config"
)

// FactoryFunc builds the signer for one scheme. It returns a nil Signer and a
// nil error when the backend is disabled in cfg.
type FactoryFunc func(*config.StorageConfig) (Signer, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]FactoryFunc)
)

// Register registers a signer factory for a reference scheme
func Register(scheme string, factory FactoryFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[scheme] = factory
}

// RegisteredSchemes returns the schemes with a registered factory, sorted
func RegisteredSchemes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	schemes := make([]string, 0, len(factories))
	for s := range factories {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// newSigners builds every enabled signer
func newSigners(cfg *config.StorageConfig) (map[string]Signer, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	signers := make(map[string]Signer)
	for scheme, factory := range factories {
		signer, err := factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise %s signer: %w", scheme, err)
		}
		if signer != nil {
			signers[scheme] = signer
		}
	}
	return signers, nil
}

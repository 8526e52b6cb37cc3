// Package connector provides source connectors that fetch raw opportunity
// records from external procurement APIs, plus the registry workers resolve
// them through.
package connector

import (
	"fmt"
	"sync"

	"github.com/openprocure/harrier/internal/domain"
)

// Registry maps source keys to their connectors.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]domain.SourceConnector
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]domain.SourceConnector),
	}
}

// Register adds a connector under its source key, replacing any previous one.
func (r *Registry) Register(c domain.SourceConnector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Source()] = c
}

// Get resolves the connector for a source. A job for an unregistered source
// is a configuration error, not a transient failure.
func (r *Registry) Get(source string) (domain.SourceConnector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connectors[source]
	if !ok {
		return nil, &domain.FetchError{
			Source:    source,
			Transient: false,
			Err:       fmt.Errorf("no connector registered for source %q", source),
		}
	}
	return c, nil
}

// Sources returns the registered source keys.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.connectors))
	for s := range r.connectors {
		sources = append(sources, s)
	}
	return sources
}

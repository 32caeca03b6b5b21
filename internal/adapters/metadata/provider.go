// Package metadata supplies display data (names, profile labels) for ranked
// entity keys.
package metadata

import (
	"context"
	"maps"
	"sync"

	"github.com/okian/skyrank/internal/domain/model"
)

// Provider resolves display metadata for entity keys of one kind.
//
// The returned map holds an entry for every key that was resolved; a key
// with no known metadata maps to an empty map. Keys whose lookup failed are
// left out, so callers can degrade them individually. A non-nil error means
// the lookup failed for every key.
type Provider interface {
	Lookup(ctx context.Context, kind model.EntityKind, keys []string) (map[string]map[string]string, error)
}

// Static is an in-memory Provider. The zero value knows nothing.
type Static struct {
	mu   sync.RWMutex
	meta map[string]map[string]string
}

// NewStatic returns a provider seeded with meta, keyed by entity key.
func NewStatic(meta map[string]map[string]string) *Static {
	s := &Static{meta: make(map[string]map[string]string, len(meta))}
	for k, v := range meta {
		s.meta[k] = maps.Clone(v)
	}
	return s
}

// Set replaces the metadata for key.
func (s *Static) Set(key string, meta map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		s.meta = make(map[string]map[string]string)
	}
	s.meta[key] = maps.Clone(meta)
}

// Lookup implements Provider.
func (s *Static) Lookup(_ context.Context, _ model.EntityKind, keys []string) (map[string]map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]string, len(keys))
	for _, k := range keys {
		m := maps.Clone(s.meta[k])
		if m == nil {
			m = map[string]string{}
		}
		out[k] = m
	}
	return out, nil
}

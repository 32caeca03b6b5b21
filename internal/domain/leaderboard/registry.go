package leaderboard

import (
	"fmt"
	"sort"
	"sync"

	"github.com/okian/skyrank/internal/domain/model"
)

// Registry is the catalog of leaderboard definitions. Definitions are
// registered at startup; after Seal the registry is read-only.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]*Definition
	sorted []*Definition
	byKind map[model.EntityKind][]*Definition
	sealed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:   make(map[string]*Definition),
		byKind: make(map[model.EntityKind][]*Definition),
	}
}

// Register validates and adds def.
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if def.Order == "" {
		def.Order = Desc
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("leaderboard.Register %s: %w", def.ID, ErrRegistrySealed)
	}
	if _, ok := r.defs[def.ID]; ok {
		return fmt.Errorf("leaderboard.Register: %w: %s", ErrDuplicateLeaderboard, def.ID)
	}
	d := def
	d.IntervalTypes = append([]IntervalType(nil), def.IntervalTypes...)
	r.defs[d.ID] = &d
	r.reindex()
	return nil
}

// MustRegister registers every definition and panics on the first error.
// Startup code uses it so a bad catalog never serves traffic.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// MarkLegacy routes the given leaderboards to the relational store.
func (r *Registry) MarkLegacy(ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("leaderboard.MarkLegacy: %w", ErrRegistrySealed)
	}
	for _, id := range ids {
		def, ok := r.defs[id]
		if !ok {
			return fmt.Errorf("leaderboard.MarkLegacy: %w: %s", ErrUnknownLeaderboard, id)
		}
		def.Legacy = true
	}
	return nil
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Get returns the definition for id. Callers must not modify it.
func (r *Registry) Get(id string) (*Definition, error) {
	r.mu.RLock()
	def, ok := r.defs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("leaderboard.Get: %w: %s", ErrUnknownLeaderboard, id)
	}
	return def, nil
}

// All returns every definition ordered by category, then id.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Definition(nil), r.sorted...)
}

// ForKind returns the definitions scoring entities of kind.
func (r *Registry) ForKind(kind model.EntityKind) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byKind[kind]
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// reindex rebuilds the sorted views. Callers hold the write lock.
func (r *Registry) reindex() {
	sorted := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Category != sorted[j].Category {
			return sorted[i].Category < sorted[j].Category
		}
		return sorted[i].ID < sorted[j].ID
	})
	byKind := make(map[model.EntityKind][]*Definition, 2)
	for _, d := range sorted {
		byKind[d.EntityKind] = append(byKind[d.EntityKind], d)
	}
	r.sorted = sorted
	r.byKind = byKind
}

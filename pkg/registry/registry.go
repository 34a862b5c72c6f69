// Package registry holds the pluggable units of pipeline work. Registries are
// constructed and injected explicitly; there is no process-wide instance, so
// tests and concurrent runs can each hold an isolated registry.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/engine/runtime"
)

// Metadata records registration bookkeeping for one plugin.
type Metadata struct {
	Category     domain.NodeCategory
	Enabled      bool
	RegisteredAt time.Time
}

// Registry maps plugin ids to executable units and validates their shape
// before anything else trusts them. All operations are O(1) or O(registered
// count); registering a plugin never invokes it.
type Registry struct {
	mu         sync.RWMutex
	plugins    map[string]runtime.Plugin
	meta       map[string]*Metadata
	byCategory map[domain.NodeCategory][]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		plugins:    make(map[string]runtime.Plugin),
		meta:       make(map[string]*Metadata),
		byCategory: make(map[domain.NodeCategory][]string),
	}
}

// Register validates and stores a plugin. The interface already guarantees the
// capability shape at compile time; the remaining runtime checks guard the
// values a broken implementation could still produce.
func (r *Registry) Register(p runtime.Plugin) error {
	if p == nil {
		return fmt.Errorf("%w: nil plugin", domain.ErrInvalidPlugin)
	}
	id := p.ID()
	if id == "" {
		return fmt.Errorf("%w: empty plugin id", domain.ErrInvalidPlugin)
	}
	if !domain.ValidCategory(p.Category()) {
		return fmt.Errorf("%w: plugin %q has unknown category %q", domain.ErrInvalidPlugin, id, p.Category())
	}
	if p.PluginName() == "" {
		return fmt.Errorf("%w: plugin %q has empty plugin name", domain.ErrInvalidPlugin, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[id]; exists {
		return fmt.Errorf("%w: %s", domain.ErrPluginExists, id)
	}

	r.plugins[id] = p
	r.meta[id] = &Metadata{
		Category:     p.Category(),
		Enabled:      true,
		RegisteredAt: time.Now(),
	}
	r.byCategory[p.Category()] = append(r.byCategory[p.Category()], id)
	return nil
}

// Unregister removes a plugin and its metadata.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plugins[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPluginNotFound, id)
	}

	delete(r.plugins, id)
	delete(r.meta, id)

	cat := p.Category()
	ids := r.byCategory[cat]
	for i, existing := range ids {
		if existing == id {
			r.byCategory[cat] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the plugin registered under id.
func (r *Registry) Get(id string) (runtime.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// ListByCategory returns the plugins of one category, ordered by id.
func (r *Registry) ListByCategory(cat domain.NodeCategory) []runtime.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := append([]string(nil), r.byCategory[cat]...)
	sort.Strings(ids)
	out := make([]runtime.Plugin, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.plugins[id])
	}
	return out
}

// ListAll returns every registered plugin, ordered by id.
func (r *Registry) ListAll() []runtime.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]runtime.Plugin, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.plugins[id])
	}
	return out
}

// Enable marks a plugin as eligible for use.
func (r *Registry) Enable(id string) error {
	return r.setEnabled(id, true)
}

// Disable marks a plugin as ineligible without unregistering it.
func (r *Registry) Disable(id string) error {
	return r.setEnabled(id, false)
}

// IsEnabled reports whether the plugin exists and is enabled.
func (r *Registry) IsEnabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meta[id]
	return ok && m.Enabled
}

// Meta returns a copy of the registration metadata for id.
func (r *Registry) Meta(id string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meta[id]
	if !ok {
		return Metadata{}, false
	}
	return *m, true
}

func (r *Registry) setEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meta[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPluginNotFound, id)
	}
	m.Enabled = enabled
	return nil
}

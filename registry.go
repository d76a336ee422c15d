package edk

import (
	"fmt"
	"sync"
)

// Registry maps (kind, name) to registered plugins. It is an explicit object
// rather than package-level state: callers construct one at startup, register
// everything, and pass it by reference to the orchestrator. Registration must
// finish before any pipeline run starts; after that point reads are safe from
// any number of goroutines.
type Registry struct {
	mu      sync.RWMutex
	plugins map[registryKey]Plugin
	order   map[Kind][]string
}

type registryKey struct {
	kind Kind
	name string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[registryKey]Plugin),
		order:   make(map[Kind][]string),
	}
}

// DuplicateRegistrationError is returned when two plugins claim the same
// (kind, name). The first registration always wins.
type DuplicateRegistrationError struct {
	Kind Kind
	Name string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("plugin %s/%s is already registered", e.Kind, e.Name)
}

// UnknownPluginError is returned when no plugin is registered under the
// requested (kind, name).
type UnknownPluginError struct {
	Kind Kind
	Name string
}

func (e *UnknownPluginError) Error() string {
	return fmt.Sprintf("no %s plugin registered with name '%s'", e.Kind, e.Name)
}

// Register adds p under its declared (kind, name). It rejects invalid kinds,
// empty names, and duplicate keys.
func (r *Registry) Register(p Plugin) error {
	kind, name := p.Kind(), p.Name()
	if !kind.Valid() {
		return fmt.Errorf("registering '%s': unknown plugin kind '%s'", name, kind)
	}
	if name == "" {
		return fmt.Errorf("registering %s plugin: name must not be empty", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey{kind: kind, name: name}
	if _, ok := r.plugins[key]; ok {
		return &DuplicateRegistrationError{Kind: kind, Name: name}
	}
	r.plugins[key] = p
	r.order[kind] = append(r.order[kind], name)
	return nil
}

// MustRegister is Register but panics on error. Intended for wiring builtin
// plugin sets at startup where a failure is a programming error.
func (r *Registry) MustRegister(p Plugin) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Resolve returns the plugin registered under (kind, name).
func (r *Registry) Resolve(kind Kind, name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[registryKey{kind: kind, name: name}]
	if !ok {
		return nil, &UnknownPluginError{Kind: kind, Name: name}
	}
	return p, nil
}

// ListByKind returns the plugins of one kind in registration order.
func (r *Registry) ListByKind(kind Kind) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.order[kind]
	ps := make([]Plugin, 0, len(names))
	for _, name := range names {
		ps = append(ps, r.plugins[registryKey{kind: kind, name: name}])
	}
	return ps
}

// Len returns the total number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

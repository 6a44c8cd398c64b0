package storage

import (
	"fmt"
	"sync"
)

// PropertyKeys maps property names to integer tokens.
//
// Tokens are dense, start at 0 and are never reused. Once a name has a token
// it keeps it for the lifetime of the registry, so a token cached by a
// compiled projection stays valid.
type PropertyKeys struct {
	mu     sync.RWMutex
	byName map[string]int
	names  []string

	// onCreate persists a newly allocated token. If it fails the token is
	// not registered.
	onCreate func(name string, id int) error
}

// NewPropertyKeys creates an empty registry.
func NewPropertyKeys() *PropertyKeys {
	return &PropertyKeys{byName: make(map[string]int)}
}

// Lookup returns the token for name without allocating one.
func (p *PropertyKeys) Lookup(name string) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byName[name]
	return id, ok
}

// Resolve returns the token for name, allocating the next free token if the
// name is new.
func (p *PropertyKeys) Resolve(name string) (int, error) {
	if name == "" {
		return NoSuchPropertyKey, fmt.Errorf("property key: %w", ErrInvalidData)
	}
	if id, ok := p.Lookup(name); ok {
		return id, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Lost the race to another writer
	if id, ok := p.byName[name]; ok {
		return id, nil
	}

	id := len(p.names)
	if p.onCreate != nil {
		if err := p.onCreate(name, id); err != nil {
			return NoSuchPropertyKey, fmt.Errorf("failed to persist property key %q: %w", name, err)
		}
	}
	p.byName[name] = id
	p.names = append(p.names, name)
	return id, nil
}

// Name returns the property name registered for a token.
func (p *PropertyKeys) Name(id int) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if id < 0 || id >= len(p.names) {
		return "", fmt.Errorf("property key %d: %w", id, ErrNotFound)
	}
	return p.names[id], nil
}

// Len returns the number of registered tokens.
func (p *PropertyKeys) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.names)
}

// restore registers a token loaded from disk. Tokens must be restored in
// ascending order.
func (p *PropertyKeys) restore(name string, id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id != len(p.names) {
		return fmt.Errorf("property key %q has token %d, expected %d: %w", name, id, len(p.names), ErrInvalidData)
	}
	p.byName[name] = id
	p.names = append(p.names, name)
	return nil
}

// readProperty resolves a token against a property map.
func readProperty(keys *PropertyKeys, props map[string]any, key int) (any, bool, error) {
	if key == NoSuchPropertyKey {
		return nil, false, nil
	}
	name, err := keys.Name(key)
	if err != nil {
		// A token this registry never handed out can't name a stored property
		return nil, false, nil
	}
	v, ok := props[name]
	return v, ok, nil
}

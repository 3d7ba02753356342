// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"fmt"
)

// Registry is the immutable, ordered table of declared metrics. It is
// built once at startup from a declarative definition list and never
// changes afterwards; declaration order is the order values appear in
// every heartbeat record.
type Registry struct {
	defs   []Definition
	byName map[string]int // name -> 1-based position
}

// NewRegistry validates the definition list and builds a registry.
// Empty names, unknown types, and duplicate names are construction
// errors, reported joined so a bad config surfaces every problem at
// once.
func NewRegistry(defs []Definition) (*Registry, error) {
	registry := &Registry{
		defs:   make([]Definition, len(defs)),
		byName: make(map[string]int, len(defs)),
	}
	var errs []error
	for i, def := range defs {
		if def.Name == "" {
			errs = append(errs, fmt.Errorf("metric %d: empty name", i))
			continue
		}
		if def.Type > TypeTimer {
			errs = append(errs, fmt.Errorf("metric %q: invalid type %d", def.Name, def.Type))
			continue
		}
		if _, dup := registry.byName[def.Name]; dup {
			errs = append(errs, fmt.Errorf("metric %q: duplicate name", def.Name))
			continue
		}
		registry.defs[i] = def
		registry.byName[def.Name] = i + 1
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return registry, nil
}

// Len returns the number of registered metrics.
func (r *Registry) Len() int { return len(r.defs) }

// Definitions returns the registered metrics in declaration order.
// The returned slice is a copy; the registry itself is immutable.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Key returns the handle for a registered metric name.
func (r *Registry) Key(name string) (Key, error) {
	position, ok := r.byName[name]
	if !ok {
		return Key{}, fmt.Errorf("metric %q: %w", name, ErrUnknownKey)
	}
	return Key{index: position}, nil
}

// MustKey is Key for static registration sites where the name is a
// compile-time constant. Panics on an unregistered name.
func (r *Registry) MustKey(name string) Key {
	key, err := r.Key(name)
	if err != nil {
		panic(err.Error())
	}
	return key
}

// definition returns the declaration behind a key, reporting whether
// the key belongs to this registry's range.
func (r *Registry) definition(key Key) (Definition, bool) {
	if key.index < 1 || key.index > len(r.defs) {
		return Definition{}, false
	}
	return r.defs[key.index-1], true
}

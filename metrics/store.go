// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/pulselabs/pulse/lib/clock"
)

// Store holds the current value of every registered metric. All
// mutations are short bounded critical sections under a single lock
// domain shared with Snapshot, so a heartbeat serialize always
// observes a value set that is consistent across the whole registry.
//
// Every operation is non-blocking apart from the lock itself and is
// safe to call from any goroutine.
type Store struct {
	registry *Registry
	clk      clock.Clock
	mu       sync.Locker

	// values is the raw 32-bit payload per registry slot, interpreted
	// according to the declared type.
	values []uint32

	// timerStarts holds the pending start instant per slot. Only
	// meaningful for TypeTimer slots with timerRunning set.
	timerStarts  []time.Time
	timerRunning []bool
}

// NewStore creates a store with every value at its type default (0),
// guarded by its own mutex.
func NewStore(registry *Registry, clk clock.Clock) *Store {
	return NewStoreLocked(registry, clk, new(sync.Mutex))
}

// NewStoreLocked creates a store guarded by a caller-supplied lock.
// Use this when value mutation must share one mutual-exclusion domain
// with other platform state (for example an adapter over an
// interrupt-masking critical section). Callers must not hold the lock
// when invoking store operations.
func NewStoreLocked(registry *Registry, clk clock.Clock, mu sync.Locker) *Store {
	n := registry.Len()
	return &Store{
		registry:     registry,
		clk:          clk,
		mu:           mu,
		values:       make([]uint32, n),
		timerStarts:  make([]time.Time, n),
		timerRunning: make([]bool, n),
	}
}

// Registry returns the registry this store was built from.
func (s *Store) Registry() *Registry { return s.registry }

// SetUnsigned overwrites the current value of a TypeUnsigned metric.
func (s *Store) SetUnsigned(key Key, value uint32) error {
	_, slot, err := s.slot(key, TypeUnsigned)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[slot] = value
	return nil
}

// SetSigned overwrites the current value of a TypeSigned metric.
func (s *Store) SetSigned(key Key, value int32) error {
	_, slot, err := s.slot(key, TypeSigned)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[slot] = uint32(value)
	return nil
}

// Add adds delta to the current value of an unsigned or signed
// metric. Overflow wraps per 32-bit two's-complement arithmetic; no
// saturation is performed. Timer metrics mutate only through
// TimerStart/TimerStop.
func (s *Store) Add(key Key, delta int32) error {
	def, ok := s.registry.definition(key)
	if !ok {
		return fmt.Errorf("add: %w", ErrUnknownKey)
	}
	if def.Type != TypeUnsigned && def.Type != TypeSigned {
		return fmt.Errorf("add on %s metric %q: %w", def.Type, def.Name, ErrTypeMismatch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key.index-1] += uint32(delta)
	return nil
}

// TimerStart records the start instant for a TypeTimer metric. A
// second start without an intervening stop fails with ErrTimerRunning
// and leaves the pending start untouched.
func (s *Store) TimerStart(key Key) error {
	def, slot, err := s.slot(key, TypeTimer)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timerRunning[slot] {
		return fmt.Errorf("timer %q: %w", def.Name, ErrTimerRunning)
	}
	s.timerRunning[slot] = true
	s.timerStarts[slot] = s.clk.Now()
	return nil
}

// TimerStop adds the elapsed milliseconds since the matching
// TimerStart to the metric's accumulated value. Without a pending
// start it fails with ErrTimerNotRunning.
func (s *Store) TimerStop(key Key) error {
	def, slot, err := s.slot(key, TypeTimer)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.timerRunning[slot] {
		return fmt.Errorf("timer %q: %w", def.Name, ErrTimerNotRunning)
	}
	elapsed := s.clk.Now().Sub(s.timerStarts[slot])
	if elapsed < 0 {
		elapsed = 0
	}
	s.values[slot] += uint32(elapsed.Milliseconds())
	s.timerRunning[slot] = false
	return nil
}

// ReadUnsigned returns the current value of a TypeUnsigned metric.
func (s *Store) ReadUnsigned(key Key) (uint32, error) {
	value, err := s.Read(key)
	if err != nil {
		return 0, err
	}
	return value.Unsigned()
}

// ReadSigned returns the current value of a TypeSigned metric.
func (s *Store) ReadSigned(key Key) (int32, error) {
	value, err := s.Read(key)
	if err != nil {
		return 0, err
	}
	return value.Signed()
}

// ReadTimer returns the accumulated milliseconds of a TypeTimer
// metric. A running timer's in-flight segment is not included until
// TimerStop.
func (s *Store) ReadTimer(key Key) (uint32, error) {
	value, err := s.Read(key)
	if err != nil {
		return 0, err
	}
	return value.TimerMillis()
}

// Read returns the current tagged value for any registered key. It
// does not mutate.
func (s *Store) Read(key Key) (Value, error) {
	def, ok := s.registry.definition(key)
	if !ok {
		return Value{}, fmt.Errorf("read: %w", ErrUnknownKey)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Value{typ: def.Type, bits: s.values[key.index-1]}, nil
}

// Snapshot returns a copy of every current value in registry
// declaration order, taken atomically under the store's lock.
func (s *Store) Snapshot() []SnapshotEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]SnapshotEntry, len(s.registry.defs))
	for i, def := range s.registry.defs {
		entries[i] = SnapshotEntry{
			Definition: def,
			Value:      Value{typ: def.Type, bits: s.values[i]},
		}
	}
	return entries
}

// Reset restores values to their type default after a committed
// heartbeat. Metrics declared with Preserve keep their value; timers
// always drop their accumulation. A timer that is running during the
// reset stays running but its start is re-stamped to now, so each
// interval reports only time spent within that interval.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	for i, def := range s.registry.defs {
		if def.Type == TypeTimer {
			s.values[i] = 0
			if s.timerRunning[i] {
				s.timerStarts[i] = now
			}
			continue
		}
		if !def.Preserve {
			s.values[i] = 0
		}
	}
}

// slot resolves a key against the registry and checks its declared
// type, returning the zero-based storage index.
func (s *Store) slot(key Key, want Type) (Definition, int, error) {
	def, ok := s.registry.definition(key)
	if !ok {
		return Definition{}, 0, fmt.Errorf("%s operation: %w", want, ErrUnknownKey)
	}
	if def.Type != want {
		return Definition{}, 0, fmt.Errorf("%s operation on %s metric %q: %w",
			want, def.Type, def.Name, ErrTypeMismatch)
	}
	return def, key.index - 1, nil
}

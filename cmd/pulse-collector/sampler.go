// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/pulselabs/pulse/lib/clock"
	"github.com/pulselabs/pulse/metrics"
)

// The collector samples its own runtime health when the config
// declares metrics under these names. Names left undeclared are
// simply not sampled.
const (
	metricHeapBytes  = "collector_heap_bytes"  // unsigned
	metricGoroutines = "collector_goroutines"  // unsigned
	metricGCCycles   = "collector_gc_cycles"   // unsigned
	metricUptime     = "collector_uptime_ms"   // timer
)

type sampler struct {
	store  *metrics.Store
	logger *slog.Logger

	heap       metrics.Key
	goroutines metrics.Key
	gcCycles   metrics.Key
	uptime     metrics.Key

	hasHeap       bool
	hasGoroutines bool
	hasGCCycles   bool
	hasUptime     bool
}

func newSampler(store *metrics.Store, logger *slog.Logger) *sampler {
	s := &sampler{store: store, logger: logger}
	s.heap, s.hasHeap = s.bind(metricHeapBytes, metrics.TypeUnsigned)
	s.goroutines, s.hasGoroutines = s.bind(metricGoroutines, metrics.TypeUnsigned)
	s.gcCycles, s.hasGCCycles = s.bind(metricGCCycles, metrics.TypeUnsigned)
	s.uptime, s.hasUptime = s.bind(metricUptime, metrics.TypeTimer)
	return s
}

// begin arms the uptime timer. It runs once when the sampling loop
// starts, never at construction: a collector with sampling disabled
// must not leave a timer running that nothing will ever cycle.
func (s *sampler) begin() {
	if !s.hasUptime {
		return
	}
	if err := s.store.TimerStart(s.uptime); err != nil {
		s.logger.Warn("starting uptime timer", "error", err)
		s.hasUptime = false
	}
}

// bind resolves a well-known name against the registry, refusing the
// binding when the config declared it with the wrong type.
func (s *sampler) bind(name string, want metrics.Type) (metrics.Key, bool) {
	key, err := s.store.Registry().Key(name)
	if err != nil {
		return metrics.Key{}, false
	}
	for _, def := range s.store.Registry().Definitions() {
		if def.Name == name && def.Type != want {
			s.logger.Warn("built-in metric declared with wrong type, not sampling",
				"metric", name, "declared", def.Type.String(), "want", want.String())
			return metrics.Key{}, false
		}
	}
	return key, true
}

func (s *sampler) run(ctx context.Context, clk clock.Clock, period time.Duration) {
	s.begin()
	ticker := clk.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
		s.sample()
	}
}

// sample refreshes every bound metric. Uptime is accumulated by
// cycling the timer so the in-flight segment lands in the store
// before the next heartbeat snapshot.
func (s *sampler) sample() {
	if s.hasHeap || s.hasGCCycles {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		if s.hasHeap {
			s.setUnsigned(s.heap, clampUint32(stats.HeapAlloc))
		}
		if s.hasGCCycles {
			s.setUnsigned(s.gcCycles, stats.NumGC)
		}
	}
	if s.hasGoroutines {
		s.setUnsigned(s.goroutines, clampUint32(uint64(runtime.NumGoroutine())))
	}
	if s.hasUptime {
		if err := s.store.TimerStop(s.uptime); err != nil {
			s.logger.Warn("cycling uptime timer", "error", err)
			return
		}
		if err := s.store.TimerStart(s.uptime); err != nil {
			s.logger.Warn("cycling uptime timer", "error", err)
		}
	}
}

func (s *sampler) setUnsigned(key metrics.Key, value uint32) {
	if err := s.store.SetUnsigned(key, value); err != nil {
		s.logger.Warn("sampling runtime metric", "error", err)
	}
}

func clampUint32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

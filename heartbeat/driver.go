// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pulselabs/pulse/lib/clock"
	"github.com/pulselabs/pulse/metrics"
)

const (
	// DefaultInterval is the suggested heartbeat collection period.
	DefaultInterval = 3600 * time.Second

	// MinInterval is the shortest practical collection period.
	// Shorter intervals are accepted (tests and debugging rely on
	// them) but logged as a warning in production wiring.
	MinInterval = 900 * time.Second
)

// Driver owns the periodic heartbeat cycle: on every tick it runs the
// serializer and, when the record commits, resets interval-scoped
// values for the next period. Collection failures drop that
// interval's record but keep the values, so the data extends into the
// next attempt.
//
// CollectNow may be called from any goroutine (the tick loop, a
// signal handler, startup wiring); a single lock keeps each
// serialize-then-reset cycle atomic.
type Driver struct {
	serializer *Serializer
	store      *metrics.Store
	clk        clock.Clock
	interval   time.Duration
	logger     *slog.Logger

	mu sync.Mutex
}

// NewDriver creates a driver collecting every interval. Panics on a
// non-positive interval; intervals below MinInterval are allowed but
// warned about.
func NewDriver(serializer *Serializer, store *metrics.Store, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Driver {
	if interval <= 0 {
		panic("heartbeat: non-positive collection interval")
	}
	if interval < MinInterval {
		logger.Warn("heartbeat interval below practical minimum",
			"interval", interval, "minimum", MinInterval)
	}
	return &Driver{
		serializer: serializer,
		store:      store,
		clk:        clk,
		interval:   interval,
		logger:     logger,
	}
}

// Run collects heartbeats until ctx is canceled. Collection errors
// are logged and never stop the loop.
func (d *Driver) Run(ctx context.Context) error {
	ticker := d.clk.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("heartbeat driver running",
		"interval", d.interval,
		"first_event_id", d.serializer.EventID(),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Error already logged; values are retained for the
			// next tick.
			_ = d.CollectNow()
		}
	}
}

// CollectNow runs one collection cycle immediately, as if the
// interval timer had fired. It is the debug trigger and the tick
// handler: serialize, then reset interval-scoped values only if the
// record committed.
func (d *Driver) CollectNow() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	eventID := d.serializer.EventID()
	if err := d.serializer.Serialize(); err != nil {
		d.logger.Warn("heartbeat dropped", "event_id", eventID, "error", err)
		return err
	}
	d.store.Reset()
	d.logger.Debug("heartbeat committed", "event_id", eventID)
	return nil
}

// DebugPrint logs every current metric value. Diagnostics only; it
// carries no wire contract.
func (d *Driver) DebugPrint() {
	for _, entry := range d.store.Snapshot() {
		d.logger.Info("heartbeat metric",
			"name", entry.Definition.Name,
			"type", entry.Definition.Type.String(),
			"value", entry.Value.Int64(),
		)
	}
}

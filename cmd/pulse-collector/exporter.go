// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"github.com/pulselabs/pulse/lib/clock"
	"github.com/pulselabs/pulse/storage"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// recordSink receives drained records. Satisfied by *spool.Writer.
type recordSink interface {
	Append(record []byte) error
}

// runExporter drains committed records into the spool until ctx is
// cancelled, then drains whatever is left. A record stays in the
// storage region until its spool append succeeds, so a full disk
// loses at most what the ring overwrites while the exporter backs
// off.
func runExporter(ctx context.Context, region *storage.RingRegion, sink recordSink, clk clock.Clock, logger *slog.Logger) {
	backoff := initialBackoff
	for {
		select {
		case <-region.Notify():
		case <-ctx.Done():
			drainRegion(region, sink, logger)
			return
		}
		for region.Len() > 0 {
			if err := exportOne(region, sink, logger); err != nil {
				logger.Warn("spool append failed, backing off",
					"error", err, "backoff", backoff, "pending", region.Len())
				select {
				case <-clk.After(backoff):
				case <-ctx.Done():
					drainRegion(region, sink, logger)
					return
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = initialBackoff
		}
	}
}

// exportOne moves the oldest committed record from storage to the
// spool. The record is popped only after the append succeeds. The
// blake3 digest in the log line ties daemon output to spooled frames
// when debugging ingestion problems.
func exportOne(region *storage.RingRegion, sink recordSink, logger *slog.Logger) error {
	record := region.Peek()
	if record == nil {
		return nil
	}
	if err := sink.Append(record); err != nil {
		return err
	}
	region.Pop()
	digest := blake3.Sum256(record)
	logger.Debug("record spooled",
		"bytes", len(record), "digest", hex.EncodeToString(digest[:8]))
	return nil
}

// drainRegion makes a final pass at shutdown. Records that still
// cannot be spooled are abandoned with a log line; the ring has no
// persistence of its own.
func drainRegion(region *storage.RingRegion, sink recordSink, logger *slog.Logger) {
	for region.Len() > 0 {
		if err := exportOne(region, sink, logger); err != nil {
			logger.Error("final drain failed, dropping records",
				"remaining", region.Len(), "error", err)
			return
		}
	}
}

// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics implements the heartbeat metric registry and value
// store.
//
// A [Registry] is built once at startup from a declarative
// [Definition] list; its declaration order is the order metric values
// appear in every heartbeat record, so it is part of the wire
// contract. A [Store] tracks the current 32-bit value per metric and
// supports set, wrapping add, and paired timer start/stop from any
// goroutine. [Store.Snapshot] hands the heartbeat serializer a
// consistent copy of all values, and [Store.Reset] restores interval
// accumulators after a committed heartbeat.
package metrics

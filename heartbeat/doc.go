// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package heartbeat serializes periodic metric snapshots into
// self-describing CBOR records and writes them transactionally into
// bounded storage.
//
// The [Serializer] reads a consistent snapshot from the value store,
// checks that storage can hold the record's worst-case size, and
// streams the encoding through a storage transaction: commit on
// success, rollback on any failure, never a partial record. The
// [Driver] runs the cycle on an injected clock and resets
// interval-scoped values after each committed record. [Record] and
// [DecodeRecord] give the drain tooling a typed view of committed
// bytes.
package heartbeat

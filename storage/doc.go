// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage implements the bounded transactional region that
// holds committed heartbeat records between collection and upload.
//
// A [RingRegion] is created once at boot with a fixed capacity and is
// shared between the heartbeat serializer (writer) and an independent
// drain consumer (reader). Writes go through a single open
// [Transaction] with all-or-nothing semantics: every append checks
// remaining capacity first, and a rollback restores the write cursor
// so previously committed bytes are untouched. The reader never sees
// an uncommitted byte, and the writer never overtakes unread data.
package storage

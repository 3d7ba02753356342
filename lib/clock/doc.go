// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for deterministic tests.
//
// Production code takes a [Clock] and uses it for every time
// operation; tests inject a [FakeClock] and drive it with Advance.
// Nothing outside this package (and the wall-clock safety valves in
// lib/testutil) should reach for the time package directly.
package clock

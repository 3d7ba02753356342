// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"fmt"
)

// Type identifies how a metric's 32-bit value is interpreted and
// encoded. The numeric values are wire protocol constants: the
// backend recovers the type of each array slot from the registry it
// holds, so these must never change.
type Type uint8

const (
	// TypeUnsigned is an unsigned 32-bit gauge (battery level, heap
	// high water mark, bytes sent).
	TypeUnsigned Type = 0

	// TypeSigned is a signed 32-bit gauge (temperature, RSSI).
	TypeSigned Type = 1

	// TypeTimer accumulates elapsed milliseconds across paired
	// TimerStart/TimerStop calls within a heartbeat interval (time a
	// task was running, time spent in a power mode).
	TypeTimer Type = 2
)

// String returns the config-file spelling of the type.
func (t Type) String() string {
	switch t {
	case TypeUnsigned:
		return "unsigned"
	case TypeSigned:
		return "signed"
	case TypeTimer:
		return "timer"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseType parses the config-file spelling of a metric type.
func ParseType(name string) (Type, error) {
	switch name {
	case "unsigned":
		return TypeUnsigned, nil
	case "signed":
		return TypeSigned, nil
	case "timer":
		return TypeTimer, nil
	default:
		return 0, fmt.Errorf("invalid metric type %q (want unsigned, signed, or timer)", name)
	}
}

// Definition declares one metric at registry construction time. The
// name is surfaced to the backend; declaration order is part of the
// wire contract.
type Definition struct {
	// Name is the human-readable metric name. Unique per registry.
	Name string

	// Type fixes the value interpretation for the process lifetime.
	Type Type

	// Preserve keeps the value across committed heartbeats instead of
	// resetting it to zero. Use for end-of-interval gauges whose last
	// known value should carry forward (battery level) rather than
	// interval accumulators (bytes sent). Timers always reset.
	Preserve bool
}

// Key is an opaque handle to one registered metric. The zero Key is
// invalid and fails every store operation with ErrUnknownKey.
type Key struct {
	index int // 1-based registry position; 0 means unregistered
}

// Store and serializer failure modes. All are caller-programming
// errors surfaced as status values; none is fatal.
var (
	// ErrUnknownKey reports a Key that does not name a registered
	// metric (zero value, or a handle from a different registry).
	ErrUnknownKey = errors.New("metrics: unknown key")

	// ErrTypeMismatch reports an operation against a metric of a
	// different registered type. The stored value is unchanged.
	ErrTypeMismatch = errors.New("metrics: type mismatch")

	// ErrTimerRunning reports a TimerStart for a timer that already
	// has a start pending. The second start is not absorbed silently:
	// it usually means two call sites disagree about who owns the
	// timer.
	ErrTimerRunning = errors.New("metrics: timer already running")

	// ErrTimerNotRunning reports a TimerStop without a matching
	// TimerStart.
	ErrTimerNotRunning = errors.New("metrics: timer not running")
)

// Value is the tagged current sample of one metric. Exactly one
// interpretation of the 32-bit payload is valid, selected by the type
// tag; the typed accessors enforce it.
type Value struct {
	typ  Type
	bits uint32
}

// Type returns the value's type tag.
func (v Value) Type() Type { return v.typ }

// Unsigned returns the payload of a TypeUnsigned value.
func (v Value) Unsigned() (uint32, error) {
	if v.typ != TypeUnsigned {
		return 0, fmt.Errorf("reading %s value as unsigned: %w", v.typ, ErrTypeMismatch)
	}
	return v.bits, nil
}

// Signed returns the payload of a TypeSigned value.
func (v Value) Signed() (int32, error) {
	if v.typ != TypeSigned {
		return 0, fmt.Errorf("reading %s value as signed: %w", v.typ, ErrTypeMismatch)
	}
	return int32(v.bits), nil
}

// TimerMillis returns the accumulated milliseconds of a TypeTimer
// value.
func (v Value) TimerMillis() (uint32, error) {
	if v.typ != TypeTimer {
		return 0, fmt.Errorf("reading %s value as timer: %w", v.typ, ErrTypeMismatch)
	}
	return v.bits, nil
}

// Int64 widens the value for display and encoding: unsigned and timer
// payloads zero-extend, signed payloads sign-extend. The minimal-width
// CBOR encoding of the result is identical to encoding the native
// 32-bit value.
func (v Value) Int64() int64 {
	if v.typ == TypeSigned {
		return int64(int32(v.bits))
	}
	return int64(v.bits)
}

// SnapshotEntry is one row of a consistent store snapshot, in registry
// declaration order.
type SnapshotEntry struct {
	Definition Definition
	Value      Value
}

// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"fmt"
	"sync"
)

// Storage failure modes.
var (
	// ErrNoSpace reports that the region cannot hold the requested
	// bytes without overtaking unread data. Expected and recoverable:
	// the writer drops the record and retries after the reader drains.
	ErrNoSpace = errors.New("storage: no space")

	// ErrBusy reports a BeginWrite while another transaction is open.
	// A programming error in the caller, surfaced rather than fatal.
	ErrBusy = errors.New("storage: transaction already open")
)

// RingRegion is a fixed-capacity circular byte region holding
// committed heartbeat records. The writer side stages bytes through a
// single open Transaction; nothing becomes visible to the reader until
// the transaction commits, and a rollback restores the write cursor
// exactly, so the reader is never exposed to a partial record.
//
// The reader side (Peek/Pop) is owned by the external drain consumer
// and runs concurrently with writer transactions. The writer never
// advances past unread data; it reports ErrNoSpace instead.
//
// Record boundaries are tracked in a length queue beside the ring
// bytes rather than as in-band framing, keeping the stored bytes
// exactly the committed record bytes.
//
// All methods are safe for concurrent use.
type RingRegion struct {
	mu       sync.Mutex
	data     []byte
	capacity int

	// readPosition is the ring offset of the oldest unread byte.
	readPosition int
	// used counts committed, not yet drained bytes.
	used int
	// recordLengths queues the byte length of each committed record,
	// oldest first.
	recordLengths []int

	// staged counts bytes appended by the open transaction. The write
	// position is derived: (readPosition + used + staged) % capacity.
	staged      int
	open        bool
	notify      chan struct{}
}

// NewRingRegion creates a region with the given byte capacity. The
// capacity is fixed for the life of the region. A zero capacity is
// legal (every write fails with ErrNoSpace); a negative one is not.
func NewRingRegion(capacity int) *RingRegion {
	if capacity < 0 {
		panic(fmt.Sprintf("storage: negative capacity %d", capacity))
	}
	return &RingRegion{
		data:     make([]byte, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Capacity returns the fixed byte capacity of the region.
func (r *RingRegion) Capacity() int { return r.capacity }

// Available returns the bytes a new transaction could append before
// hitting ErrNoSpace, accounting for committed unread data and any
// bytes staged by an open transaction.
func (r *RingRegion) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capacity - r.used - r.staged
}

// BytesUsed returns the committed, not yet drained byte count.
func (r *RingRegion) BytesUsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

// Len returns the number of committed records awaiting drain.
func (r *RingRegion) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recordLengths)
}

// BeginWrite opens a transaction. Exactly one transaction may be open
// at a time; a second BeginWrite fails with ErrBusy. The transaction
// must be terminated by exactly one Finish call on every path.
func (r *RingRegion) BeginWrite() (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open {
		return nil, ErrBusy
	}
	r.open = true
	r.staged = 0
	return &Transaction{region: r}, nil
}

// Peek returns the oldest committed record without consuming it, or
// nil if none is pending. The returned slice is a copy.
func (r *RingRegion) Peek() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.recordLengths) == 0 {
		return nil
	}
	return r.copyOut(r.readPosition, r.recordLengths[0])
}

// Pop consumes the oldest committed record, freeing its bytes for the
// writer. No-op if nothing is pending.
func (r *RingRegion) Pop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.recordLengths) == 0 {
		return
	}
	length := r.recordLengths[0]
	r.recordLengths = r.recordLengths[1:]
	r.readPosition = (r.readPosition + length) % r.max(1)
	r.used -= length
}

// Notify returns a channel that receives a signal (at most once per
// commit) when a new record is available. The drain consumer selects
// on it alongside its context.
func (r *RingRegion) Notify() <-chan struct{} {
	return r.notify
}

// Snapshot returns a copy of all committed record bytes in commit
// order. Tests use it to assert that failed writes leave the region
// byte-identical.
func (r *RingRegion) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyOut(r.readPosition, r.used)
}

// copyOut copies length ring bytes starting at ring offset from.
// Caller holds mu.
func (r *RingRegion) copyOut(from, length int) []byte {
	out := make([]byte, length)
	position := from
	for copied := 0; copied < length; {
		chunk := length - copied
		if available := r.capacity - position; chunk > available {
			chunk = available
		}
		copy(out[copied:copied+chunk], r.data[position:position+chunk])
		position = (position + chunk) % r.capacity
		copied += chunk
	}
	return out
}

// max guards the modulus for the degenerate zero-capacity region,
// where no byte is ever stored and the cursors stay at zero.
func (r *RingRegion) max(floor int) int {
	if r.capacity < floor {
		return floor
	}
	return r.capacity
}

// Transaction is an in-progress bounded write into a RingRegion. It
// lives for the duration of one serialize call and is finished by
// exactly one Finish, on success or failure.
type Transaction struct {
	region   *RingRegion
	failed   bool
	finished bool
}

// Append stages bytes into the region. Capacity is checked before any
// byte is written: on ErrNoSpace nothing is staged, the transaction is
// marked failed, and the caller must still terminate it with
// Finish(rollback=true).
func (t *Transaction) Append(data []byte) error {
	r := t.region
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.finished {
		return fmt.Errorf("storage: append on finished transaction")
	}
	if len(data) > r.capacity-r.used-r.staged {
		t.failed = true
		return fmt.Errorf("appending %d bytes with %d free: %w",
			len(data), r.capacity-r.used-r.staged, ErrNoSpace)
	}

	writePosition := (r.readPosition + r.used + r.staged) % r.max(1)
	for offset := 0; offset < len(data); {
		chunk := len(data) - offset
		if available := r.capacity - writePosition; chunk > available {
			chunk = available
		}
		copy(r.data[writePosition:writePosition+chunk], data[offset:offset+chunk])
		writePosition = (writePosition + chunk) % r.capacity
		offset += chunk
	}
	r.staged += len(data)
	return nil
}

// Available returns the bytes this transaction can still append.
func (t *Transaction) Available() int {
	t.region.mu.Lock()
	defer t.region.mu.Unlock()
	return t.region.capacity - t.region.used - t.region.staged
}

// BytesStaged returns the bytes appended so far.
func (t *Transaction) BytesStaged() int {
	t.region.mu.Lock()
	defer t.region.mu.Unlock()
	return t.region.staged
}

// Failed reports whether a prior Append hit ErrNoSpace.
func (t *Transaction) Failed() bool {
	t.region.mu.Lock()
	defer t.region.mu.Unlock()
	return t.failed
}

// Finish terminates the transaction. With rollback true (explicit, or
// forced because an Append failed) the write cursor returns to its
// BeginWrite position and nothing becomes visible to the reader. With
// rollback false all staged bytes are published atomically as one
// record. Finishing an already finished transaction is a no-op.
func (t *Transaction) Finish(rollback bool) {
	r := t.region
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.finished {
		return
	}
	t.finished = true
	r.open = false

	if rollback || t.failed || r.staged == 0 {
		// Staged bytes are simply abandoned; the derived write cursor
		// falls back to the committed frontier.
		r.staged = 0
		return
	}

	r.recordLengths = append(r.recordLengths, r.staged)
	r.used += r.staged
	r.staged = 0

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

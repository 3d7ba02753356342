// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package heartbeat

import (
	"fmt"
	"sync"

	"github.com/pulselabs/pulse/lib/codec"
	"github.com/pulselabs/pulse/metrics"
	"github.com/pulselabs/pulse/storage"
)

// maxEncodedValueSize is the largest CBOR encoding of a 32-bit metric
// value: one initial byte plus four payload bytes.
const maxEncodedValueSize = 5

// Serializer turns a consistent store snapshot into one committed
// heartbeat record per collection. Safe for concurrent use: the
// sequence counter and the serialize cycle share one lock, so two
// callers can never emit records under the same event id.
type Serializer struct {
	store  *metrics.Store
	region *storage.RingRegion
	info   DeviceInfo

	mu       sync.Mutex
	sequence uint32
}

// NewSerializer creates a serializer writing into region, stamping
// records with the given device identity. firstSequence seeds the
// monotonically increasing event sequence counter; it advances only
// on commit, so a dropped heartbeat retries under the same event id.
func NewSerializer(store *metrics.Store, region *storage.RingRegion, info DeviceInfo, firstSequence uint32) *Serializer {
	return &Serializer{
		store:    store,
		region:   region,
		info:     info,
		sequence: firstSequence,
	}
}

// Sequence returns the sequence number the next record will carry.
func (s *Serializer) Sequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// EventID returns the event id text the next record will carry.
func (s *Serializer) EventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventID()
}

// eventID formats the next event id. Caller holds mu.
func (s *Serializer) eventID() string {
	return fmt.Sprintf("evt_%d", s.sequence)
}

// WorstCaseSize returns the maximum number of bytes the next record
// can occupy: the envelope at its exact encoded size plus the maximum
// 32-bit integer encoding for every registered metric. Deterministic
// for a fixed registry, identity, and sequence number, and always an
// upper bound on the actual encoding, so callers can use it to decide
// whether to force a drain before storage fills.
func (s *Serializer) WorstCaseSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worstCaseSize()
}

// worstCaseSize computes WorstCaseSize. Caller holds mu.
func (s *Serializer) worstCaseSize() int {
	size := 0
	for _, item := range s.envelopeItems(s.store.Registry().Len()) {
		size += len(item)
	}
	return size + maxEncodedValueSize*s.store.Registry().Len()
}

// Serialize collects one heartbeat: it snapshots the store, opens a
// storage transaction, and streams the encoded record through it.
// The write is all-or-nothing: on any failure the transaction rolls
// back and previously committed storage bytes are untouched.
//
// A transaction is refused outright unless WorstCaseSize() bytes are
// available, so a region too small for the worst case always yields a
// clean rollback rather than depending on where the encoding happens
// to land. Failures (storage.ErrNoSpace, storage.ErrBusy) are
// recoverable: the caller keeps the interval's values and retries at
// the next interval.
func (s *Serializer) Serialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.store.Snapshot()

	tx, err := s.region.BeginWrite()
	if err != nil {
		return fmt.Errorf("beginning heartbeat write: %w", err)
	}
	if available, worst := tx.Available(), s.worstCaseSize(); available < worst {
		tx.Finish(true)
		return fmt.Errorf("worst-case record size %d with %d free: %w",
			worst, available, storage.ErrNoSpace)
	}
	if err := s.encodeRecord(tx, snapshot); err != nil {
		tx.Finish(true)
		return err
	}
	tx.Finish(false)
	s.sequence++
	return nil
}

// encodeRecord streams the record one CBOR item per append. Each
// append checks capacity before writing, so encoding stops at the
// first item that does not fit and the caller rolls back.
func (s *Serializer) encodeRecord(tx *storage.Transaction, snapshot []metrics.SnapshotEntry) error {
	for _, item := range s.envelopeItems(len(snapshot)) {
		if err := tx.Append(item); err != nil {
			return fmt.Errorf("encoding heartbeat envelope: %w", err)
		}
	}
	for _, entry := range snapshot {
		if err := tx.Append(encode(entry.Value.Int64())); err != nil {
			return fmt.Errorf("encoding metric %q: %w", entry.Definition.Name, err)
		}
	}
	return nil
}

// envelopeItems returns every encoded item of the record up to and
// including the metric array header, in wire order. The field order
// is fixed by the protocol, not sorted: decoders index by key, and
// the golden-byte contract with the backend pins this exact layout.
func (s *Serializer) envelopeItems(metricCount int) [][]byte {
	return [][]byte{
		codec.MapHeader(7),
		encode(fieldSchemaVersion), encode(schemaVersion),
		encode(fieldEventType), encode(eventTypeHeartbeat),
		encode(fieldDeviceSerial), encode(s.info.DeviceSerial),
		encode(fieldHardwareVersion), encode(s.info.HardwareVersion),
		encode(fieldSoftwareVersion), encode(s.info.SoftwareVersion),
		encode(fieldEventID), encode(s.eventID()),
		encode(fieldEventInfo), codec.MapHeader(1),
		encode(infoFieldMetricValues), codec.ArrayHeader(metricCount),
	}
}

// encode marshals a scalar record item. Integers and strings cannot
// fail to encode; a failure here means the codec configuration is
// broken, which is unrecoverable.
func encode(v any) []byte {
	data, err := codec.Marshal(v)
	if err != nil {
		panic("heartbeat: record item encoding failed: " + err.Error())
	}
	return data
}

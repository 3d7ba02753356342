// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package heartbeat

import (
	"fmt"

	"github.com/pulselabs/pulse/lib/codec"
)

// Wire field codes for the heartbeat record envelope. A record is a
// single CBOR map with small-integer keys so the backend can recover
// field identity from the bytes alone. These values are protocol
// constants shared with the ingestion pipeline; changing them breaks
// every deployed decoder.
const (
	fieldSchemaVersion   = 2
	fieldEventType       = 3
	fieldEventInfo       = 4
	fieldEventID         = 6
	fieldDeviceSerial    = 7
	fieldSoftwareVersion = 9
	fieldHardwareVersion = 10

	// infoFieldMetricValues keys the metric value array inside the
	// nested event info map (field 4).
	infoFieldMetricValues = 1

	// schemaVersion is the record schema revision (field 2).
	schemaVersion = 1

	// eventTypeHeartbeat tags the record as a heartbeat (field 3).
	eventTypeHeartbeat = 1
)

// DeviceInfo carries the identity strings stamped into every record.
// They are supplied by platform glue at construction time; this core
// does not compute them.
type DeviceInfo struct {
	// DeviceSerial uniquely identifies the device to the backend.
	DeviceSerial string

	// HardwareVersion names the board revision.
	HardwareVersion string

	// SoftwareVersion names the firmware build.
	SoftwareVersion string
}

// Record is a decoded heartbeat record. The serializer never builds
// one (it streams bytes straight into storage); Record exists for the
// drain tooling and for tests that assert on committed bytes.
type Record struct {
	SchemaVersion   uint64     `cbor:"2,keyasint"`
	EventType       uint64     `cbor:"3,keyasint"`
	Info            RecordInfo `cbor:"4,keyasint"`
	EventID         string     `cbor:"6,keyasint"`
	DeviceSerial    string     `cbor:"7,keyasint"`
	SoftwareVersion string     `cbor:"9,keyasint"`
	HardwareVersion string     `cbor:"10,keyasint"`
}

// RecordInfo is the nested event info map (field 4).
type RecordInfo struct {
	// MetricValues holds one value per registered metric, in registry
	// declaration order. Signed values decode sign-extended; the
	// registry held by the backend maps each slot back to its name
	// and type.
	MetricValues []int64 `cbor:"1,keyasint"`
}

// DecodeRecord parses one committed heartbeat record.
func DecodeRecord(data []byte) (Record, error) {
	var record Record
	if err := codec.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("decoding heartbeat record: %w", err)
	}
	if record.SchemaVersion != schemaVersion {
		return Record{}, fmt.Errorf("unsupported record schema version %d", record.SchemaVersion)
	}
	if record.EventType != eventTypeHeartbeat {
		return Record{}, fmt.Errorf("record is not a heartbeat (event type %d)", record.EventType)
	}
	return record, nil
}

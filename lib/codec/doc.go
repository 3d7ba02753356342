// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Pulse's standard CBOR encoding configuration.
//
// All wire data uses Core Deterministic Encoding (RFC 8949 §4.2) so
// that the same logical record always produces identical bytes. The
// decoder accepts standard CBOR and ignores unknown fields for forward
// compatibility.
//
// [MapHeader] and [ArrayHeader] expose raw definite-length headers for
// the heartbeat serializer, which encodes records item by item through
// a bounded transactional writer instead of marshaling a whole value.
package codec

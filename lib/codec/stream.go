// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package codec

// Raw header emission for incremental record encoding. A serializer
// that streams a record item by item through a bounded transactional
// writer needs to emit map and array headers before it has encoded
// the contents. RFC 8949 encodes a definite-length header exactly
// like an unsigned integer of the element count with the major type
// bits replaced, so the headers below are derived from the encoder's
// own minimal-width integer encoding and stay byte-compatible with
// whole-value Marshal output.

const (
	majorTypeArray = 0x80
	majorTypeMap   = 0xa0
)

// MapHeader returns the encoded header of a definite-length CBOR map
// with n key/value pairs.
func MapHeader(n int) []byte {
	return header(majorTypeMap, n)
}

// ArrayHeader returns the encoded header of a definite-length CBOR
// array with n elements.
func ArrayHeader(n int) []byte {
	return header(majorTypeArray, n)
}

func header(majorType byte, n int) []byte {
	if n < 0 {
		panic("codec: negative element count")
	}
	encoded, err := Marshal(uint64(n))
	if err != nil {
		// Marshal of a uint64 cannot fail.
		panic("codec: header encoding failed: " + err.Error())
	}
	encoded[0] |= majorType
	return encoded
}

// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package spool implements the on-disk upload spool format: a
// sequence of frames, each a 4-byte big-endian length followed by a
// zstd frame containing exactly one heartbeat record.
//
// Records are compressed individually so the uploader can ship and
// truncate the spool frame by frame, and a torn final frame (power
// loss mid-append) never corrupts the records before it.
package spool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// maxFrameSize bounds a single compressed frame. Heartbeat records
// are tens of bytes; anything near this limit means the file is not a
// spool.
const maxFrameSize = 1 << 20

// Writer appends compressed record frames to an underlying writer.
// Not safe for concurrent use.
type Writer struct {
	out     io.Writer
	encoder *zstd.Encoder
}

// NewWriter creates a spool writer. Level 3 zstd: heartbeat records
// are small structured binary and compress well without measurable
// CPU cost at one record per interval.
func NewWriter(out io.Writer) (*Writer, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &Writer{out: out, encoder: encoder}, nil
}

// headerSize is the byte width of the length prefix.
const headerSize = 4

// Append writes one record as a length-prefixed zstd frame. The
// prefix and the frame go out in a single Write, so a failed append
// that is retried never leaves a dangling header in front of the
// retry's frame.
func (w *Writer) Append(record []byte) error {
	if len(record) == 0 {
		return errors.New("spool: refusing to append empty record")
	}
	buf := w.encoder.EncodeAll(record, make([]byte, headerSize, headerSize+len(record)))
	binary.BigEndian.PutUint32(buf[:headerSize], uint32(len(buf)-headerSize))
	if _, err := w.out.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Close releases the encoder. It does not close the underlying
// writer.
func (w *Writer) Close() error {
	return w.encoder.Close()
}

// Reader iterates the record frames of a spool. Not safe for
// concurrent use.
type Reader struct {
	in      io.Reader
	decoder *zstd.Decoder
}

// NewReader creates a spool reader.
func NewReader(in io.Reader) (*Reader, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Reader{in: in, decoder: decoder}, nil
}

// Next returns the next decompressed record. io.EOF signals a clean
// end of spool; a frame cut off mid-write is reported as
// io.ErrUnexpectedEOF.
func (r *Reader) Next() ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r.in, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > maxFrameSize {
		return nil, fmt.Errorf("implausible frame length %d: not a spool file", length)
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(r.in, frame); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated frame: %w", io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	record, err := r.decoder.DecodeAll(frame, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing frame: %w", err)
	}
	return record, nil
}

// Close releases the decoder. It does not close the underlying
// reader.
func (r *Reader) Close() {
	r.decoder.Close()
}

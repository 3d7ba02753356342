// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Pulse-decode inspects heartbeat records offline. It reads a spool
// file written by pulse-collector (or raw concatenated CBOR with
// --raw) and prints each record in CBOR diagnostic notation, or as
// JSON with --json.
//
//	pulse-decode /var/lib/pulse/spool
//	pulse-decode --json /var/lib/pulse/spool
//	pulse-decode --raw --json - < records.cbor
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/pulselabs/pulse/heartbeat"
	"github.com/pulselabs/pulse/lib/codec"
	"github.com/pulselabs/pulse/lib/spool"
	"github.com/pulselabs/pulse/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pulse-decode:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		asJSON      = pflag.Bool("json", false, "print records as JSON instead of CBOR diagnostic notation")
		rawInput    = pflag.Bool("raw", false, "input is concatenated raw CBOR records, not a spool file")
		showVersion = pflag.Bool("version", false, "print version and exit")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Println("pulse-decode", version.Info())
		return nil
	}

	if pflag.NArg() != 1 {
		return errors.New("usage: pulse-decode [--json] [--raw] <spool-file | ->")
	}

	in, err := openInput(pflag.Arg(0))
	if err != nil {
		return err
	}
	defer in.Close()

	emitOne := emitDiagnostic
	if *asJSON {
		emitOne = emitJSON
	}
	emit := func(record []byte) error { return emitOne(os.Stdout, record) }

	if *rawInput {
		return decodeRaw(in, emit)
	}
	return decodeSpool(in, emit)
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	return file, nil
}

// decodeSpool walks the spool frame by frame. A torn final frame ends
// the walk with an error after every intact record has been printed.
func decodeSpool(in io.Reader, emit func(record []byte) error) error {
	reader, err := spool.NewReader(in)
	if err != nil {
		return err
	}
	defer reader.Close()
	for index := 0; ; index++ {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", index, err)
		}
		if err := emit(record); err != nil {
			return fmt.Errorf("record %d: %w", index, err)
		}
	}
}

// decodeRaw splits concatenated CBOR items on their encoded
// boundaries and emits each one.
func decodeRaw(in io.Reader, emit func(record []byte) error) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	for index := 0; len(data) > 0; index++ {
		_, rest, err := codec.DiagnoseFirst(data)
		if err != nil {
			return fmt.Errorf("record %d: %w", index, err)
		}
		record := data[:len(data)-len(rest)]
		if err := emit(record); err != nil {
			return fmt.Errorf("record %d: %w", index, err)
		}
		data = rest
	}
	return nil
}

func emitDiagnostic(out io.Writer, record []byte) error {
	diag, err := codec.Diagnose(record)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, diag)
	return err
}

// recordJSON is the CLI's JSON shape for one record. Wire field codes
// are replaced with names; metric values stay positional because only
// the backend registry can name them.
type recordJSON struct {
	EventID         string  `json:"event_id"`
	DeviceSerial    string  `json:"device_serial"`
	HardwareVersion string  `json:"hardware_version"`
	SoftwareVersion string  `json:"software_version"`
	MetricValues    []int64 `json:"metric_values"`
}

func emitJSON(out io.Writer, record []byte) error {
	decoded, err := heartbeat.DecodeRecord(record)
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(recordJSON{
		EventID:         decoded.EventID,
		DeviceSerial:    decoded.DeviceSerial,
		HardwareVersion: decoded.HardwareVersion,
		SoftwareVersion: decoded.SoftwareVersion,
		MetricValues:    decoded.Info.MetricValues,
	})
}

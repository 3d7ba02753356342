// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Pulse-collector is the on-device heartbeat daemon. It builds the
// metric registry from the config file, samples its own runtime
// health, serializes a heartbeat record once per interval, and drains
// committed records into a local upload spool.
//
// Configuration comes from the file named by --config or the
// PULSE_CONFIG environment variable; see lib/config for the schema.
//
// Signals:
//
//	SIGINT, SIGTERM  drain the storage region and exit
//	SIGUSR1          collect a heartbeat immediately
//	SIGUSR2          log every current metric value
package main

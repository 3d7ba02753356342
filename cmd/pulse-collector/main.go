// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/pulselabs/pulse/heartbeat"
	"github.com/pulselabs/pulse/lib/clock"
	"github.com/pulselabs/pulse/lib/config"
	"github.com/pulselabs/pulse/lib/spool"
	"github.com/pulselabs/pulse/lib/version"
	"github.com/pulselabs/pulse/metrics"
	"github.com/pulselabs/pulse/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pulse-collector:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath     = pflag.String("config", "", "config file path (overrides PULSE_CONFIG)")
		samplePeriod   = pflag.Duration("sample-period", 10*time.Second, "runtime metric sampling period")
		collectOnStart = pflag.Bool("collect-on-start", false, "collect one heartbeat immediately at startup")
		verbose        = pflag.BoolP("verbose", "v", false, "enable debug logging")
		showVersion    = pflag.Bool("version", false, "print version and exit")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Println("pulse-collector", version.Info())
		return nil
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	definitions, err := cfg.MetricDefinitions()
	if err != nil {
		return err
	}
	registry, err := metrics.NewRegistry(definitions)
	if err != nil {
		return err
	}

	clk := clock.Real()
	store := metrics.NewStore(registry, clk)
	region := storage.NewRingRegion(cfg.Heartbeat.StorageBytes)

	softwareVersion := cfg.Device.SoftwareVersion
	if softwareVersion == "" {
		softwareVersion = version.Short()
	}
	serializer := heartbeat.NewSerializer(store, region, heartbeat.DeviceInfo{
		DeviceSerial:    cfg.Device.Serial,
		HardwareVersion: cfg.Device.HardwareVersion,
		SoftwareVersion: softwareVersion,
	}, cfg.Heartbeat.FirstSequence)

	if worst := serializer.WorstCaseSize(); worst > region.Capacity() {
		return fmt.Errorf("heartbeat.storage_bytes is %d but one worst-case record needs %d",
			region.Capacity(), worst)
	}

	driver := heartbeat.NewDriver(serializer, store, clk, cfg.Interval(), logger)

	spoolFile, err := os.OpenFile(cfg.Export.SpoolPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening spool: %w", err)
	}
	defer spoolFile.Close()
	writer, err := spool.NewWriter(spoolFile)
	if err != nil {
		return err
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exporterDone := make(chan struct{})
	go func() {
		defer close(exporterDone)
		runExporter(ctx, region, writer, clk, logger)
	}()

	if *samplePeriod > 0 {
		health := newSampler(store, logger)
		go health.run(ctx, clk, *samplePeriod)
	}

	go handleControlSignals(ctx, driver, logger)

	driverDone := make(chan error, 1)
	go func() { driverDone <- driver.Run(ctx) }()

	logger.Info("pulse collector running",
		"device", cfg.Device.Serial,
		"metrics", registry.Len(),
		"interval", cfg.Interval(),
		"storage_bytes", region.Capacity(),
		"spool", cfg.Export.SpoolPath,
		"version", version.Short())

	if *collectOnStart {
		if err := driver.CollectNow(); err != nil {
			logger.Warn("startup heartbeat failed", "error", err)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down, draining storage")
	<-driverDone
	<-exporterDone
	logger.Info("pulse collector stopped", "next_event", serializer.EventID())
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// handleControlSignals services the on-demand debug hooks: SIGUSR1
// collects a heartbeat out of cycle, SIGUSR2 logs the current value
// of every metric.
func handleControlSignals(ctx context.Context, driver *heartbeat.Driver, logger *slog.Logger) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(signals)
	for {
		select {
		case sig := <-signals:
			switch sig {
			case syscall.SIGUSR1:
				logger.Info("heartbeat requested by signal")
				if err := driver.CollectNow(); err != nil {
					logger.Warn("requested heartbeat failed", "error", err)
				}
			case syscall.SIGUSR2:
				driver.DebugPrint()
			}
		case <-ctx.Done():
			return
		}
	}
}

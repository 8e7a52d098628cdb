// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/app"
	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/logging"
)

func main() {
	opts := app.DefaultSimOptions()

	configPath := flag.String("config", "", "KEY=VALUE configuration file (defaults when empty)")
	sink := flag.String("sink", "", "override TELEMETRY_SINK: firebase, mqtt, both or none")
	threshold := flag.Float64("threshold", -1.5, "COMPRESSION_THRESHOLD for the synthetic waveform, m/s²")
	flag.Float64Var(&opts.Rate, "rate", opts.Rate, "compressions per minute")
	flag.Float64Var(&opts.DepthCm, "depth", opts.DepthCm, "compression depth in cm")
	flag.IntVar(&opts.Cycles, "cycles", opts.Cycles, "compressions per burst")
	flag.DurationVar(&opts.Pause, "pause", opts.Pause, "rest between bursts")
	flag.DurationVar(&opts.SOSAfter, "sos-after", opts.SOSAfter, "first SOS gesture (0 disables)")
	flag.DurationVar(&opts.SOSEvery, "sos-every", opts.SOSEvery, "interval between SOS gestures")
	flag.IntVar(&opts.SOSCount, "sos-count", opts.SOSCount, "number of SOS gestures")
	flag.Parse()

	cfg, err := config.LoadOptional(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// the synthetic burst peaks near 3 m/s², well inside the device threshold
	cfg.CompressionThreshold = *threshold
	if *sink != "" {
		cfg.TelemetrySink = *sink
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "cpr-simulator")
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunSimulator(ctx, cfg, opts, logger); err != nil {
		logger.Fatal("simulator stopped", zap.Error(err))
	}
}

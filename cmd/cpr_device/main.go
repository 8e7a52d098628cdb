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
	configPath := flag.String("config", "cpr_config.txt", "KEY=VALUE configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "cpr-device")
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunDevice(ctx, cfg, logger); err != nil {
		logger.Fatal("device stopped", zap.Error(err))
	}
}

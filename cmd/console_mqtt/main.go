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
	configPath := flag.String("config", "", "KEY=VALUE configuration file (defaults when empty)")
	broker := flag.String("broker", "", "override MQTT_BROKER, e.g. tcp://localhost:1883")
	flag.Parse()

	cfg, err := config.LoadOptional(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *broker != "" {
		cfg.MQTTBroker = *broker
	}
	if cfg.MQTTBroker == "" {
		cfg.MQTTBroker = "tcp://localhost:1883"
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "cpr-console")
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunConsoleMQTT(ctx, cfg, logger); err != nil {
		logger.Fatal("console stopped", zap.Error(err))
	}
}

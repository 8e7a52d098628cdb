// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/actuator"
	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/display"
	"github.com/relabs-tech/cpr_assist/internal/sensors"
)

// RunDevice drives the real kit: MPU6050, APDS9960, BMP180/SI7021, the servo
// and the SSD1306, all on I2C_BUS. Only the motion sensor is required; every
// other part degrades to a warning.
func RunDevice(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting CPR assist device", zap.String("device_id", cfg.DeviceID))

	bus, err := sensors.OpenBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	motion, err := sensors.NewMPU6050(bus, cfg.MPU6050Addr, log)
	if err != nil {
		return fmt.Errorf("motion sensor: %w", err)
	}

	var gestures sensors.GestureSource
	if apds, err := sensors.NewAPDS9960(bus, cfg.APDS9960Addr, log); err != nil {
		log.Error("gesture sensor unavailable, SOS gesture disabled", zap.Error(err))
	} else {
		gestures = apds
	}

	environment := sensors.EnvPair{Hygro: sensors.NewSI7021(bus, cfg.SI7021Addr), Log: log}
	if baro, err := sensors.NewBMP180(bus, cfg.BMP180Addr); err != nil {
		log.Warn("barometer unavailable", zap.Error(err))
	} else {
		environment.Baro = baro
	}

	var stepper actuator.Stepper
	servo, err := actuator.NewServo(cfg)
	if err != nil {
		log.Error("servo unavailable, feedback sequence is logged only", zap.Error(err))
		stepper = actuator.NewLogStepper(log)
	} else {
		stepper = servo
		defer func() {
			if err := servo.Halt(); err != nil {
				log.Warn("servo halt", zap.Error(err))
			}
		}()
	}

	var oled *display.OLED
	if cfg.DisplayEnabled {
		if oled, err = display.NewOLED(bus, log); err != nil {
			log.Warn("display unavailable", zap.Error(err))
		}
	}

	sampler := sensors.NewSampler(cfg, motion, gestures, environment, log)
	rt, err := newRuntime(cfg, sampler, stepper, oled, log)
	if err != nil {
		return err
	}
	return rt.run(ctx, cfg, log)
}

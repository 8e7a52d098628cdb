// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors reads the motion, gesture and environment sensors. It is
// the only package that touches sensor hardware.
package sensors

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/env"
	"github.com/relabs-tech/cpr_assist/internal/gesture"
	"github.com/relabs-tech/cpr_assist/internal/imu"
)

// ErrSensorRead wraps every failed sensor transaction.
var ErrSensorRead = errors.New("sensor read failed")

// MotionSource reads the accelerometer and, when fitted, the gyroscope.
type MotionSource interface {
	ReadAccelGyro() (imu.Reading, error)
}

// GestureSource reads the gesture engine. It returns gesture.None when no
// gesture completed since the last call.
type GestureSource interface {
	ReadGesture() (gesture.Code, int, error)
}

// EnvSource reads temperature, humidity and pressure.
type EnvSource interface {
	ReadEnv() (env.Sample, error)
}

func readError(sensor string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSensorRead, sensor, err)
}

// OpenBus initialises the periph host and opens I2C_BUS ("" picks the first bus).
func OpenBus(cfg *config.Config) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", cfg.I2CBus, err)
	}
	return bus, nil
}

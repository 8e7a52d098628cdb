// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"

	"github.com/relabs-tech/cpr_assist/internal/env"
)

const seaLevelHPa = 1013.25

// BMP180 is the barometer. periph's bmxx80 driver handles the BMP180
// calibration table.
type BMP180 struct {
	dev *bmxx80.Dev
}

// NewBMP180 opens the barometer at addr.
func NewBMP180(bus i2c.Bus, addr uint16) (*BMP180, error) {
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.Opts{
		Temperature: bmxx80.O1x,
		Pressure:    bmxx80.O4x,
	})
	if err != nil {
		return nil, fmt.Errorf("BMP180 at 0x%02X: %w", addr, err)
	}
	return &BMP180{dev: dev}, nil
}

// ReadEnv implements EnvSource.
func (b *BMP180) ReadEnv() (env.Sample, error) {
	var e physic.Env
	if err := b.dev.Sense(&e); err != nil {
		return env.Sample{}, readError("BMP180", err)
	}

	pressureHPa := float64(e.Pressure) / float64(physic.Pascal) / 100.0 // 1 hPa = 100 Pa
	return env.Sample{
		Temperature: e.Temperature.Celsius(),
		Pressure:    pressureHPa,
		Altitude:    altitude(pressureHPa),
		HasPressure: true,
	}, nil
}

// altitude in metres from the international barometric formula.
func altitude(pressureHPa float64) float64 {
	if pressureHPa <= 0 {
		return 0
	}
	return 44330.0 * (1.0 - math.Pow(pressureHPa/seaLevelHPa, 1/5.255))
}

// SI7021 commands, hold master mode
const (
	si7021MeasureRH   = 0xE5
	si7021MeasureTemp = 0xE3
)

// SI7021 is the hygrometer.
type SI7021 struct {
	dev *i2c.Dev
}

func NewSI7021(bus i2c.Bus, addr uint16) *SI7021 {
	return &SI7021{dev: &i2c.Dev{Bus: bus, Addr: addr}}
}

// ReadEnv implements EnvSource.
func (s *SI7021) ReadEnv() (env.Sample, error) {
	var buf [2]byte
	if err := s.dev.Tx([]byte{si7021MeasureRH}, buf[:]); err != nil {
		return env.Sample{}, readError("SI7021 humidity", err)
	}
	rh := humidityFromCode(binary.BigEndian.Uint16(buf[:]))

	if err := s.dev.Tx([]byte{si7021MeasureTemp}, buf[:]); err != nil {
		return env.Sample{}, readError("SI7021 temperature", err)
	}
	return env.Sample{
		Temperature: temperatureFromCode(binary.BigEndian.Uint16(buf[:])),
		Humidity:    rh,
		HasHumidity: true,
	}, nil
}

func humidityFromCode(code uint16) float64 {
	rh := 125.0*float64(code)/65536.0 - 6.0
	return math.Max(0, math.Min(100, rh))
}

func temperatureFromCode(code uint16) float64 {
	return 175.72*float64(code)/65536.0 - 46.85
}

// EnvPair merges the barometer and the hygrometer. Either may be nil; a
// read fails only when every fitted sensor fails. Temperature comes from
// the hygrometer when both answer.
type EnvPair struct {
	Baro  EnvSource
	Hygro EnvSource
	Log   *zap.Logger
}

// ReadEnv implements EnvSource.
func (p EnvPair) ReadEnv() (env.Sample, error) {
	var out env.Sample
	var errs []error

	if p.Baro != nil {
		if b, err := p.Baro.ReadEnv(); err != nil {
			errs = append(errs, err)
		} else {
			out = b
		}
	}
	if p.Hygro != nil {
		if h, err := p.Hygro.ReadEnv(); err != nil {
			errs = append(errs, err)
		} else {
			out.Temperature = h.Temperature
			out.Humidity = h.Humidity
			out.HasHumidity = true
		}
	}

	if !out.HasPressure && !out.HasHumidity {
		if len(errs) == 0 {
			return env.Sample{}, readError("environment", errors.New("no sensor fitted"))
		}
		return env.Sample{}, errors.Join(errs...)
	}
	if len(errs) > 0 && p.Log != nil {
		p.Log.Debug("partial environment read", zap.Error(errors.Join(errs...)))
	}
	return out, nil
}

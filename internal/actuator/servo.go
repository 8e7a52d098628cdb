// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/cpr_assist/internal/config"
)

const (
	servoFrequency = 50 * physic.Hertz
	servoPeriod    = 20 * time.Millisecond
)

// Servo is a hobby servo on a PWM-capable GPIO. A positional servo cannot
// spin freely, so the accumulated angle is folded into a sweep over its
// 0-180° travel: each full rotation of the sequence is one sweep out and back.
type Servo struct {
	pin      gpio.PinOut
	minPulse time.Duration
	maxPulse time.Duration
	angle    float64
}

// NewServo opens the servo pin named by SERVO_PIN ("13" or "GPIO13") and
// parks it at 0°.
func NewServo(cfg *config.Config) (*Servo, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("servo: periph host init: %w", err)
	}

	name := strconv.Itoa(cfg.ServoPin)
	pin := gpioreg.ByName(name)
	if pin == nil {
		name = "GPIO" + name
		pin = gpioreg.ByName(name)
	}
	if pin == nil {
		return nil, fmt.Errorf("servo: pin %d not found", cfg.ServoPin)
	}

	s := newServo(pin, cfg)
	if err := s.write(); err != nil {
		return nil, fmt.Errorf("servo: park on %s: %w", name, err)
	}
	return s, nil
}

func newServo(pin gpio.PinOut, cfg *config.Config) *Servo {
	return &Servo{
		pin:      pin,
		minPulse: time.Duration(cfg.ServoMinPulseUS) * time.Microsecond,
		maxPulse: time.Duration(cfg.ServoMaxPulseUS) * time.Microsecond,
	}
}

// Step implements Stepper.
func (s *Servo) Step(dir Direction, degrees float64) error {
	s.angle += float64(dir) * degrees
	return s.write()
}

// Halt stops the PWM output.
func (s *Servo) Halt() error {
	return s.pin.Halt()
}

func (s *Servo) write() error {
	return s.pin.PWM(s.duty(), servoFrequency)
}

// position folds the accumulated angle into the servo's 0-180° travel.
func (s *Servo) position() float64 {
	p := math.Mod(s.angle, 360)
	if p < 0 {
		p += 360
	}
	if p > 180 {
		p = 360 - p
	}
	return p
}

func (s *Servo) duty() gpio.Duty {
	pulse := s.minPulse + time.Duration(float64(s.maxPulse-s.minPulse)*s.position()/180)
	return gpio.Duty(float64(gpio.DutyMax) * float64(pulse) / float64(servoPeriod))
}

// LogStepper stands in for the servo when no hardware is attached.
type LogStepper struct {
	log   *zap.Logger
	angle float64
}

func NewLogStepper(log *zap.Logger) *LogStepper {
	return &LogStepper{log: log}
}

// Step implements Stepper.
func (l *LogStepper) Step(dir Direction, degrees float64) error {
	l.angle += float64(dir) * degrees
	if math.Mod(l.angle, 90) == 0 {
		l.log.Debug("servo", zap.Float64("angle", l.angle), zap.Stringer("direction", dir))
	}
	return nil
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/env"
	"github.com/relabs-tech/cpr_assist/internal/gesture"
	"github.com/relabs-tech/cpr_assist/internal/imu"
)

// Health is the fault state of each sensor. A fault is raised after
// SENSOR_FAULT_THRESHOLD consecutive failed reads and cleared by the next
// good one.
type Health struct {
	MotionFault  bool
	GestureFault bool
	EnvFault     bool
}

// failureCounter tracks consecutive failures of one sensor.
type failureCounter struct {
	name      string
	threshold int
	count     int
}

// fail records a failure and reports whether it just raised the fault.
func (f *failureCounter) fail() bool {
	f.count++
	return f.count == f.threshold
}

// ok records a good read and reports whether it just cleared the fault.
func (f *failureCounter) ok() bool {
	cleared := f.count >= f.threshold
	f.count = 0
	return cleared
}

func (f *failureCounter) faulted() bool {
	return f.count >= f.threshold
}

// Sampler turns source reads into timestamped samples. A failed read yields
// an invalid sample and never an error, so the control loop keeps running.
// gestures and environment may be nil.
type Sampler struct {
	motion      MotionSource
	gestures    GestureSource
	environment EnvSource
	log         *zap.Logger

	motionFails  failureCounter
	gestureFails failureCounter
	envFails     failureCounter
}

// NewSampler wraps the given sources.
func NewSampler(cfg *config.Config, motion MotionSource, gestures GestureSource, environment EnvSource, log *zap.Logger) *Sampler {
	n := cfg.SensorFaultThreshold
	return &Sampler{
		motion:       motion,
		gestures:     gestures,
		environment:  environment,
		log:          log,
		motionFails:  failureCounter{name: "motion", threshold: n},
		gestureFails: failureCounter{name: "gesture", threshold: n},
		envFails:     failureCounter{name: "environment", threshold: n},
	}
}

// Sample reads the motion sensor.
func (s *Sampler) Sample(now time.Time) imu.Sample {
	r, err := s.motion.ReadAccelGyro()
	if err != nil {
		s.failed(&s.motionFails, err)
		return imu.Invalid(now)
	}
	s.recovered(&s.motionFails)
	return imu.Sample{
		Timestamp: now,
		Accel:     r.Accel,
		Gyro:      r.Gyro,
		HasGyro:   r.HasGyro,
		Valid:     true,
	}
}

// SampleGesture reads the gesture sensor.
func (s *Sampler) SampleGesture(now time.Time) gesture.Sample {
	if s.gestures == nil {
		return gesture.Invalid(now)
	}
	code, proximity, err := s.gestures.ReadGesture()
	if err != nil {
		s.failed(&s.gestureFails, err)
		return gesture.Invalid(now)
	}
	s.recovered(&s.gestureFails)
	return gesture.Sample{Timestamp: now, Code: code, Proximity: proximity, Valid: true}
}

// SampleEnv reads the environment sensors. ok is false on failure or when
// none are fitted.
func (s *Sampler) SampleEnv(now time.Time) (sample env.Sample, ok bool) {
	if s.environment == nil {
		return env.Sample{}, false
	}
	sample, err := s.environment.ReadEnv()
	if err != nil {
		s.failed(&s.envFails, err)
		return env.Sample{}, false
	}
	s.recovered(&s.envFails)
	sample.Timestamp = now
	return sample, true
}

// Health returns the current fault flags.
func (s *Sampler) Health() Health {
	return Health{
		MotionFault:  s.motionFails.faulted(),
		GestureFault: s.gestureFails.faulted(),
		EnvFault:     s.envFails.faulted(),
	}
}

func (s *Sampler) failed(f *failureCounter, err error) {
	if f.fail() {
		s.log.Error("sensor fault", zap.String("sensor", f.name), zap.Int("consecutive_failures", f.count), zap.Error(err))
		return
	}
	s.log.Debug("sensor read failed", zap.String("sensor", f.name), zap.Error(err))
}

func (s *Sampler) recovered(f *failureCounter) {
	if f.ok() {
		s.log.Info("sensor recovered", zap.String("sensor", f.name))
	}
}

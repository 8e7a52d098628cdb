// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/env"
	"github.com/relabs-tech/cpr_assist/internal/gesture"
	"github.com/relabs-tech/cpr_assist/internal/imu"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// flakyMotion fails while fail is set.
type flakyMotion struct {
	fail  bool
	reads int
}

func (f *flakyMotion) ReadAccelGyro() (imu.Reading, error) {
	f.reads++
	if f.fail {
		return imu.Reading{}, readError("fake", errors.New("i2c: NACK"))
	}
	return imu.Reading{Accel: imu.Vec3{Z: 9.8}}, nil
}

type fixedGesture struct {
	code gesture.Code
	err  error
}

func (f fixedGesture) ReadGesture() (gesture.Code, int, error) {
	return f.code, 25, f.err
}

type fixedEnv struct {
	sample env.Sample
	err    error
}

func (f fixedEnv) ReadEnv() (env.Sample, error) {
	return f.sample, f.err
}

func TestSampler_Motion(t *testing.T) {
	m := &flakyMotion{}
	s := NewSampler(config.Default(), m, nil, nil, zap.NewNop())

	got := s.Sample(t0)
	assert.True(t, got.Valid)
	assert.Equal(t, t0, got.Timestamp)
	assert.Equal(t, 9.8, got.Accel.Z)

	m.fail = true
	got = s.Sample(t0.Add(time.Millisecond))
	assert.False(t, got.Valid)
	assert.Equal(t, t0.Add(time.Millisecond), got.Timestamp)
}

func TestSampler_FaultThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.SensorFaultThreshold = 3
	m := &flakyMotion{fail: true}
	s := NewSampler(cfg, m, nil, nil, zap.NewNop())

	s.Sample(t0)
	s.Sample(t0)
	assert.False(t, s.Health().MotionFault, "two failures stay below the threshold")
	s.Sample(t0)
	assert.True(t, s.Health().MotionFault)
	s.Sample(t0)
	assert.True(t, s.Health().MotionFault)

	m.fail = false
	assert.True(t, s.Sample(t0).Valid)
	assert.False(t, s.Health().MotionFault, "one good read clears the fault")
}

func TestSampler_Gesture(t *testing.T) {
	s := NewSampler(config.Default(), &flakyMotion{}, fixedGesture{code: gesture.Up}, nil, zap.NewNop())
	got := s.SampleGesture(t0)
	assert.True(t, got.Valid)
	assert.Equal(t, gesture.Up, got.Code)
	assert.Equal(t, 25, got.Proximity)

	s = NewSampler(config.Default(), &flakyMotion{}, fixedGesture{err: errors.New("bus")}, nil, zap.NewNop())
	assert.False(t, s.SampleGesture(t0).Valid)

	s = NewSampler(config.Default(), &flakyMotion{}, nil, nil, zap.NewNop())
	assert.False(t, s.SampleGesture(t0).Valid, "no gesture sensor fitted")
	assert.False(t, s.Health().GestureFault)
}

func TestSampler_Env(t *testing.T) {
	s := NewSampler(config.Default(), &flakyMotion{}, nil, fixedEnv{sample: env.Sample{Temperature: 21}}, zap.NewNop())
	got, ok := s.SampleEnv(t0)
	assert.True(t, ok)
	assert.Equal(t, 21.0, got.Temperature)
	assert.Equal(t, t0, got.Timestamp)

	s = NewSampler(config.Default(), &flakyMotion{}, nil, nil, zap.NewNop())
	_, ok = s.SampleEnv(t0)
	assert.False(t, ok)
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/relabs-tech/cpr_assist/internal/config"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// recordingStepper counts steps and can be told to fail at a given step.
type recordingStepper struct {
	steps  int
	failAt int // 1-based; 0 never fails
}

func (r *recordingStepper) Step(dir Direction, degrees float64) error {
	if r.failAt > 0 && r.steps+1 == r.failAt {
		return errors.New("servo stalled")
	}
	r.steps++
	return nil
}

func newTestActuator(cfg *config.Config) (*Actuator, *recordingStepper) {
	s := &recordingStepper{}
	return New(cfg, s, zap.NewNop()), s
}

// runUntilStopped ticks every interval until the actuator stops or limit passes.
func runUntilStopped(a *Actuator, start time.Time, interval, limit time.Duration) (time.Time, Outcome) {
	now := start
	var last Outcome
	for now.Sub(start) <= limit {
		last, _ = a.Advance(now)
		if last == Completed || last == Faulted {
			return now, last
		}
		now = now.Add(interval)
	}
	return now, last
}

func TestActuator_FullSequence(t *testing.T) {
	cfg := config.Default()
	a, s := newTestActuator(cfg)

	require.True(t, a.DriveSOSSequence(t0))
	assert.True(t, a.State().IsMoving)

	_, outcome := runUntilStopped(a, t0, cfg.LoopInterval, time.Minute)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, 720, s.steps)

	st := a.State()
	assert.Equal(t, 720, st.Position)
	assert.Equal(t, 2, st.RotationsCompleted)
	assert.False(t, st.IsMoving)
	assert.False(t, st.Fault)
}

func TestActuator_DriveIsIdempotentWhileMoving(t *testing.T) {
	cfg := config.Default()
	a, s := newTestActuator(cfg)

	require.True(t, a.DriveSOSSequence(t0))
	now := t0
	for i := 0; i < 50; i++ {
		a.Advance(now)
		assert.False(t, a.DriveSOSSequence(now), "drive while moving must not restart")
		now = now.Add(cfg.LoopInterval)
	}
	runUntilStopped(a, now, cfg.LoopInterval, time.Minute)

	assert.Equal(t, cfg.ActuatorSteps(), s.steps)
	assert.False(t, a.DriveSOSSequence(now), "a finished sequence needs a reset")
}

func TestActuator_Cadence(t *testing.T) {
	cfg := config.Default() // 15 ms per step, 10 ms loop
	a, s := newTestActuator(cfg)
	a.DriveSOSSequence(t0)

	now := t0
	for i := 0; i < 100; i++ {
		before := s.steps
		a.Advance(now)
		assert.LessOrEqual(t, s.steps-before, cfg.MaxStepsPerTick)

		elapsed := now.Sub(t0)
		assert.LessOrEqual(t, s.steps, int(elapsed/cfg.MotorSpeedDelay)+1, "at %v", elapsed)
		now = now.Add(cfg.LoopInterval)
	}
	// 990 ms at one step per 15 ms
	assert.Equal(t, 67, s.steps)
}

func TestActuator_CapsStepsPerTick(t *testing.T) {
	cfg := config.Default()
	a, s := newTestActuator(cfg)
	a.DriveSOSSequence(t0)

	// a stalled loop resumes after one second
	outcome, err := a.Advance(t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, Stepped, outcome)
	assert.Equal(t, cfg.MaxStepsPerTick, s.steps)

	// no burst on the following tick either
	outcome, _ = a.Advance(t0.Add(time.Second + cfg.LoopInterval))
	assert.Equal(t, Waiting, outcome)
	assert.Equal(t, cfg.MaxStepsPerTick, s.steps)
}

func TestActuator_FaultStopsImmediately(t *testing.T) {
	cfg := config.Default()
	s := &recordingStepper{failAt: 100}
	a := New(cfg, s, zap.NewNop())
	a.DriveSOSSequence(t0)

	_, outcome := runUntilStopped(a, t0, cfg.LoopInterval, time.Minute)
	assert.Equal(t, Faulted, outcome)
	assert.Equal(t, 99, s.steps)

	st := a.State()
	assert.True(t, st.Fault)
	assert.False(t, st.IsMoving)
	assert.Equal(t, 99, st.Position)

	outcome, err := a.Advance(t0.Add(time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, Idle, outcome, "no steps after a fault")
}

func TestActuator_FaultError(t *testing.T) {
	cfg := config.Default()
	a := New(cfg, &recordingStepper{failAt: 1}, zap.NewNop())
	a.DriveSOSSequence(t0)

	outcome, err := a.Advance(t0)
	assert.Equal(t, Faulted, outcome)
	assert.ErrorIs(t, err, ErrActuatorFault)
}

func TestActuator_Reset(t *testing.T) {
	cfg := config.Default()
	a, s := newTestActuator(cfg)
	a.DriveSOSSequence(t0)
	a.Advance(t0)

	assert.ErrorIs(t, a.Reset(), ErrMoving)
	assert.Equal(t, 1, a.State().Position, "a refused reset leaves the state alone")

	runUntilStopped(a, t0, cfg.LoopInterval, time.Minute)
	require.NoError(t, a.Reset())
	assert.Equal(t, State{}, a.State())

	// a second alert replays the whole sequence
	later := t0.Add(time.Minute)
	require.True(t, a.DriveSOSSequence(later))
	runUntilStopped(a, later, cfg.LoopInterval, time.Minute)
	assert.Equal(t, 2*cfg.ActuatorSteps(), s.steps)
}

func TestActuator_PositionStaysInBounds(t *testing.T) {
	cfg := config.Default()
	cfg.StepsPerRotation = 10
	cfg.TotalRotations = 1
	cfg.MaxStepsPerTick = 100
	a, s := newTestActuator(cfg)
	a.DriveSOSSequence(t0)

	// far more steps are due than the bound allows
	outcome, err := a.Advance(t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, 10, a.State().Position)
	assert.Equal(t, 10, s.steps)
	assert.Equal(t, 1, a.State().RotationsCompleted)
}

func TestServo_SweepsPulseRange(t *testing.T) {
	cfg := config.Default()
	pin := &gpiotest.Pin{N: "GPIO13", Num: 13}
	s := newServo(pin, cfg)

	require.NoError(t, s.write())
	assert.Equal(t, pulseDuty(500*time.Microsecond), pin.D)
	assert.Equal(t, servoFrequency, pin.F)

	for i := 0; i < 180; i++ {
		require.NoError(t, s.Step(Forward, 1))
	}
	assert.Equal(t, pulseDuty(2400*time.Microsecond), pin.D)

	// the second half of a rotation sweeps back
	for i := 0; i < 90; i++ {
		require.NoError(t, s.Step(Forward, 1))
	}
	assert.InDelta(t, 90.0, s.position(), 1e-9)
	for i := 0; i < 90; i++ {
		require.NoError(t, s.Step(Forward, 1))
	}
	assert.Equal(t, pulseDuty(500*time.Microsecond), pin.D)
}

func pulseDuty(pulse time.Duration) gpio.Duty {
	return gpio.Duty(float64(gpio.DutyMax) * float64(pulse) / float64(servoPeriod))
}

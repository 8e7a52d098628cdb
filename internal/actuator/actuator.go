// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package actuator drives the servo feedback sequence played on an SOS alert.
package actuator

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/config"
)

var (
	// ErrActuatorFault is returned when the stepper rejects a step.
	ErrActuatorFault = errors.New("actuator fault")
	// ErrMoving is returned by Reset while a sequence is running.
	ErrMoving = errors.New("actuator is moving")
)

// Direction of a single step.
type Direction int

const (
	Forward Direction = 1
	Reverse Direction = -1
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// Stepper moves the output by one step. Implementations must return quickly.
type Stepper interface {
	Step(dir Direction, degrees float64) error
}

// State is a snapshot of the actuator.
type State struct {
	Position           int  `json:"position"`
	RotationsCompleted int  `json:"rotations_completed"`
	IsMoving           bool `json:"is_moving"`
	Fault              bool `json:"fault"`
}

// Outcome reports what a call to Advance did.
type Outcome int

const (
	Idle      Outcome = iota // not moving
	Waiting                  // moving, no step due yet
	Stepped                  // one or more steps taken
	Completed                // the final step was taken this tick
	Faulted                  // a step failed; the sequence stopped
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Stepped:
		return "stepped"
	case Completed:
		return "completed"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Actuator runs the bounded SOS rotation sequence one tick at a time.
// Nothing else mutates its State.
type Actuator struct {
	stepper          Stepper
	degreesPerStep   float64
	stepsPerRotation int
	totalSteps       int
	maxStepsPerTick  int
	delay            time.Duration
	log              *zap.Logger

	state      State
	nextStepAt time.Time
}

// New returns a stopped actuator at position zero.
func New(cfg *config.Config, stepper Stepper, log *zap.Logger) *Actuator {
	return &Actuator{
		stepper:          stepper,
		degreesPerStep:   cfg.DegreesPerStep,
		stepsPerRotation: cfg.StepsPerRotation,
		totalSteps:       cfg.ActuatorSteps(),
		maxStepsPerTick:  cfg.MaxStepsPerTick,
		delay:            cfg.MotorSpeedDelay,
		log:              log,
	}
}

// State returns a copy of the current state.
func (a *Actuator) State() State {
	return a.state
}

// TotalSteps is the travel bound of one sequence.
func (a *Actuator) TotalSteps() int {
	return a.totalSteps
}

// DriveSOSSequence starts the sequence at now and returns immediately; the
// steps are taken by Advance. It is a no-op while moving and after a finished
// sequence that has not been Reset. It reports whether a sequence started.
func (a *Actuator) DriveSOSSequence(now time.Time) bool {
	if a.state.IsMoving || a.state.Position >= a.totalSteps {
		return false
	}
	a.state.IsMoving = true
	a.state.Fault = false
	a.nextStepAt = now
	a.log.Info("SOS sequence started",
		zap.Int("from_step", a.state.Position),
		zap.Int("total_steps", a.totalSteps))
	return true
}

// Reset returns the position to zero and clears the fault flag.
func (a *Actuator) Reset() error {
	if a.state.IsMoving {
		return ErrMoving
	}
	a.state = State{}
	return nil
}

// Advance takes the steps due at now: one per MOTOR_SPEED_DELAY since the
// sequence started, at most MAX_STEPS_PER_TICK per call.
func (a *Actuator) Advance(now time.Time) (Outcome, error) {
	if !a.state.IsMoving {
		return Idle, nil
	}

	taken := 0
	for taken < a.maxStepsPerTick && !now.Before(a.nextStepAt) && a.state.Position < a.totalSteps {
		if err := a.stepper.Step(Forward, a.degreesPerStep); err != nil {
			a.state.IsMoving = false
			a.state.Fault = true
			a.log.Error("actuator step failed, sequence stopped",
				zap.Int("position", a.state.Position),
				zap.Error(err))
			return Faulted, fmt.Errorf("%w: step %d: %v", ErrActuatorFault, a.state.Position+1, err)
		}
		a.state.Position++
		a.state.RotationsCompleted = a.state.Position / a.stepsPerRotation
		a.nextStepAt = a.nextStepAt.Add(a.delay)
		taken++
	}

	if a.state.Position >= a.totalSteps {
		a.state.IsMoving = false
		a.log.Info("SOS sequence completed",
			zap.Int("steps", a.state.Position),
			zap.Int("rotations", a.state.RotationsCompleted))
		return Completed, nil
	}
	if !now.Before(a.nextStepAt) {
		// capped: do not burst to catch up on the next tick
		a.nextStepAt = now.Add(a.delay)
	}
	if taken > 0 {
		return Stepped, nil
	}
	return Waiting, nil
}

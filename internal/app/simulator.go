// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/actuator"
	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/sensors"
)

// SimOptions shape the synthetic session.
type SimOptions struct {
	Rate     float64 // compressions/min
	DepthCm  float64
	Cycles   int           // compressions per burst
	Pause    time.Duration // rest between bursts
	SOSAfter time.Duration // first SOS gesture; 0 disables
	SOSEvery time.Duration
	SOSCount int
}

// DefaultSimOptions is a good session at 110/min and 5 cm with one SOS.
func DefaultSimOptions() SimOptions {
	return SimOptions{
		Rate:     110,
		DepthCm:  5,
		Cycles:   30,
		Pause:    3 * time.Second,
		SOSAfter: 20 * time.Second,
		SOSEvery: 30 * time.Second,
		SOSCount: 1,
	}
}

// RunSimulator runs the real control loop and telemetry over synthetic
// sensors and a logging stand-in for the servo.
func RunSimulator(ctx context.Context, cfg *config.Config, opts SimOptions, log *zap.Logger) error {
	log.Info("starting CPR assist simulator",
		zap.String("device_id", cfg.DeviceID),
		zap.Float64("rate", opts.Rate),
		zap.Float64("depth_cm", opts.DepthCm))

	clock := time.Now
	motion := sensors.NewSimMotion(opts.Rate, opts.DepthCm, clock)
	motion.Cycles = opts.Cycles
	motion.Pause = opts.Pause

	var script []sensors.ScriptedGesture
	if opts.SOSAfter > 0 && opts.SOSCount > 0 {
		script = sensors.SOSScript(opts.SOSAfter, opts.SOSEvery, opts.SOSCount)
	}

	sampler := sensors.NewSampler(cfg, motion, sensors.NewSimGestures(script, clock), sensors.NewSimEnv(clock), log)
	rt, err := newRuntime(cfg, sampler, actuator.NewLogStepper(log), nil, log)
	if err != nil {
		return err
	}
	return rt.run(ctx, cfg, log)
}

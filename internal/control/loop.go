// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package control runs the device tick: sampling, compression detection,
// SOS recognition, actuator progress, telemetry and status reporting.
package control

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/actuator"
	"github.com/relabs-tech/cpr_assist/internal/compression"
	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/env"
	"github.com/relabs-tech/cpr_assist/internal/gesture"
	"github.com/relabs-tech/cpr_assist/internal/gps"
	"github.com/relabs-tech/cpr_assist/internal/sensors"
	"github.com/relabs-tech/cpr_assist/internal/status"
	"github.com/relabs-tech/cpr_assist/internal/telemetry"
	"github.com/relabs-tech/cpr_assist/internal/trigger"
)

// Reporter receives the status snapshot every STATUS_PRINT_INTERVAL.
type Reporter interface {
	Report(s status.Snapshot)
}

// Locator supplies the last known position for alerts. gps.Reader is one.
type Locator interface {
	Latest() (gps.Fix, bool)
}

// Components are the parts the loop drives. Reporter and Locator are optional.
type Components struct {
	Sampler  *sensors.Sampler
	Detector *compression.Detector
	Trigger  *trigger.Trigger
	Actuator *actuator.Actuator
	Uplink   *telemetry.Uplink
	Reporter Reporter
	Locator  Locator
}

// Loop owns timing. Components never call each other; the loop hands data
// from one to the next within a tick.
type Loop struct {
	Components

	deviceID       string
	interval       time.Duration
	envInterval    time.Duration
	statusInterval time.Duration
	log            *zap.Logger

	startedAt    time.Time
	lastEnvAt    time.Time
	lastStatusAt time.Time
	started      bool

	lastEvent   *compression.Event
	lastGesture gesture.Code
	proximity   int
	alert       *gesture.Alert
	environment *env.Sample
}

// New builds a loop over c with the cadences from cfg.
func New(cfg *config.Config, c Components, log *zap.Logger) *Loop {
	return &Loop{
		Components:     c,
		deviceID:       cfg.DeviceID,
		interval:       cfg.LoopInterval,
		envInterval:    cfg.EnvSampleInterval,
		statusInterval: cfg.StatusPrintInterval,
		log:            log,
	}
}

// Run ticks every LOOP_INTERVAL until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.log.Info("control loop started",
		zap.String("device_id", l.deviceID),
		zap.Duration("interval", l.interval))

	for {
		select {
		case <-ctx.Done():
			l.log.Info("control loop stopped")
			return nil
		case now := <-ticker.C:
			l.Tick(ctx, now)
		}
	}
}

// Tick runs one cooperative pass. It never blocks longer than one telemetry
// send and never returns an error: faults surface in the snapshot flags.
func (l *Loop) Tick(ctx context.Context, now time.Time) {
	if !l.started {
		l.startedAt, l.started = now, true
	}

	if ev, ok := l.Detector.Process(l.Sampler.Sample(now)); ok {
		l.lastEvent = &ev
		l.log.Debug("compression",
			zap.Float64("depth_cm", ev.Depth),
			zap.Float64("rate", ev.Rate),
			zap.Bool("in_band", ev.InTargetBand))
	}

	g := l.Sampler.SampleGesture(now)
	if g.Valid {
		l.lastGesture, l.proximity = g.Code, g.Proximity
	}
	alert, raised := l.Trigger.Process(g)
	if raised {
		l.raise(ctx, now, alert)
	}

	l.advanceActuator(now)

	if err := l.Uplink.Service(ctx, now); err != nil {
		l.log.Debug("alert retry failed", zap.Error(err))
	}

	if l.envDue(now) {
		l.lastEnvAt = now
		if sample, ok := l.Sampler.SampleEnv(now); ok {
			l.environment = &sample
		}
	}

	// an alert tick is spent on the alert; routine data waits for the next one
	if !raised && l.Uplink.Due(now) {
		err := l.Uplink.Publish(ctx, now, l.batch(now, nil))
		if err != nil && !errors.Is(err, telemetry.ErrRateLimited) {
			l.log.Debug("telemetry publish failed", zap.Error(err))
		}
	}

	if l.Reporter != nil && (l.lastStatusAt.IsZero() || now.Sub(l.lastStatusAt) >= l.statusInterval) {
		l.lastStatusAt = now
		l.Reporter.Report(l.Snapshot(now))
	}
}

// raise starts the SOS sequence: the actuator first, then the uplink.
func (l *Loop) raise(ctx context.Context, now time.Time, alert gesture.Alert) {
	if l.Locator != nil {
		if fix, ok := l.Locator.Latest(); ok {
			alert.Location = &fix
		}
	}
	l.alert = &alert
	l.log.Warn("SOS gesture recognised",
		zap.String("alert_id", alert.ID),
		zap.Bool("has_location", alert.Location != nil))

	if err := l.Actuator.Reset(); err != nil {
		l.log.Warn("actuator reset refused", zap.Error(err))
	}
	l.Actuator.DriveSOSSequence(now)

	if err := l.Uplink.SendAlert(ctx, now, l.batch(now, &alert)); err != nil {
		l.log.Debug("alert first attempt failed", zap.Error(err))
	}
}

func (l *Loop) advanceActuator(now time.Time) {
	outcome, err := l.Actuator.Advance(now)
	if err != nil {
		l.log.Debug("actuator advance", zap.Error(err))
	}
	if outcome == actuator.Completed || outcome == actuator.Faulted {
		// the trigger listens again once the feedback sequence is over
		l.Trigger.Rearm()
	}
}

func (l *Loop) envDue(now time.Time) bool {
	return l.lastEnvAt.IsZero() || now.Sub(l.lastEnvAt) >= l.envInterval
}

func (l *Loop) batch(now time.Time, alert *gesture.Alert) telemetry.Batch {
	return telemetry.Batch{
		DeviceID:    l.deviceID,
		Compression: l.lastEvent,
		Alert:       alert,
		Status:      l.Snapshot(now),
	}
}

// Snapshot assembles the current device state.
func (l *Loop) Snapshot(now time.Time) status.Snapshot {
	health := l.Sampler.Health()
	act := l.Actuator.State()
	alertState := l.Uplink.AlertState()

	s := status.Snapshot{
		DeviceID:         l.deviceID,
		Timestamp:        now,
		Uptime:           now.Sub(l.startedAt),
		CompressionState: l.Detector.State().String(),
		LastCompression:  l.lastEvent,
		Session:          l.Detector.Stats(),
		LastGesture:      l.lastGesture,
		Proximity:        l.proximity,
		Alert:            l.alert,
		AlertActive:      l.Trigger.Active(),
		AlertUplink:      alertState,
		Actuator:         act,
		Environment:      l.environment,
		Flags: status.Flags{
			MotionSensorFault:  health.MotionFault,
			GestureSensorFault: health.GestureFault,
			EnvSensorFault:     health.EnvFault,
			ActuatorFault:      act.Fault,
			UplinkDown:         l.Uplink.Down(),
			AlertUplinkFailed:  alertState == status.AlertUplinkFailed,
		},
	}
	if l.Locator != nil {
		if fix, ok := l.Locator.Latest(); ok {
			s.Location = &fix
		}
	}
	return s
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry paces device data and SOS alerts to the remote store.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/status"
)

var (
	// ErrRateLimited is returned by Publish inside SEND_INTERVAL of the last send.
	ErrRateLimited = errors.New("telemetry: rate limited")
	// ErrUplinkTimeout is returned when a send exceeds SEND_TIMEOUT. The batch is dropped.
	ErrUplinkTimeout = errors.New("telemetry: uplink timeout")
)

// pendingAlert is an alert whose delivery has not succeeded yet.
type pendingAlert struct {
	batch    Batch
	attempts int
	nextAt   time.Time
}

// Uplink owns send pacing. Routine batches go out at most once per
// SEND_INTERVAL and are dropped on failure; nothing is queued. An alert is
// sent at once, bypassing the rate limit, and retried up to
// ALERT_MAX_ATTEMPTS times with doubling backoff. Retries are driven by
// Service so a tick never sleeps.
//
// A nil sink runs the uplink local-only.
type Uplink struct {
	sink        Sink
	interval    time.Duration
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	log         *zap.Logger

	lastSendAt time.Time
	sentOnce   bool
	down       bool

	alert      *pendingAlert
	alertState status.AlertUplink
}

// NewUplink wraps sink with the pacing from cfg.
func NewUplink(cfg *config.Config, sink Sink, log *zap.Logger) *Uplink {
	return &Uplink{
		sink:        sink,
		interval:    cfg.SendInterval,
		timeout:     cfg.SendTimeout,
		maxAttempts: cfg.AlertMaxAttempts,
		backoff:     cfg.AlertRetryBackoff,
		log:         log,
	}
}

// Down reports whether the last send failed.
func (u *Uplink) Down() bool {
	return u.down
}

// AlertState reports the delivery state of the latest alert.
func (u *Uplink) AlertState() status.AlertUplink {
	return u.alertState
}

// Due reports whether a routine batch may be sent at now.
func (u *Uplink) Due(now time.Time) bool {
	return !u.sentOnce || now.Sub(u.lastSendAt) >= u.interval
}

// Publish sends a routine batch. The send slot is consumed even when the
// send fails, so a dead link is not hammered every tick.
func (u *Uplink) Publish(ctx context.Context, now time.Time, b Batch) error {
	if u.sink == nil {
		return nil
	}
	if !u.Due(now) {
		return ErrRateLimited
	}
	u.lastSendAt, u.sentOnce = now, true

	b.Alert = nil
	if err := u.send(ctx, b); err != nil {
		u.log.Debug("telemetry batch dropped", zap.Error(err))
		return err
	}
	return nil
}

// SendAlert makes the first delivery attempt for an alert immediately.
// A failure schedules a retry for Service; a newer alert replaces any
// alert still being retried.
func (u *Uplink) SendAlert(ctx context.Context, now time.Time, b Batch) error {
	if b.Alert == nil {
		return errors.New("telemetry: SendAlert without an alert")
	}
	if u.sink == nil {
		u.alertState = status.AlertLocalOnly
		u.log.Warn("SOS acknowledged locally, no uplink configured", zap.String("alert_id", b.Alert.ID))
		return nil
	}
	if u.alert != nil {
		u.log.Warn("alert superseded before delivery", zap.String("alert_id", u.alert.batch.Alert.ID))
	}
	u.alert = &pendingAlert{batch: b}
	u.alertState = status.AlertPending
	return u.attemptAlert(ctx, now)
}

// Service retries a pending alert once its backoff has elapsed.
func (u *Uplink) Service(ctx context.Context, now time.Time) error {
	if u.alert == nil || now.Before(u.alert.nextAt) {
		return nil
	}
	return u.attemptAlert(ctx, now)
}

// RetryPending reports whether an alert is waiting for another attempt.
func (u *Uplink) RetryPending() bool {
	return u.alert != nil
}

func (u *Uplink) attemptAlert(ctx context.Context, now time.Time) error {
	a := u.alert
	a.attempts++
	id := a.batch.Alert.ID

	err := u.send(ctx, a.batch)
	if err == nil {
		u.alert = nil
		u.alertState = status.AlertDelivered
		u.log.Info("SOS alert delivered", zap.String("alert_id", id), zap.Int("attempt", a.attempts))
		return nil
	}

	if a.attempts >= u.maxAttempts {
		u.alert = nil
		u.alertState = status.AlertUplinkFailed
		u.log.Error("SOS alert not delivered, locally acknowledged",
			zap.String("alert_id", id),
			zap.Int("attempts", a.attempts),
			zap.Error(err))
		return err
	}

	delay := u.backoff << (a.attempts - 1)
	a.nextAt = now.Add(delay)
	u.log.Warn("SOS alert send failed, retrying",
		zap.String("alert_id", id),
		zap.Int("attempt", a.attempts),
		zap.Duration("retry_in", delay),
		zap.Error(err))
	return err
}

func (u *Uplink) send(ctx context.Context, b Batch) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	err := u.sink.Send(ctx, b.DeviceID, NewPayload(b))
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		err = fmt.Errorf("%w after %v: %v", ErrUplinkTimeout, u.timeout, err)
	}
	u.down = err != nil
	return err
}

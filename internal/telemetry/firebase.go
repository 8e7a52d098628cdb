// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/config"
)

// FirebaseSink writes to a Firebase realtime database over its REST API.
// Device sections are PATCHed onto devices/{id}; an emergency is PUT at
// emergencies/{alert id}, so a retried alert never creates a duplicate.
type FirebaseSink struct {
	client *resty.Client
	log    *zap.Logger
}

// NewFirebaseSink returns a sink for FIREBASE_HOST. FIREBASE_AUTH, when set,
// is sent as the auth query parameter. Deadlines and retries are left to
// the Uplink.
func NewFirebaseSink(cfg *config.Config, log *zap.Logger) *FirebaseSink {
	client := resty.New().
		SetBaseURL(cfg.FirebaseHost).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.FirebaseAuth != "" {
		client.SetQueryParam("auth", cfg.FirebaseAuth)
	}
	return &FirebaseSink{client: client, log: log}
}

// Send implements Sink. An emergency is written before the device node and
// its outcome decides the result: a failed PATCH after a stored emergency is
// only logged, the next routine publish refreshes the node.
func (s *FirebaseSink) Send(ctx context.Context, deviceID string, p Payload) error {
	if p.Emergency == nil {
		return s.patchDevice(ctx, deviceID, p.Device)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("alert", p.Emergency.ID).
		SetBody(p.Emergency).
		Put("/emergencies/{alert}.json")
	if err != nil {
		return fmt.Errorf("firebase: push emergency %s: %w", p.Emergency.ID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("firebase: push emergency %s: status %d: %s", p.Emergency.ID, resp.StatusCode(), resp.String())
	}

	s.log.Info("emergency pushed",
		zap.String("alert_id", p.Emergency.ID),
		zap.String("device_id", deviceID),
	)

	if err := s.patchDevice(ctx, deviceID, p.Device); err != nil {
		s.log.Warn("device update after emergency failed",
			zap.String("alert_id", p.Emergency.ID),
			zap.Error(err),
		)
	}
	return nil
}

func (s *FirebaseSink) patchDevice(ctx context.Context, deviceID string, d DeviceData) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("device", deviceID).
		SetBody(d).
		Patch("/devices/{device}.json")
	if err != nil {
		return fmt.Errorf("firebase: update device %s: %w", deviceID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("firebase: update device %s: status %d: %s", deviceID, resp.StatusCode(), resp.String())
	}
	return nil
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/config"
)

// Sink delivers one payload to a remote store. It must give up when ctx is done.
type Sink interface {
	Send(ctx context.Context, deviceID string, p Payload) error
}

// MultiSink sends to every sink in turn and joins their errors.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, deviceID string, p Payload) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, deviceID, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewSink builds the sink selected by TELEMETRY_SINK. It returns a nil Sink
// for "none"; the uplink then runs local-only. A broker that cannot be used
// at all drops MQTT from the selection instead of failing boot. The returned
// close function is never nil.
func NewSink(cfg *config.Config, log *zap.Logger) (Sink, func(), error) {
	noop := func() {}
	switch cfg.TelemetrySink {
	case "none":
		return nil, noop, nil
	case "firebase":
		return NewFirebaseSink(cfg, log), noop, nil
	case "mqtt":
		m, err := NewMQTTSink(cfg, log)
		if err != nil {
			log.Error("MQTT sink unavailable, running local-only", zap.Error(err))
			return nil, noop, nil
		}
		return m, m.Close, nil
	case "both":
		fb := NewFirebaseSink(cfg, log)
		m, err := NewMQTTSink(cfg, log)
		if err != nil {
			log.Error("MQTT sink unavailable, using Firebase only", zap.Error(err))
			return fb, noop, nil
		}
		return MultiSink{fb, m}, m.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown telemetry sink %q", cfg.TelemetrySink)
}

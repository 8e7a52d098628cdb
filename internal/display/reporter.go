// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package display presents the status snapshot: in the log, on the OLED and
// over a websocket feed.
package display

import (
	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/status"
)

// Reporter receives a snapshot every STATUS_PRINT_INTERVAL. Report is called
// from the control loop and must not block.
type Reporter interface {
	Report(s status.Snapshot)
}

// Reporters fans a snapshot out to several reporters.
type Reporters []Reporter

func (r Reporters) Report(s status.Snapshot) {
	for _, rep := range r {
		rep.Report(s)
	}
}

// LogReporter writes the snapshot as one structured log line.
type LogReporter struct {
	log *zap.Logger
}

func NewLogReporter(log *zap.Logger) *LogReporter {
	return &LogReporter{log: log}
}

func (l *LogReporter) Report(s status.Snapshot) {
	fields := []zap.Field{
		zap.String("state", s.CompressionState),
		zap.Int("compressions", s.Session.Total),
		zap.Int("in_band", s.Session.InBand),
		zap.Float64("avg_rate", round1(s.Session.AvgRate)),
		zap.Float64("avg_depth_cm", round1(s.Session.AvgDepth)),
		zap.Float64("quality", round1(s.Session.AvgQuality)),
		zap.Bool("alert_active", s.AlertActive),
		zap.Int("actuator_position", s.Actuator.Position),
	}
	if ev := s.LastCompression; ev != nil {
		fields = append(fields,
			zap.Float64("last_depth_cm", round1(ev.Depth)),
			zap.Float64("last_rate", round1(ev.Rate)),
			zap.Bool("last_rate_valid", ev.RateValid),
			zap.Bool("last_in_band", ev.InTargetBand))
	}
	if s.AlertUplink != status.AlertNone {
		fields = append(fields, zap.String("alert_uplink", string(s.AlertUplink)))
	}
	if e := s.Environment; e != nil {
		fields = append(fields,
			zap.Float64("temperature", round1(e.Temperature)),
			zap.Float64("humidity", round1(e.Humidity)),
			zap.Float64("pressure_hpa", round1(e.Pressure)))
	}
	if s.Flags.Any() {
		fields = append(fields, zap.Any("flags", s.Flags))
		l.log.Warn("status", fields...)
		return
	}
	l.log.Info("status", fields...)
}

func round1(v float64) float64 {
	if v < 0 {
		return -float64(int64(-v*10+0.5)) / 10
	}
	return float64(int64(v*10+0.5)) / 10
}

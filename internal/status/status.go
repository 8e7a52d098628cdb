// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package status

import (
	"time"

	"github.com/relabs-tech/cpr_assist/internal/actuator"
	"github.com/relabs-tech/cpr_assist/internal/compression"
	"github.com/relabs-tech/cpr_assist/internal/env"
	"github.com/relabs-tech/cpr_assist/internal/gesture"
	"github.com/relabs-tech/cpr_assist/internal/gps"
)

// AlertUplink describes how far an alert got towards the remote store.
type AlertUplink string

const (
	AlertNone         AlertUplink = ""
	AlertPending      AlertUplink = "pending"
	AlertDelivered    AlertUplink = "delivered"
	AlertUplinkFailed AlertUplink = "locally acknowledged, uplink failed"
	AlertLocalOnly    AlertUplink = "locally acknowledged, no uplink"
)

// Flags are the runtime faults. None of them stops the control loop.
type Flags struct {
	MotionSensorFault  bool `json:"motion_sensor_fault"`
	GestureSensorFault bool `json:"gesture_sensor_fault"`
	EnvSensorFault     bool `json:"env_sensor_fault"`
	ActuatorFault      bool `json:"actuator_fault"`
	UplinkDown         bool `json:"uplink_down"`
	AlertUplinkFailed  bool `json:"alert_uplink_failed"`
}

// Any reports whether any flag is raised.
func (f Flags) Any() bool {
	return f.MotionSensorFault || f.GestureSensorFault || f.EnvSensorFault ||
		f.ActuatorFault || f.UplinkDown || f.AlertUplinkFailed
}

// Snapshot is the device state reported on STATUS_PRINT_INTERVAL and
// carried in every telemetry batch.
type Snapshot struct {
	DeviceID  string        `json:"device_id"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime_ns"`

	CompressionState string             `json:"compression_state"`
	LastCompression  *compression.Event `json:"last_compression,omitempty"`
	Session          compression.Stats  `json:"session"`

	LastGesture gesture.Code   `json:"last_gesture"`
	Proximity   int            `json:"proximity"`
	Alert       *gesture.Alert `json:"alert,omitempty"`
	AlertActive bool           `json:"alert_active"`
	AlertUplink AlertUplink    `json:"alert_uplink,omitempty"`
	Actuator    actuator.State `json:"actuator"`

	Environment *env.Sample `json:"environment,omitempty"`
	Location    *gps.Fix    `json:"location,omitempty"`

	Flags Flags `json:"flags"`
}

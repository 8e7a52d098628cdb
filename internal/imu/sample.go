// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "time"

// Vec3 is a three-axis reading.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Axis returns the component named by axis ("x", "y" or "z"). Unknown
// names fall back to Z, the compression axis on the chest-mounted kit.
func (v Vec3) Axis(axis string) float64 {
	switch axis {
	case "x":
		return v.X
	case "y":
		return v.Y
	default:
		return v.Z
	}
}

// Reading is one raw accelerometer/gyroscope read in physical units.
type Reading struct {
	Accel   Vec3 // m/s²
	Gyro    Vec3 // °/s
	HasGyro bool
}

// Sample is a timestamped motion sample produced once per tick.
// A zero Valid marks a failed read; consumers must skip it.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Accel     Vec3      `json:"accel"`
	Gyro      Vec3      `json:"gyro"`
	HasGyro   bool      `json:"has_gyro"`
	Valid     bool      `json:"valid"`
}

// Invalid returns the sentinel sample for a failed read at t.
func Invalid(t time.Time) Sample {
	return Sample{Timestamp: t}
}

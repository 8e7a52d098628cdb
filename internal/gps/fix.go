// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import "time"

// Fix is the last known position, attached to SOS alerts.
type Fix struct {
	Time       string    `json:"time"`        // e.g. "12:34:56"
	Date       string    `json:"date"`        // e.g. "06/12/25"
	Latitude   float64   `json:"lat"`         // decimal degrees
	Longitude  float64   `json:"lon"`         // decimal degrees
	SpeedKnots float64   `json:"speed_knots"` // speed over ground
	CourseDeg  float64   `json:"course_deg"`  // course over ground
	Validity   string    `json:"validity"`    // "A" (valid) / "V" (void)
	ReceivedAt time.Time `json:"received_at"`
}

// Valid reports whether the receiver flagged the fix as usable.
func (f Fix) Valid() bool {
	return f.Validity == "A"
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package env

import "time"

// Sample represents a single environmental measurement (BMP180 + SI7021).
type Sample struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"` // °C
	Humidity    float64   `json:"humidity"`    // %RH, zero when no hygrometer answered
	Pressure    float64   `json:"pressure"`    // hPa
	Altitude    float64   `json:"altitude"`    // m, from the standard atmosphere
	HasHumidity bool      `json:"-"`
	HasPressure bool      `json:"-"`
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"strings"
	"time"

	"github.com/relabs-tech/cpr_assist/internal/compression"
	"github.com/relabs-tech/cpr_assist/internal/gesture"
	"github.com/relabs-tech/cpr_assist/internal/status"
)

// Batch is what the control loop hands to the uplink.
type Batch struct {
	DeviceID    string
	Compression *compression.Event // latest completed cycle, nil if none yet
	Alert       *gesture.Alert     // set only for alert sends
	Status      status.Snapshot
}

// Payload is the wire form of a Batch. Device mirrors the realtime database
// node devices/{id}; Emergency, when set, is written to emergencies/{alert id}.
type Payload struct {
	Device    DeviceData `json:"device"`
	Emergency *Emergency `json:"emergency,omitempty"`
}

// DeviceData holds the per-device sections.
type DeviceData struct {
	CPR         *CPRData          `json:"cpr,omitempty"`
	Gesture     GestureData       `json:"gesture"`
	Environment *EnvironmentData  `json:"environment,omitempty"`
	Status      StatusData        `json:"status"`
	Session     compression.Stats `json:"session"`
}

type CPRData struct {
	CompressionRate  float64 `json:"compression_rate"`
	RateValid        bool    `json:"rate_valid"` // false on the first cycle of a series
	CompressionDepth float64 `json:"compression_depth"`
	QualityScore     float64 `json:"quality_score"`
	InTargetBand     bool    `json:"in_target_band"`
	Timestamp        int64   `json:"timestamp"`
}

type GestureData struct {
	GestureType string `json:"gesture_type"`
	Proximity   int    `json:"proximity"`
	Timestamp   int64  `json:"timestamp"`
}

type EnvironmentData struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Altitude    float64 `json:"altitude"`
	Timestamp   int64   `json:"timestamp"`
}

type StatusData struct {
	SOSTriggered     bool         `json:"sos_triggered"`
	CompressionState string       `json:"compression_state"`
	ActuatorPosition int          `json:"actuator_position"`
	ActuatorMoving   bool         `json:"actuator_moving"`
	Flags            status.Flags `json:"flags"`
	LastUpdate       int64        `json:"last_update"`
}

// Emergency is the record pushed for an SOS alert.
type Emergency struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Location  *Location `json:"location,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// NewPayload maps a batch onto the database layout. Timestamps are Unix ms.
func NewPayload(b Batch) Payload {
	st := b.Status
	p := Payload{
		Device: DeviceData{
			Gesture: GestureData{
				GestureType: strings.ToLower(st.LastGesture.String()),
				Proximity:   st.Proximity,
				Timestamp:   millis(st.Timestamp),
			},
			Status: StatusData{
				SOSTriggered:     st.AlertActive,
				CompressionState: st.CompressionState,
				ActuatorPosition: st.Actuator.Position,
				ActuatorMoving:   st.Actuator.IsMoving,
				Flags:            st.Flags,
				LastUpdate:       millis(st.Timestamp),
			},
			Session: st.Session,
		},
	}

	if ev := b.Compression; ev != nil {
		p.Device.CPR = &CPRData{
			CompressionRate:  ev.Rate,
			RateValid:        ev.RateValid,
			CompressionDepth: ev.Depth,
			QualityScore:     ev.Quality,
			InTargetBand:     ev.InTargetBand,
			Timestamp:        millis(ev.Timestamp),
		}
	}

	if e := st.Environment; e != nil {
		p.Device.Environment = &EnvironmentData{
			Temperature: e.Temperature,
			Humidity:    e.Humidity,
			Pressure:    e.Pressure,
			Altitude:    e.Altitude,
			Timestamp:   millis(e.Timestamp),
		}
	}

	if a := b.Alert; a != nil {
		em := &Emergency{
			ID:        a.ID,
			DeviceID:  b.DeviceID,
			Kind:      string(a.Kind),
			Status:    "active",
			Timestamp: millis(a.Timestamp),
		}
		if a.Location != nil && a.Location.Valid() {
			em.Location = &Location{Latitude: a.Location.Latitude, Longitude: a.Location.Longitude}
		}
		p.Emergency = em
	}
	return p
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

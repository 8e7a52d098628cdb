// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gesture

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/cpr_assist/internal/gps"
)

// Code is a direction reported by the gesture engine.
type Code int

const (
	None Code = iota
	Up
	Down
	Left
	Right
)

var codeNames = map[Code]string{
	None:  "NONE",
	Up:    "UP",
	Down:  "DOWN",
	Left:  "LEFT",
	Right: "RIGHT",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// MarshalText encodes the code by name.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts any form ParseCode does.
func (c *Code) UnmarshalText(text []byte) error {
	code, err := ParseCode(string(text))
	if err != nil {
		return err
	}
	*c = code
	return nil
}

// ParseCode accepts "UP", "up" and the Arduino-style "APDS9960_UP".
func ParseCode(s string) (Code, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "APDS9960_")
	for code, n := range codeNames {
		if n == name {
			return code, nil
		}
	}
	return None, fmt.Errorf("unknown gesture code %q", s)
}

// Sample is one gesture/proximity read.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Code      Code      `json:"gesture"`
	Proximity int       `json:"proximity"` // 0..255, larger is nearer
	Valid     bool      `json:"valid"`
}

// Invalid returns the sentinel sample for a failed read at t.
func Invalid(t time.Time) Sample {
	return Sample{Timestamp: t}
}

// AlertKind names the reason an alert was raised.
type AlertKind string

const KindSOS AlertKind = "SOS"

// Alert is raised once per confirmed SOS gesture.
type Alert struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      AlertKind `json:"kind"`
	Location  *gps.Fix  `json:"location,omitempty"`
}

// NewSOS builds an SOS alert raised at t.
func NewSOS(t time.Time) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Timestamp: t,
		Kind:      KindSOS,
	}
}

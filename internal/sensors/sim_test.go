// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/cpr_assist/internal/gesture"
)

// stepClock is advanced by hand.
type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestSimGestures_ReplaysOnce(t *testing.T) {
	clock := &stepClock{now: t0}
	g := NewSimGestures(SOSScript(time.Second, 10*time.Second, 2), clock.Now)

	var got []gesture.Code
	for i := 0; i < 2500; i++ { // 25 s at 10 ms
		if code, _, _ := g.ReadGesture(); code != gesture.None {
			got = append(got, code)
		}
		clock.now = clock.now.Add(10 * time.Millisecond)
	}
	assert.Equal(t, []gesture.Code{gesture.Up, gesture.Down, gesture.Up, gesture.Down}, got)
}

func TestSimMotion_Waveform(t *testing.T) {
	clock := &stepClock{now: t0}
	m := NewSimMotion(120, 5, clock.Now)
	m.Noise = 0
	m.Cycles = 2

	r, _ := m.ReadAccelGyro()
	assert.InDelta(t, standardGravity, r.Accel.Z, 1e-9, "compression starts from rest")

	// a quarter period in: the deepest point of the acceleration lobe
	clock.now = t0.Add(125 * time.Millisecond)
	r, _ = m.ReadAccelGyro()
	omega := 4 * 3.141592653589793
	assert.InDelta(t, standardGravity-0.025*omega*omega, r.Accel.Z, 1e-6)

	// during the pause after two cycles
	clock.now = t0.Add(2 * time.Second)
	r, _ = m.ReadAccelGyro()
	assert.InDelta(t, standardGravity, r.Accel.Z, 1e-9)
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"math/rand"
	"time"

	"github.com/relabs-tech/cpr_assist/internal/env"
	"github.com/relabs-tech/cpr_assist/internal/gesture"
	"github.com/relabs-tech/cpr_assist/internal/imu"
)

// SimMotion synthesises a chest-mounted accelerometer during CPR: gravity on
// Z plus a sinusoidal compression at Rate/min swinging DepthCm, in bursts of
// Cycles compressions separated by Pause. Noise is the 1σ noise in m/s².
type SimMotion struct {
	Rate    float64
	DepthCm float64
	Cycles  int
	Pause   time.Duration
	Noise   float64

	clock func() time.Time
	start time.Time
}

// NewSimMotion starts the waveform at the first read.
func NewSimMotion(rate, depthCm float64, clock func() time.Time) *SimMotion {
	return &SimMotion{
		Rate:    rate,
		DepthCm: depthCm,
		Cycles:  30,
		Pause:   3 * time.Second,
		Noise:   0.05,
		clock:   clock,
	}
}

// ReadAccelGyro implements MotionSource.
func (s *SimMotion) ReadAccelGyro() (imu.Reading, error) {
	now := s.clock()
	if s.start.IsZero() {
		s.start = now
	}

	period := 60.0 / s.Rate
	omega := 2 * math.Pi / period
	amp := s.DepthCm / 100 * omega * omega / 2

	burst := float64(s.Cycles) * period
	cycle := burst + s.Pause.Seconds()
	t := math.Mod(now.Sub(s.start).Seconds(), cycle)

	a := 0.0
	if t < burst {
		a = -amp * math.Sin(omega*t)
	}
	return imu.Reading{
		Accel: imu.Vec3{
			X: s.noise(),
			Y: s.noise(),
			Z: standardGravity + a + s.noise(),
		},
	}, nil
}

func (s *SimMotion) noise() float64 {
	if s.Noise == 0 {
		return 0
	}
	return rand.NormFloat64() * s.Noise
}

// ScriptedGesture is one gesture at an offset from the first read.
type ScriptedGesture struct {
	At   time.Duration
	Code gesture.Code
}

// SimGestures replays a gesture script; each entry is reported once.
type SimGestures struct {
	script []ScriptedGesture
	next   int
	clock  func() time.Time
	start  time.Time
}

func NewSimGestures(script []ScriptedGesture, clock func() time.Time) *SimGestures {
	return &SimGestures{script: script, clock: clock}
}

// SOSScript performs UP then DOWN 200 ms apart, first at the given offset
// and then every interval, n times.
func SOSScript(first, interval time.Duration, n int) []ScriptedGesture {
	var out []ScriptedGesture
	for i := 0; i < n; i++ {
		at := first + time.Duration(i)*interval
		out = append(out,
			ScriptedGesture{At: at, Code: gesture.Up},
			ScriptedGesture{At: at + 200*time.Millisecond, Code: gesture.Down},
		)
	}
	return out
}

// ReadGesture implements GestureSource.
func (g *SimGestures) ReadGesture() (gesture.Code, int, error) {
	now := g.clock()
	if g.start.IsZero() {
		g.start = now
	}
	if g.next < len(g.script) && now.Sub(g.start) >= g.script[g.next].At {
		code := g.script[g.next].Code
		g.next++
		return code, 180, nil
	}
	return gesture.None, 0, nil
}

// SimEnv reports a room near sea level with a slow temperature drift.
type SimEnv struct {
	clock func() time.Time
	start time.Time
}

func NewSimEnv(clock func() time.Time) *SimEnv {
	return &SimEnv{clock: clock}
}

// ReadEnv implements EnvSource.
func (e *SimEnv) ReadEnv() (env.Sample, error) {
	now := e.clock()
	if e.start.IsZero() {
		e.start = now
	}
	minutes := now.Sub(e.start).Minutes()
	pressure := 1008.0
	return env.Sample{
		Temperature: 24.0 + 0.5*math.Sin(minutes/10),
		Humidity:    65.0,
		Pressure:    pressure,
		Altitude:    altitude(pressure),
		HasHumidity: true,
		HasPressure: true,
	}, nil
}

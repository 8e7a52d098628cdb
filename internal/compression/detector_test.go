// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package compression

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/imu"
)

const sampleStep = 10 * time.Millisecond

var traceStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// testConfig uses an unfiltered signal and a threshold a 5 cm compression
// at 90-120/min clears.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.CompressionThreshold = -1.5
	cfg.AccelFilterAlpha = 1
	cfg.BaselineAlpha = 0
	cfg.CompressionDebounce = 60 * time.Millisecond
	cfg.DescentTimeout = 3 * time.Second
	cfg.CompressionPause = 2 * time.Second
	return cfg
}

// cprTrace returns 200 ms of rest, cycles of sinusoidal compression whose
// displacement swings depthCm at rate compressions/min, then 500 ms of rest.
func cprTrace(start time.Time, rate, depthCm float64, cycles int) []imu.Sample {
	period := 60.0 / rate
	omega := 2 * math.Pi / period
	amp := depthCm / 100 * omega * omega / 2

	var out []imu.Sample
	t := start
	add := func(a float64) {
		out = append(out, imu.Sample{Timestamp: t, Accel: imu.Vec3{Z: a}, Valid: true})
		t = t.Add(sampleStep)
	}

	for i := 0; i < 20; i++ {
		add(0)
	}
	t0 := t
	total := time.Duration(float64(cycles) * period * float64(time.Second))
	for t.Sub(t0) < total {
		add(-amp * math.Sin(omega*t.Sub(t0).Seconds()))
	}
	for i := 0; i < 50; i++ {
		add(0)
	}
	return out
}

// valueTrace turns raw axis values into samples spaced sampleStep apart.
func valueTrace(start time.Time, values ...float64) []imu.Sample {
	out := make([]imu.Sample, len(values))
	for i, v := range values {
		out[i] = imu.Sample{
			Timestamp: start.Add(time.Duration(i) * sampleStep),
			Accel:     imu.Vec3{Z: v},
			Valid:     true,
		}
	}
	return out
}

// withOffset adds a constant resting offset such as gravity to every sample.
func withOffset(samples []imu.Sample, offset float64) []imu.Sample {
	for i := range samples {
		samples[i].Accel.Z += offset
	}
	return samples
}

func run(d *Detector, samples []imu.Sample) []Event {
	var events []Event
	for _, s := range samples {
		if ev, ok := d.Process(s); ok {
			events = append(events, ev)
		}
	}
	return events
}

func TestDetector_FiveCentimetresAt110(t *testing.T) {
	d := NewDetector(testConfig())
	events := run(d, cprTrace(traceStart, 110, 5, 5))

	require.Len(t, events, 5)

	first := events[0]
	assert.False(t, first.RateValid, "first cycle has no previous cycle")
	assert.Zero(t, first.Rate)
	assert.InDelta(t, 5.0, first.Depth, 0.1)
	assert.True(t, first.InTargetBand, "first cycle is classified on depth alone")

	for i, ev := range events[1:] {
		assert.True(t, ev.RateValid, "event %d", i+1)
		assert.InDelta(t, 110, ev.Rate, 0.5, "event %d", i+1)
		assert.InDelta(t, 5.0, ev.Depth, 0.1, "event %d", i+1)
		assert.True(t, ev.InTargetBand, "event %d", i+1)
		assert.Equal(t, 1.0, ev.Quality)
	}
	assert.Equal(t, Idle, d.State())
}

func TestDetector_RateTooLow(t *testing.T) {
	d := NewDetector(testConfig())
	events := run(d, cprTrace(traceStart, 90, 5, 4))

	require.Len(t, events, 4)
	for _, ev := range events[1:] {
		assert.InDelta(t, 90, ev.Rate, 0.5)
		assert.InDelta(t, 5.0, ev.Depth, 0.1)
		assert.False(t, ev.InTargetBand)
		assert.InDelta(t, 0.85, ev.Quality, 1e-9)
	}
}

func TestDetector_TooShallow(t *testing.T) {
	d := NewDetector(testConfig())
	events := run(d, cprTrace(traceStart, 110, 3, 3))

	require.Len(t, events, 3)
	for _, ev := range events {
		assert.InDelta(t, 3.0, ev.Depth, 0.1)
		assert.False(t, ev.InTargetBand)
	}
}

func TestDetector_OneEventPerCycle(t *testing.T) {
	for _, rate := range []float64{90, 100, 110, 120, 140} {
		for _, depth := range []float64{4, 5, 6.5} {
			for _, cycles := range []int{1, 2, 7} {
				name := fmt.Sprintf("rate=%v/depth=%v/cycles=%d", rate, depth, cycles)
				t.Run(name, func(t *testing.T) {
					d := NewDetector(testConfig())
					events := run(d, cprTrace(traceStart, rate, depth, cycles))
					assert.Len(t, events, cycles)
				})
			}
		}
	}
}

func TestDetector_SkipsInvalidSamples(t *testing.T) {
	clean := cprTrace(traceStart, 110, 5, 3)

	var noisy []imu.Sample
	for i, s := range clean {
		noisy = append(noisy, s)
		if i%3 == 0 {
			// a failed read carries garbage that must not reach the state machine
			noisy = append(noisy, imu.Sample{Timestamp: s.Timestamp.Add(time.Millisecond), Accel: imu.Vec3{Z: -50}})
		}
	}

	want := run(NewDetector(testConfig()), clean)
	got := run(NewDetector(testConfig()), noisy)
	assert.Equal(t, want, got)
}

func TestDetector_InvalidSampleDoesNotAdvance(t *testing.T) {
	d := NewDetector(testConfig())
	_, ok := d.Process(imu.Invalid(traceStart))
	assert.False(t, ok)
	assert.Equal(t, Idle, d.State())

	d.Process(valueTrace(traceStart, -3)[0])
	assert.Equal(t, Descending, d.State())

	d.Process(imu.Invalid(traceStart.Add(10 * time.Second)))
	assert.Equal(t, Descending, d.State(), "a stale invalid sample must not trip the timeout")
}

func TestDetector_DiscardsSlowDescent(t *testing.T) {
	d := NewDetector(testConfig())

	values := []float64{0, 0}
	for i := 0; i < 400; i++ { // 4 s below threshold
		values = append(values, -3)
	}
	values = append(values, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)

	events := run(d, valueTrace(traceStart, values...))
	assert.Empty(t, events)
	assert.Equal(t, 1, d.Stats().Discarded)
	assert.Equal(t, 0, d.Stats().Total)
	assert.Equal(t, Idle, d.State())
}

func TestDetector_RearmsOnlyAfterRecovery(t *testing.T) {
	d := NewDetector(testConfig())

	values := []float64{0}
	for i := 0; i < 310; i++ { // just past the 3 s timeout
		values = append(values, -3)
	}
	samples := valueTrace(traceStart, values...)
	run(d, samples)
	require.Equal(t, 1, d.Stats().Discarded)

	// still below threshold: no new cycle starts
	next := samples[len(samples)-1].Timestamp.Add(sampleStep)
	d.Process(imu.Sample{Timestamp: next, Accel: imu.Vec3{Z: -3}, Valid: true})
	assert.Equal(t, Idle, d.State())

	// back above threshold, then a genuine lobe
	events := run(d, valueTrace(next.Add(sampleStep), 0, 0, -2, -4, -2, 0, 0, 0, 0, 0, 0, 0, 0))
	assert.Len(t, events, 1)
}

func TestDetector_ChatterIsOneCycle(t *testing.T) {
	d := NewDetector(testConfig())
	// rises above threshold briefly, dips again within the debounce window
	events := run(d, valueTrace(traceStart, 0, 0, -2, -4, -3, -1, -2, -1, 0, 0, 0, 0, 0, 0, 0, 0))
	assert.Len(t, events, 1)
}

func TestDetector_PauseRestartsRate(t *testing.T) {
	d := NewDetector(testConfig())

	first := cprTrace(traceStart, 110, 5, 2)
	resume := first[len(first)-1].Timestamp.Add(3 * time.Second)
	second := cprTrace(resume, 110, 5, 2)

	events := run(d, append(first, second...))
	require.Len(t, events, 4)
	assert.True(t, events[1].RateValid)
	assert.False(t, events[2].RateValid, "cycles after a pause start a new series")
	assert.True(t, events[3].RateValid)
}

func TestDetector_Stats(t *testing.T) {
	d := NewDetector(testConfig())
	run(d, cprTrace(traceStart, 110, 5, 4))

	stats := d.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 4, stats.InBand)
	assert.InDelta(t, 110, stats.AvgRate, 0.5)
	assert.InDelta(t, 5.0, stats.AvgDepth, 0.1)
	assert.InDelta(t, 1.0, stats.AvgQuality, 1e-9)
}

func TestDetector_Baseline(t *testing.T) {
	cfg := testConfig()
	cfg.BaselineAlpha = 0.5
	d := NewDetector(cfg)

	// a resting offset of +9.81 (gravity) is absorbed by the idle baseline
	var values []float64
	for i := 0; i < 40; i++ {
		values = append(values, 9.81)
	}
	values = append(values, 9.81-4, 9.81-6, 9.81-4, 9.81, 9.81, 9.81, 9.81, 9.81, 9.81, 9.81, 9.81)

	events := run(d, valueTrace(traceStart, values...))
	assert.Len(t, events, 1)
}

func TestDetector_DefaultFilteringLongSession(t *testing.T) {
	cfg := config.Default()
	cfg.CompressionThreshold = -1.5
	require.Equal(t, 0.6, cfg.AccelFilterAlpha)
	require.Equal(t, 0.01, cfg.BaselineAlpha)

	d := NewDetector(cfg)
	events := run(d, withOffset(cprTrace(traceStart, 110, 5, 40), 9.81))

	require.Len(t, events, 40)
	for i, ev := range events {
		assert.InDelta(t, 5.0, ev.Depth, 0.5, "event %d", i)
		assert.True(t, ev.InTargetBand, "event %d", i)
		if i > 0 {
			assert.InDelta(t, 110, ev.Rate, 1, "event %d", i)
		}
	}
	assert.Equal(t, 40, d.Stats().InBand)
}

func TestDetector_BaselineResumesAfterPause(t *testing.T) {
	cfg := config.Default()
	cfg.CompressionThreshold = -1.5
	d := NewDetector(cfg)

	samples := withOffset(cprTrace(traceStart, 110, 5, 3), 9.81)

	// the device settles at a new tilt once compressions stop
	at := samples[len(samples)-1].Timestamp.Add(sampleStep)
	for i := 0; i < 600; i++ {
		samples = append(samples, imu.Sample{Timestamp: at, Accel: imu.Vec3{Z: 11.81}, Valid: true})
		at = at.Add(sampleStep)
	}
	samples = append(samples, withOffset(cprTrace(at, 110, 5, 2), 11.81)...)

	events := run(d, samples)
	require.Len(t, events, 5)
	for i, ev := range events {
		assert.InDelta(t, 5.0, ev.Depth, 0.5, "event %d", i)
	}
	assert.False(t, events[3].RateValid)
}

func TestEstimateDepth(t *testing.T) {
	// 5 cm at 110/min: A = 0.025·ω², lobe below 1.5 m/s² for 2·acos(1.5/A)/ω
	omega := 2 * math.Pi / (60.0 / 110)
	amp := 0.025 * omega * omega
	below := time.Duration(2 * math.Acos(1.5/amp) / omega * float64(time.Second))

	assert.InDelta(t, 5.0, estimateDepth(-amp, -1.5, below), 0.01)
	assert.Zero(t, estimateDepth(-1.5, -1.5, below), "grazing the threshold gives no depth")
	assert.Zero(t, estimateDepth(-3, -1.5, 0))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "IDLE", Idle.String())
	assert.Equal(t, "DESCENDING", Descending.String())
	assert.Equal(t, "ASCENDING", Ascending.String())
}

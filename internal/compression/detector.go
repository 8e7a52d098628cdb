// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package compression

import (
	"math"
	"time"

	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/imu"
)

// State is the detector phase.
type State int

const (
	Idle State = iota
	Descending
	Ascending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Descending:
		return "DESCENDING"
	case Ascending:
		return "ASCENDING"
	}
	return "UNKNOWN"
}

// Event is emitted once per completed compression cycle.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	Depth        float64   `json:"depth_cm"`
	Rate         float64   `json:"rate_cpm"` // 0 when RateValid is false
	RateValid    bool      `json:"rate_valid"`
	InTargetBand bool      `json:"in_target_band"`
	Quality      float64   `json:"quality_score"`
}

// Detector turns filtered single-axis acceleration into compression events.
//
// The signal is low-pass filtered (ACCEL_FILTER_ALPHA) and a slow baseline is
// subtracted so gravity and mounting tilt drop out. The baseline follows the
// signal only at rest: while idle and with no cycle in the last
// COMPRESSION_PAUSE, so the recoil half of each cycle never feeds it.
//
// A cycle starts when the signal falls below COMPRESSION_THRESHOLD and its
// depth is estimated when it rises back above it; see estimateDepth.
type Detector struct {
	axis          string
	threshold     float64
	alpha         float64
	baselineAlpha float64
	debounce      time.Duration
	timeout       time.Duration
	pause         time.Duration
	bands         Bands

	state State
	armed bool

	smoothed   float64
	baseline   float64
	haveFilter bool

	prevAt   time.Time
	prevV    float64
	havePrev bool

	entryAt     time.Time
	peak        float64
	depth       float64
	rate        float64
	rateValid   bool
	settleSince time.Time

	lastCycleAt   time.Time
	haveLastCycle bool

	stats Stats
}

// NewDetector returns an idle detector using the CPR parameters of cfg.
func NewDetector(cfg *config.Config) *Detector {
	return &Detector{
		axis:          cfg.CompressionAxis,
		threshold:     cfg.CompressionThreshold,
		alpha:         cfg.AccelFilterAlpha,
		baselineAlpha: cfg.BaselineAlpha,
		debounce:      cfg.CompressionDebounce,
		timeout:       cfg.DescentTimeout,
		pause:         cfg.CompressionPause,
		bands:         BandsFrom(cfg),
		armed:         true,
	}
}

// State returns the current phase.
func (d *Detector) State() State {
	return d.state
}

// Stats returns the running session statistics.
func (d *Detector) Stats() Stats {
	return d.stats
}

// Process consumes one sample. It returns an event only when a cycle completes.
// Invalid samples are ignored and do not advance the state machine.
func (d *Detector) Process(s imu.Sample) (Event, bool) {
	if !s.Valid {
		return Event{}, false
	}

	v := d.filter(s.Accel.Axis(d.axis))
	t := s.Timestamp
	defer func() {
		d.prevAt, d.prevV, d.havePrev = t, v, true
	}()

	switch d.state {
	case Idle:
		if !d.armed {
			// a discarded slow movement must come back up before the next cycle
			d.armed = v >= d.threshold
		} else if v < d.threshold {
			d.entryAt = d.crossing(t, v)
			d.peak = v
			d.state = Descending
			return Event{}, false
		}
		if d.baselineAlpha > 0 && !d.inSeries(t) {
			d.baseline += d.baselineAlpha * (d.smoothed - d.baseline)
		}

	case Descending:
		if v < d.peak {
			d.peak = v
		}
		if t.Sub(d.entryAt) > d.timeout {
			d.stats.Discarded++
			d.state = Idle
			d.armed = false
			return Event{}, false
		}
		if v >= d.threshold {
			exitAt := d.crossing(t, v)
			d.depth = estimateDepth(d.peak, d.threshold, exitAt.Sub(d.entryAt))
			d.rate, d.rateValid = 0, false
			if d.haveLastCycle {
				if gap := d.entryAt.Sub(d.lastCycleAt); gap > 0 && gap <= d.pause {
					d.rate = 60000 / (float64(gap) / float64(time.Millisecond))
					d.rateValid = true
				}
			}
			d.settleSince = t
			d.state = Ascending
		}

	case Ascending:
		if v < d.threshold {
			// chatter below the threshold belongs to the same cycle
			d.state = Descending
			if v < d.peak {
				d.peak = v
			}
			return Event{}, false
		}
		// recoil overshoot above baseline counts as settled
		if t.Sub(d.settleSince) >= d.debounce {
			ev := Event{
				Timestamp:    t,
				Depth:        d.depth,
				Rate:         d.rate,
				RateValid:    d.rateValid,
				InTargetBand: d.bands.Classify(d.depth, d.rate, d.rateValid),
				Quality:      d.bands.Score(d.depth, d.rate, d.rateValid),
			}
			d.lastCycleAt, d.haveLastCycle = d.entryAt, true
			d.stats.add(ev)
			d.state = Idle
			return ev, true
		}
	}
	return Event{}, false
}

// Reset drops any partial cycle and the rate history. The baseline is kept.
func (d *Detector) Reset() {
	d.state = Idle
	d.armed = true
	d.haveLastCycle = false
	d.havePrev = false
}

// inSeries reports whether the last cycle began within the pause window before t.
func (d *Detector) inSeries(t time.Time) bool {
	return d.haveLastCycle && t.Sub(d.lastCycleAt) <= d.pause
}

func (d *Detector) filter(raw float64) float64 {
	if !d.haveFilter {
		d.smoothed = raw
		d.haveFilter = true
		if d.baselineAlpha > 0 {
			d.baseline = raw
		}
	} else {
		d.smoothed += d.alpha * (raw - d.smoothed)
	}
	return d.smoothed - d.baseline
}

// crossing interpolates the instant the signal crossed the threshold between
// the previous sample and (t, v).
func (d *Detector) crossing(t time.Time, v float64) time.Time {
	if !d.havePrev || d.prevV == v {
		return t
	}
	frac := (d.threshold - d.prevV) / (v - d.prevV)
	if frac < 0 || frac > 1 {
		return t
	}
	return d.prevAt.Add(time.Duration(frac * float64(t.Sub(d.prevAt))))
}

// estimateDepth returns the compression depth in cm from the descending lobe.
//
// The lobe is modelled as the trough of a sinusoidal acceleration a(t) = -A·sin(ωt)
// whose displacement swings D = 2A/ω² peak to peak. A is the lobe peak and ω
// follows from the time τ the lobe spends below threshold h:
// cos(ωτ/2) = h/A, so ω = 2·acos(h/A)/τ.
func estimateDepth(peak, threshold float64, below time.Duration) float64 {
	a := math.Abs(peak)
	h := math.Abs(threshold)
	tau := below.Seconds()
	if tau <= 0 || a <= h {
		return 0
	}
	omega := 2 * math.Acos(h/a) / tau
	if omega <= 0 {
		return 0
	}
	return 2 * a / (omega * omega) * 100
}

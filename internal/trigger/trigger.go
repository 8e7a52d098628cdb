// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package trigger recognises the SOS hand gesture: the configured pair of
// directions, in order, within a short window.
package trigger

import (
	"time"

	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/gesture"
)

// Trigger turns a stream of gesture samples into at most one active alert.
//
// A start gesture becomes pending. The complementary gesture completes the
// pair if it arrives within the window; otherwise the pending gesture expires.
// With strict adjacency any other direction in between clears it. NONE reads
// never break a pair.
//
// Once an alert fires, every sample is ignored until Rearm.
type Trigger struct {
	first         gesture.Code
	second        gesture.Code
	acceptReverse bool
	window        time.Duration
	strict        bool

	pending     gesture.Code
	pendingAt   time.Time
	havePending bool

	active bool
}

// New returns an armed trigger configured from cfg.
func New(cfg *config.Config) *Trigger {
	return &Trigger{
		first:         cfg.SOSGestureUp,
		second:        cfg.SOSGestureDown,
		acceptReverse: cfg.SOSAcceptReverse,
		window:        cfg.GestureWindow,
		strict:        cfg.GestureStrictAdjacency,
	}
}

// Process consumes one gesture sample and returns an alert when it completes
// the SOS pair. Invalid samples are skipped.
func (g *Trigger) Process(s gesture.Sample) (gesture.Alert, bool) {
	if !s.Valid || g.active {
		return gesture.Alert{}, false
	}

	t := s.Timestamp
	if g.havePending && t.Sub(g.pendingAt) > g.window {
		g.havePending = false
	}
	if s.Code == gesture.None {
		return gesture.Alert{}, false
	}

	if g.havePending && s.Code == g.complement(g.pending) {
		g.havePending = false
		g.active = true
		return gesture.NewSOS(t), true
	}

	switch {
	case g.isStart(s.Code):
		g.pending, g.pendingAt, g.havePending = s.Code, t, true
	case g.strict:
		g.havePending = false
	}
	return gesture.Alert{}, false
}

// Active reports whether an alert is in progress.
func (g *Trigger) Active() bool {
	return g.active
}

// Pending returns the gesture waiting for its complement, if any.
func (g *Trigger) Pending() (gesture.Code, bool) {
	return g.pending, g.havePending
}

// Rearm ends the active alert. The control loop calls it once the actuator
// sequence has finished or faulted.
func (g *Trigger) Rearm() {
	g.active = false
	g.havePending = false
}

func (g *Trigger) isStart(c gesture.Code) bool {
	return c == g.first || (g.acceptReverse && c == g.second)
}

func (g *Trigger) complement(c gesture.Code) gesture.Code {
	switch {
	case c == g.first:
		return g.second
	case c == g.second && g.acceptReverse:
		return g.first
	}
	return gesture.None
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/gesture"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func sample(offset time.Duration, code gesture.Code) gesture.Sample {
	return gesture.Sample{Timestamp: t0.Add(offset), Code: code, Valid: true}
}

type step struct {
	at   time.Duration
	code gesture.Code
}

func feed(g *Trigger, steps ...step) []gesture.Alert {
	var alerts []gesture.Alert
	for _, s := range steps {
		if a, ok := g.Process(sample(s.at, s.code)); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestTrigger_UpThenDownWithinWindow(t *testing.T) {
	g := New(config.Default())

	alerts := feed(g, step{0, gesture.Up}, step{ms(200), gesture.Down})

	require.Len(t, alerts, 1)
	assert.Equal(t, t0.Add(ms(200)), alerts[0].Timestamp)
	assert.Equal(t, gesture.KindSOS, alerts[0].Kind)
	assert.NotEmpty(t, alerts[0].ID)
	assert.True(t, g.Active())
}

func TestTrigger_Window(t *testing.T) {
	tests := []struct {
		name  string
		gap   time.Duration
		fires bool
	}{
		{"well inside", ms(100), true},
		{"at the edge", ms(500), true},
		{"just outside", ms(501), false},
		{"long after", 2 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(config.Default())
			alerts := feed(g, step{0, gesture.Up}, step{tt.gap, gesture.Down})
			assert.Equal(t, tt.fires, len(alerts) == 1)
		})
	}
}

func TestTrigger_PendingExpires(t *testing.T) {
	g := New(config.Default())
	feed(g, step{0, gesture.Up})
	code, ok := g.Pending()
	assert.True(t, ok)
	assert.Equal(t, gesture.Up, code)

	// a NONE read after the window clears the pending gesture
	feed(g, step{ms(600), gesture.None})
	_, ok = g.Pending()
	assert.False(t, ok)
}

func TestTrigger_ReverseOrder(t *testing.T) {
	cfg := config.Default()
	alerts := feed(New(cfg), step{0, gesture.Down}, step{ms(150), gesture.Up})
	assert.Len(t, alerts, 1)

	cfg.SOSAcceptReverse = false
	alerts = feed(New(cfg), step{0, gesture.Down}, step{ms(150), gesture.Up})
	assert.Empty(t, alerts)
}

func TestTrigger_Adjacency(t *testing.T) {
	tests := []struct {
		name   string
		strict bool
		steps  []step
		want   int
	}{
		{
			name:   "adjacent pair, strict",
			strict: true,
			steps:  []step{{0, gesture.Up}, {ms(100), gesture.Down}},
			want:   1,
		},
		{
			name:   "NONE in between, strict",
			strict: true,
			steps:  []step{{0, gesture.Up}, {ms(50), gesture.None}, {ms(100), gesture.None}, {ms(150), gesture.Down}},
			want:   1,
		},
		{
			name:   "LEFT in between, strict",
			strict: true,
			steps:  []step{{0, gesture.Up}, {ms(100), gesture.Left}, {ms(200), gesture.Down}},
			want:   0,
		},
		{
			name:   "LEFT in between, lenient",
			strict: false,
			steps:  []step{{0, gesture.Up}, {ms(100), gesture.Left}, {ms(200), gesture.Down}},
			want:   1,
		},
		{
			name:   "repeated start restarts the window",
			strict: true,
			steps:  []step{{0, gesture.Up}, {ms(400), gesture.Up}, {ms(800), gesture.Down}},
			want:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.GestureStrictAdjacency = tt.strict
			assert.Len(t, feed(New(cfg), tt.steps...), tt.want)
		})
	}
}

func TestTrigger_IgnoredWhileActive(t *testing.T) {
	g := New(config.Default())
	require.Len(t, feed(g, step{0, gesture.Up}, step{ms(100), gesture.Down}), 1)

	// a second pair during the actuator sequence is ignored
	assert.Empty(t, feed(g, step{ms(300), gesture.Up}, step{ms(400), gesture.Down}))
	_, pending := g.Pending()
	assert.False(t, pending, "samples are not buffered while active")

	g.Rearm()
	assert.False(t, g.Active())
	assert.Len(t, feed(g, step{ms(1000), gesture.Up}, step{ms(1100), gesture.Down}), 1)
}

func TestTrigger_SkipsInvalidSamples(t *testing.T) {
	g := New(config.Default())
	g.Process(sample(0, gesture.Up))
	_, ok := g.Process(gesture.Sample{Timestamp: t0.Add(ms(100)), Code: gesture.Down})
	assert.False(t, ok)
	_, pending := g.Pending()
	assert.True(t, pending)
}

func TestTrigger_CustomPair(t *testing.T) {
	cfg := config.Default()
	cfg.SOSGestureUp = gesture.Left
	cfg.SOSGestureDown = gesture.Right

	assert.Empty(t, feed(New(cfg), step{0, gesture.Up}, step{ms(100), gesture.Down}))
	assert.Len(t, feed(New(cfg), step{0, gesture.Left}, step{ms(100), gesture.Right}), 1)
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/cpr_assist/internal/status"
)

const (
	oledWidth  = 128
	oledHeight = 64
	lineHeight = 13
)

// Panel is the part of ssd1306.Dev the OLED uses.
type Panel interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// OLED draws the snapshot on a 128x64 SSD1306. Drawing happens on its own
// goroutine; Report only hands over the latest snapshot.
type OLED struct {
	panel  Panel
	log    *zap.Logger
	latest chan status.Snapshot
}

// NewOLED opens the SSD1306 on bus and shows the splash screen.
func NewOLED(bus i2c.Bus, log *zap.Logger) (*OLED, error) {
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	o := newOLED(dev, log)
	if err := o.draw(splashLines()); err != nil {
		log.Warn("display: error showing splash", zap.Error(err))
	}
	return o, nil
}

func newOLED(panel Panel, log *zap.Logger) *OLED {
	return &OLED{panel: panel, log: log, latest: make(chan status.Snapshot, 1)}
}

// Report implements Reporter. An undrawn snapshot is replaced by the newer one.
func (o *OLED) Report(s status.Snapshot) {
	for {
		select {
		case o.latest <- s:
			return
		default:
		}
		select {
		case <-o.latest:
		default:
		}
	}
}

// Run draws snapshots until ctx is done.
func (o *OLED) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-o.latest:
			if err := o.draw(statusLines(s)); err != nil {
				o.log.Warn("display: error updating", zap.Error(err))
			}
		}
	}
}

func (o *OLED) draw(lines []string) error {
	return o.panel.Draw(o.panel.Bounds(), render(lines), image.Point{})
}

// render lays out up to four lines of 7x13 text.
func render(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledWidth, oledHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if i >= oledHeight/lineHeight {
			break
		}
		drawer.Dot = fixed.P(0, (i+1)*lineHeight)
		drawer.DrawBytes([]byte(line))
	}
	return img
}

func splashLines() []string {
	return []string{"  ResQPulse", " CPR assist", "   ready"}
}

// statusLines is the text shown for s; 18 columns fit the panel.
func statusLines(s status.Snapshot) []string {
	if s.AlertActive {
		return []string{
			"*** SOS SENT ***",
			servoLine(s),
			alertLine(s.AlertUplink),
			flagLine(s.Flags),
		}
	}

	lines := []string{fmt.Sprintf("CPR #%d %s", s.Session.Total, s.CompressionState)}
	if ev := s.LastCompression; ev != nil {
		band := "LOW"
		switch {
		case ev.InTargetBand && !ev.RateValid:
			band = "OK depth" // first cycle of a series has no rate yet
		case ev.InTargetBand:
			band = "OK"
		}
		rate := "---"
		if ev.RateValid {
			rate = fmt.Sprintf("%3.0f", ev.Rate)
		}
		lines = append(lines,
			fmt.Sprintf("D:%.1fcm R:%s", ev.Depth, rate),
			fmt.Sprintf("Q:%3.0f%% %s", ev.Quality*100, band))
	} else {
		lines = append(lines, "Waiting...", "")
	}
	return append(lines, flagLine(s.Flags))
}

func servoLine(s status.Snapshot) string {
	switch {
	case s.Actuator.Fault:
		return "servo FAULT"
	case s.Actuator.IsMoving:
		return fmt.Sprintf("servo rot %d", s.Actuator.RotationsCompleted+1)
	}
	return "servo done"
}

func alertLine(a status.AlertUplink) string {
	switch a {
	case status.AlertDelivered:
		return "uplink OK"
	case status.AlertPending:
		return "uplink..."
	case status.AlertUplinkFailed, status.AlertLocalOnly:
		return "LOCAL ONLY"
	}
	return ""
}

func flagLine(f status.Flags) string {
	switch {
	case f.MotionSensorFault:
		return "! motion sensor"
	case f.ActuatorFault:
		return "! servo fault"
	case f.GestureSensorFault:
		return "! gesture sensor"
	case f.UplinkDown:
		return "! offline"
	case f.EnvSensorFault:
		return "! env sensor"
	}
	return ""
}

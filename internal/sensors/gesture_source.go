// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/cpr_assist/internal/gesture"
)

// APDS9960 registers
const (
	apdsRegEnable  = 0x80
	apdsRegID      = 0x92
	apdsRegPData   = 0x9C
	apdsRegGPENTH  = 0xA0
	apdsRegGEXTH   = 0xA1
	apdsRegGConf1  = 0xA2
	apdsRegGConf2  = 0xA3
	apdsRegGFLvl   = 0xAE
	apdsRegGStatus = 0xAF
	apdsRegGFIFOU  = 0xFC

	apdsEnablePON = 0x01
	apdsEnablePEN = 0x04
	apdsEnableGEN = 0x40

	apdsGStatusGValid = 0x01

	gestureEnterThreshold = 40
	gestureExitThreshold  = 30
	gestureThresholdOut   = 10 // datasets with any channel at or below this are ignored
	gestureSensitivity    = 50 // minimum ratio swing for a direction
	maxGestureDatasets    = 128
)

// APDS9960 is the proximity/gesture sensor. Datasets are collected from
// the FIFO while the engine reports valid data and decoded once it stops.
type APDS9960 struct {
	dev      *i2c.Dev
	datasets [][4]byte
	fifo     [32 * 4]byte
}

// NewAPDS9960 enables proximity and the gesture engine at addr.
func NewAPDS9960(bus i2c.Bus, addr uint16, log *zap.Logger) (*APDS9960, error) {
	a := &APDS9960{dev: &i2c.Dev{Bus: bus, Addr: addr}}

	var id [1]byte
	if err := a.dev.Tx([]byte{apdsRegID}, id[:]); err != nil {
		return nil, fmt.Errorf("APDS9960 at 0x%02X: ID: %w", addr, err)
	}
	if id[0] != 0xAB && id[0] != 0xA8 {
		return nil, fmt.Errorf("APDS9960 at 0x%02X: unexpected ID 0x%02X", addr, id[0])
	}

	writes := []struct {
		reg, val byte
	}{
		{apdsRegEnable, 0x00},
		{apdsRegGPENTH, gestureEnterThreshold},
		{apdsRegGEXTH, gestureExitThreshold},
		{apdsRegGConf1, 0x40}, // interrupt after 4 datasets
		{apdsRegGConf2, 0x41}, // 4x gain, 2.8 ms wait
		{apdsRegEnable, apdsEnablePON | apdsEnablePEN | apdsEnableGEN},
	}
	for _, w := range writes {
		if err := a.dev.Tx([]byte{w.reg, w.val}, nil); err != nil {
			return nil, fmt.Errorf("APDS9960 at 0x%02X: write 0x%02X: %w", addr, w.reg, err)
		}
	}

	log.Info("APDS9960 initialized", zap.String("addr", fmt.Sprintf("0x%02X", addr)))
	return a, nil
}

// ReadGesture implements GestureSource.
func (a *APDS9960) ReadGesture() (gesture.Code, int, error) {
	var b [1]byte
	if err := a.dev.Tx([]byte{apdsRegPData}, b[:]); err != nil {
		return gesture.None, 0, readError("APDS9960 proximity", err)
	}
	proximity := int(b[0])

	if err := a.dev.Tx([]byte{apdsRegGStatus}, b[:]); err != nil {
		return gesture.None, proximity, readError("APDS9960 gesture status", err)
	}

	if b[0]&apdsGStatusGValid == 0 {
		if len(a.datasets) == 0 {
			return gesture.None, proximity, nil
		}
		code := decodeGesture(a.datasets)
		a.datasets = a.datasets[:0]
		return code, proximity, nil
	}

	if err := a.dev.Tx([]byte{apdsRegGFLvl}, b[:]); err != nil {
		return gesture.None, proximity, readError("APDS9960 FIFO level", err)
	}
	n := int(b[0])
	if n == 0 {
		return gesture.None, proximity, nil
	}
	if n > len(a.fifo)/4 {
		n = len(a.fifo) / 4
	}
	buf := a.fifo[:n*4]
	if err := a.dev.Tx([]byte{apdsRegGFIFOU}, buf); err != nil {
		return gesture.None, proximity, readError("APDS9960 FIFO", err)
	}
	for i := 0; i < n && len(a.datasets) < maxGestureDatasets; i++ {
		a.datasets = append(a.datasets, [4]byte{buf[i*4], buf[i*4+1], buf[i*4+2], buf[i*4+3]})
	}
	return gesture.None, proximity, nil
}

// decodeGesture compares the up/down and left/right balance of the first
// and last usable datasets (U, D, L, R). A rising U-D ratio decodes as DOWN
// and a rising L-R ratio as RIGHT.
func decodeGesture(datasets [][4]byte) gesture.Code {
	var first, last [4]byte
	found := 0
	for _, d := range datasets {
		if d[0] > gestureThresholdOut && d[1] > gestureThresholdOut &&
			d[2] > gestureThresholdOut && d[3] > gestureThresholdOut {
			if found == 0 {
				first = d
			}
			last = d
			found++
		}
	}
	if found < 2 {
		return gesture.None
	}

	ratio := func(a, b byte) int {
		return (int(a) - int(b)) * 100 / (int(a) + int(b))
	}
	ud := ratio(last[0], last[1]) - ratio(first[0], first[1])
	lr := ratio(last[2], last[3]) - ratio(first[2], first[3])

	abs := func(v int) int {
		if v < 0 {
			return -v
		}
		return v
	}
	switch {
	case abs(ud) < gestureSensitivity && abs(lr) < gestureSensitivity:
		return gesture.None
	case abs(ud) >= abs(lr):
		if ud > 0 {
			return gesture.Down
		}
		return gesture.Up
	case lr > 0:
		return gesture.Right
	}
	return gesture.Left
}

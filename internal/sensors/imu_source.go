// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/cpr_assist/internal/imu"
)

// MPU6050 registers
const (
	mpuRegConfig      = 0x1A
	mpuRegGyroConfig  = 0x1B
	mpuRegAccelConfig = 0x1C
	mpuRegAccelXOutH  = 0x3B // start of the 14-byte accel/temp/gyro block
	mpuRegPwrMgmt1    = 0x6B
	mpuRegWhoAmI      = 0x75

	mpuWhoAmI = 0x68

	mpuDLPF44Hz      = 0x03
	mpuAccelScale2G  = 16384.0 // LSB/g at ±2 g
	mpuGyroScale250  = 131.0   // LSB/(°/s) at ±250 °/s
	standardGravity  = 9.80665
	mpuPwrWakePLLGyX = 0x01 // wake, clock from the X gyro PLL
)

// MPU6050 is the motion sensor on the I2C bus.
type MPU6050 struct {
	dev *i2c.Dev
	buf [14]byte
}

// NewMPU6050 wakes the sensor at addr and sets ±2 g, ±250 °/s and a 44 Hz
// low-pass filter.
func NewMPU6050(bus i2c.Bus, addr uint16, log *zap.Logger) (*MPU6050, error) {
	m := &MPU6050{dev: &i2c.Dev{Bus: bus, Addr: addr}}

	id, err := m.readReg(mpuRegWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("MPU6050 at 0x%02X: WHO_AM_I: %w", addr, err)
	}
	if id != mpuWhoAmI {
		// some clones answer 0x70 or 0x72; they share the register layout
		log.Warn("MPU6050 unexpected WHO_AM_I", zap.String("who_am_i", fmt.Sprintf("0x%02X", id)))
	}

	writes := []struct {
		reg, val byte
	}{
		{mpuRegPwrMgmt1, mpuPwrWakePLLGyX},
		{mpuRegConfig, mpuDLPF44Hz},
		{mpuRegGyroConfig, 0x00},
		{mpuRegAccelConfig, 0x00},
	}
	for _, w := range writes {
		if err := m.dev.Tx([]byte{w.reg, w.val}, nil); err != nil {
			return nil, fmt.Errorf("MPU6050 at 0x%02X: write 0x%02X: %w", addr, w.reg, err)
		}
	}

	log.Info("MPU6050 initialized",
		zap.String("addr", fmt.Sprintf("0x%02X", addr)),
		zap.String("accel_range", "±2g"),
		zap.String("gyro_range", "±250°/s"))
	return m, nil
}

// ReadAccelGyro implements MotionSource with one burst read.
func (m *MPU6050) ReadAccelGyro() (imu.Reading, error) {
	if err := m.dev.Tx([]byte{mpuRegAccelXOutH}, m.buf[:]); err != nil {
		return imu.Reading{}, readError("MPU6050", err)
	}
	return decodeMPU6050(m.buf[:]), nil
}

func (m *MPU6050) readReg(reg byte) (byte, error) {
	var b [1]byte
	if err := m.dev.Tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// decodeMPU6050 converts the big-endian accel/temp/gyro block to m/s² and °/s.
func decodeMPU6050(b []byte) imu.Reading {
	word := func(i int) float64 {
		return float64(int16(binary.BigEndian.Uint16(b[i:])))
	}
	accel := func(i int) float64 {
		return word(i) / mpuAccelScale2G * standardGravity
	}
	gyro := func(i int) float64 {
		return word(i) / mpuGyroScale250
	}
	return imu.Reading{
		Accel:   imu.Vec3{X: accel(0), Y: accel(2), Z: accel(4)},
		Gyro:    imu.Vec3{X: gyro(8), Y: gyro(10), Z: gyro(12)},
		HasGyro: true,
	}
}

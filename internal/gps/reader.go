// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"
)

// Reader keeps the last valid fix from an NMEA receiver. It runs in its own
// goroutine; the control loop only calls Latest, which never blocks on I/O.
type Reader struct {
	src io.Reader
	log *zap.Logger

	mu    sync.RWMutex
	fix   Fix
	valid bool
}

// OpenSerial opens the receiver's serial port, 8N1.
func OpenSerial(portName string, baudRate int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open GPS serial port %s: %w", portName, err)
	}
	return port, nil
}

// NewReader reads NMEA sentences from src.
func NewReader(src io.Reader, log *zap.Logger) *Reader {
	return &Reader{src: src, log: log}
}

// Latest returns the last fix the receiver flagged valid.
func (r *Reader) Latest() (Fix, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fix, r.valid
}

// Run consumes sentences until src fails or ctx is done. Closing the
// underlying port is how a blocked read is interrupted.
func (r *Reader) Run(ctx context.Context) error {
	reader := bufio.NewReader(r.src)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("GPS read: %w", err)
		}

		fix, ok := parseLine(line, time.Now())
		if !ok {
			continue
		}
		if !fix.Valid() {
			r.log.Debug("GPS fix void", zap.String("time", fix.Time))
			continue
		}

		r.mu.Lock()
		first := !r.valid
		r.fix, r.valid = fix, true
		r.mu.Unlock()

		if first {
			r.log.Info("GPS fix acquired",
				zap.Float64("lat", fix.Latitude),
				zap.Float64("lon", fix.Longitude))
		}
	}
}

// parseLine turns an RMC sentence into a Fix. Other sentence types and
// garbled lines are ignored.
func parseLine(line string, receivedAt time.Time) (Fix, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Fix{}, false
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false
	}
	if sentence.DataType() != nmea.TypeRMC {
		return Fix{}, false
	}

	m := sentence.(nmea.RMC)
	return Fix{
		Time:       m.Time.String(),
		Date:       m.Date.String(),
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		SpeedKnots: m.Speed,
		CourseDeg:  m.Course,
		Validity:   string(m.Validity),
		ReceivedAt: receivedAt,
	}, true
}

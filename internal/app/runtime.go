// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package app wires the components into the device, simulator and console
// programs.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/actuator"
	"github.com/relabs-tech/cpr_assist/internal/compression"
	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/control"
	"github.com/relabs-tech/cpr_assist/internal/display"
	"github.com/relabs-tech/cpr_assist/internal/gps"
	"github.com/relabs-tech/cpr_assist/internal/sensors"
	"github.com/relabs-tech/cpr_assist/internal/telemetry"
	"github.com/relabs-tech/cpr_assist/internal/trigger"
)

// runtime is the control loop plus the optional services around it.
type runtime struct {
	loop    *control.Loop
	oled    *display.OLED
	feed    *display.Feed
	gps     *gps.Reader
	closers []func()
}

// newRuntime builds the loop over sampler and stepper. The telemetry sink,
// the GPS reader and the status feed follow cfg; oled may be nil.
func newRuntime(cfg *config.Config, sampler *sensors.Sampler, stepper actuator.Stepper, oled *display.OLED, log *zap.Logger) (*runtime, error) {
	rt := &runtime{oled: oled}

	sink, closeSink, err := telemetry.NewSink(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	rt.closers = append(rt.closers, closeSink)
	if sink == nil {
		log.Warn("no telemetry sink configured, alerts are acknowledged locally only")
	}

	reporters := display.Reporters{display.NewLogReporter(log)}
	if oled != nil {
		reporters = append(reporters, oled)
	}
	if cfg.StatusFeedAddr != "" {
		rt.feed = display.NewFeed(log)
		reporters = append(reporters, rt.feed)
	}

	components := control.Components{
		Sampler:  sampler,
		Detector: compression.NewDetector(cfg),
		Trigger:  trigger.New(cfg),
		Actuator: actuator.New(cfg, stepper, log),
		Uplink:   telemetry.NewUplink(cfg, sink, log),
		Reporter: reporters,
	}

	if cfg.GPSSerialPort != "" {
		port, err := gps.OpenSerial(cfg.GPSSerialPort, cfg.GPSBaudRate)
		if err != nil {
			// location is optional: alerts go out without it
			log.Warn("GPS unavailable", zap.String("port", cfg.GPSSerialPort), zap.Error(err))
		} else {
			rt.gps = gps.NewReader(port, log)
			components.Locator = rt.gps
			rt.closers = append(rt.closers, func() { port.Close() })
		}
	}

	rt.loop = control.New(cfg, components, log)
	return rt, nil
}

// run blocks until ctx is done, then stops the services and releases them.
func (rt *runtime) run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		// closing the GPS port unblocks its reader
		for i := len(rt.closers) - 1; i >= 0; i-- {
			rt.closers[i]()
		}
		wg.Wait()
	}()

	if rt.oled != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.oled.Run(ctx)
		}()
	}
	if rt.feed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rt.feed.ListenAndServe(ctx, cfg.StatusFeedAddr); err != nil {
				log.Error("status feed stopped", zap.Error(err))
			}
		}()
	}
	if rt.gps != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rt.gps.Run(ctx); err != nil && ctx.Err() == nil {
				log.Warn("GPS reader stopped", zap.Error(err))
			}
		}()
	}

	return rt.loop.Run(ctx)
}

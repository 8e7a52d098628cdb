// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/config"
)

const (
	connectTimeout       = 5 * time.Second
	connectRetryInterval = 10 * time.Second
)

// DeviceTopic is where device sections are published.
func DeviceTopic(prefix, deviceID string) string {
	return prefix + "/devices/" + deviceID
}

// EmergencyTopic is where the emergency record for alertID is published.
func EmergencyTopic(prefix, alertID string) string {
	return prefix + "/emergencies/" + alertID
}

// MQTTSink publishes payloads to a broker. Device data is QoS 0 and retained
// so a late subscriber sees the latest state; emergencies are QoS 1.
type MQTTSink struct {
	client mqtt.Client
	prefix string
	log    *zap.Logger
}

// NewMQTTSink starts connecting to MQTT_BROKER. It waits at most
// SEND_TIMEOUT for the first connection; an unreachable broker is retried in
// the background and sends fail fast until it is up.
func NewMQTTSink(cfg *config.Config, log *zap.Logger) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("connected to MQTT", zap.String("broker", cfg.MQTTBroker))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("MQTT connection lost", zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.SendTimeout) {
		log.Warn("MQTT broker not reachable yet, retrying in background",
			zap.String("broker", cfg.MQTTBroker),
			zap.Duration("retry_interval", connectRetryInterval),
		)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connect to %s: %w", cfg.MQTTBroker, err)
	}

	return newMQTTSink(client, cfg.MQTTTopicPrefix, log), nil
}

func newMQTTSink(client mqtt.Client, prefix string, log *zap.Logger) *MQTTSink {
	return &MQTTSink{client: client, prefix: prefix, log: log}
}

// Send implements Sink. Nothing is queued while the broker is down. An
// emergency is published before the device data and its outcome decides the
// result.
func (s *MQTTSink) Send(ctx context.Context, deviceID string, p Payload) error {
	if !s.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt: %w", mqtt.ErrNotConnected)
	}
	if p.Emergency == nil {
		return s.publishDevice(ctx, deviceID, p.Device)
	}

	data, err := json.Marshal(p.Emergency)
	if err != nil {
		return fmt.Errorf("mqtt: marshal emergency: %w", err)
	}
	if err := wait(ctx, s.client.Publish(EmergencyTopic(s.prefix, p.Emergency.ID), 1, false, data)); err != nil {
		return fmt.Errorf("mqtt: publish emergency: %w", err)
	}

	if err := s.publishDevice(ctx, deviceID, p.Device); err != nil {
		s.log.Warn("device data after emergency not published",
			zap.String("alert_id", p.Emergency.ID),
			zap.Error(err),
		)
	}
	return nil
}

func (s *MQTTSink) publishDevice(ctx context.Context, deviceID string, d DeviceData) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("mqtt: marshal device data: %w", err)
	}
	if err := wait(ctx, s.client.Publish(DeviceTopic(s.prefix, deviceID), 0, true, data)); err != nil {
		return fmt.Errorf("mqtt: publish device data: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}

// wait blocks until the token completes or ctx is done.
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/cpr_assist/internal/config"
	"github.com/relabs-tech/cpr_assist/internal/telemetry"
)

// RunConsoleMQTT subscribes to every device and emergency under
// MQTT_TOPIC_PREFIX and logs what arrives until ctx is done.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID + "-console")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect to %s: %w", cfg.MQTTBroker, token.Error())
	}
	defer client.Disconnect(250)
	log.Info("console: connected to MQTT", zap.String("broker", cfg.MQTTBroker))

	subscriptions := map[string]mqtt.MessageHandler{
		telemetry.DeviceTopic(cfg.MQTTTopicPrefix, "+"):    deviceHandler(log),
		telemetry.EmergencyTopic(cfg.MQTTTopicPrefix, "+"): emergencyHandler(log),
	}
	for topic, handler := range subscriptions {
		token := client.Subscribe(topic, 1, handler)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("MQTT subscribe %s: %w", topic, token.Error())
		}
		log.Info("console: subscribed", zap.String("topic", topic))
	}

	<-ctx.Done()
	log.Info("console: shutting down")
	return nil
}

func deviceHandler(log *zap.Logger) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var d telemetry.DeviceData
		if err := json.Unmarshal(msg.Payload(), &d); err != nil {
			log.Warn("console: device data unmarshal error", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		logDevice(log, lastSegment(msg.Topic()), d)
	}
}

func emergencyHandler(log *zap.Logger) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var e telemetry.Emergency
		if err := json.Unmarshal(msg.Payload(), &e); err != nil {
			log.Warn("console: emergency unmarshal error", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		fields := []zap.Field{
			zap.String("id", e.ID),
			zap.String("device_id", e.DeviceID),
			zap.String("kind", e.Kind),
			zap.Int64("timestamp", e.Timestamp),
		}
		if e.Location != nil {
			fields = append(fields, zap.Float64("lat", e.Location.Latitude), zap.Float64("lon", e.Location.Longitude))
		}
		log.Warn("[SOS]", fields...)
	}
}

func logDevice(log *zap.Logger, deviceID string, d telemetry.DeviceData) {
	fields := []zap.Field{
		zap.String("device_id", deviceID),
		zap.String("state", d.Status.CompressionState),
		zap.Int("compressions", d.Session.Total),
		zap.Bool("sos", d.Status.SOSTriggered),
		zap.String("gesture", d.Gesture.GestureType),
	}
	if c := d.CPR; c != nil {
		fields = append(fields,
			zap.Float64("depth_cm", c.CompressionDepth),
			zap.Float64("rate", c.CompressionRate),
			zap.Float64("quality", c.QualityScore),
			zap.Bool("in_band", c.InTargetBand))
	}
	if e := d.Environment; e != nil {
		fields = append(fields,
			zap.Float64("temperature", e.Temperature),
			zap.Float64("pressure_hpa", e.Pressure))
	}
	if d.Status.Flags.Any() {
		fields = append(fields, zap.Any("flags", d.Status.Flags))
	}
	log.Info("[CPR]", fields...)
}

func lastSegment(topic string) string {
	return topic[strings.LastIndex(topic, "/")+1:]
}

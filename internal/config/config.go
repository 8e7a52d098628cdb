// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/cpr_assist/internal/gesture"
)

// Config holds all device configuration values.
// Every component receives the *Config at construction; nothing reads it globally.
type Config struct {
	// Identity
	DeviceID string

	// I2C bus and pins
	I2CBus       string
	SDAPin       int
	SCLPin       int
	ServoPin     int
	MPU6050Addr  uint16
	APDS9960Addr uint16
	BMP180Addr   uint16
	SI7021Addr   uint16

	// Display
	DisplayEnabled bool

	// Servo
	MotorSpeedDelay  time.Duration
	DegreesPerStep   float64
	StepsPerRotation int
	TotalRotations   int
	MaxStepsPerTick  int
	ServoMinPulseUS  int
	ServoMaxPulseUS  int

	// Timing
	LoopInterval        time.Duration
	SendInterval        time.Duration
	StatusPrintInterval time.Duration
	EnvSampleInterval   time.Duration
	SendTimeout         time.Duration
	AlertMaxAttempts    int
	AlertRetryBackoff   time.Duration

	// CPR parameters
	MinCompressionDepth     float64 // cm
	MaxCompressionDepth     float64 // cm
	IdealCompressionRateMin float64 // compressions/min
	IdealCompressionRateMax float64 // compressions/min
	CompressionThreshold    float64 // m/s², negative
	CompressionAxis         string  // "x", "y" or "z"
	CompressionDebounce     time.Duration
	DescentTimeout          time.Duration
	CompressionPause        time.Duration
	AccelFilterAlpha        float64 // 1 disables smoothing
	BaselineAlpha           float64 // 0 freezes the baseline at zero

	// SOS gesture
	SOSGestureUp           gesture.Code
	SOSGestureDown         gesture.Code
	SOSAcceptReverse       bool
	GestureWindow          time.Duration
	GestureStrictAdjacency bool

	// Fault reporting
	SensorFaultThreshold int // consecutive failed reads before the fault flag is raised

	// Telemetry
	TelemetrySink   string // "firebase", "mqtt", "both" or "none"
	FirebaseHost    string
	FirebaseAuth    string
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	// GPS (optional)
	GPSSerialPort string
	GPSBaudRate   int

	// Status feed (optional), e.g. ":8080"
	StatusFeedAddr string

	// Logging
	LogLevel  string
	LogFormat string
}

// Default returns the values shipped in the ESP32 kit's config header.
func Default() *Config {
	return &Config{
		DeviceID: "esp32-cpr-001",

		I2CBus:       "",
		SDAPin:       21,
		SCLPin:       22,
		ServoPin:     13,
		MPU6050Addr:  0x68,
		APDS9960Addr: 0x39,
		BMP180Addr:   0x77,
		SI7021Addr:   0x40,

		DisplayEnabled: true,

		MotorSpeedDelay:  15 * time.Millisecond,
		DegreesPerStep:   1,
		StepsPerRotation: 360,
		TotalRotations:   2,
		MaxStepsPerTick:  4,
		ServoMinPulseUS:  500,
		ServoMaxPulseUS:  2400,

		LoopInterval:        10 * time.Millisecond,
		SendInterval:        100 * time.Millisecond,
		StatusPrintInterval: 1000 * time.Millisecond,
		EnvSampleInterval:   2000 * time.Millisecond,
		SendTimeout:         80 * time.Millisecond,
		AlertMaxAttempts:    3,
		AlertRetryBackoff:   100 * time.Millisecond,

		MinCompressionDepth:     4.0,
		MaxCompressionDepth:     6.0,
		IdealCompressionRateMin: 100,
		IdealCompressionRateMax: 120,
		CompressionThreshold:    -8.0,
		CompressionAxis:         "z",
		CompressionDebounce:     60 * time.Millisecond,
		DescentTimeout:          3000 * time.Millisecond,
		CompressionPause:        2000 * time.Millisecond,
		AccelFilterAlpha:        0.6,
		BaselineAlpha:           0.01,

		SOSGestureUp:           gesture.Up,
		SOSGestureDown:         gesture.Down,
		SOSAcceptReverse:       true,
		GestureWindow:          500 * time.Millisecond,
		GestureStrictAdjacency: true,

		SensorFaultThreshold: 10,

		TelemetrySink:   "firebase",
		FirebaseHost:    "https://resqpulse-demo-default-rtdb.asia-southeast1.firebasedatabase.app",
		MQTTClientID:    "cpr-assist-device",
		MQTTTopicPrefix: "resqpulse",

		GPSBaudRate: 9600,

		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads the configuration file on top of Default and validates it.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// LoadOptional is Load, or the validated defaults when configPath is empty.
func LoadOptional(configPath string) (*Config, error) {
	if configPath == "" {
		cfg := Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(configPath)
}

// Parse reads KEY=VALUE lines from r on top of Default and validates the result.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, &Error{Line: lineNum, Message: fmt.Sprintf("invalid config line %q", line)}
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, &Error{Line: lineNum, Key: key, Message: err.Error(), Cause: err}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Identity
	case "DEVICE_ID":
		c.DeviceID = value

	// I2C bus and pins
	case "I2C_BUS":
		c.I2CBus = value
	case "SDA_PIN":
		c.SDAPin, err = strconv.Atoi(value)
	case "SCL_PIN":
		c.SCLPin, err = strconv.Atoi(value)
	case "SERVO_PIN":
		c.ServoPin, err = strconv.Atoi(value)
	case "MPU6050_ADDR":
		c.MPU6050Addr, err = parseAddr(value)
	case "APDS9960_ADDR":
		c.APDS9960Addr, err = parseAddr(value)
	case "BMP180_ADDR":
		c.BMP180Addr, err = parseAddr(value)
	case "SI7021_ADDR":
		c.SI7021Addr, err = parseAddr(value)

	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = strconv.ParseBool(value)

	// Servo
	case "MOTOR_SPEED_DELAY":
		c.MotorSpeedDelay, err = parseMillis(value)
	case "DEGREES_PER_STEP":
		c.DegreesPerStep, err = strconv.ParseFloat(value, 64)
	case "STEPS_PER_ROTATION":
		c.StepsPerRotation, err = strconv.Atoi(value)
	case "TOTAL_ROTATIONS":
		c.TotalRotations, err = strconv.Atoi(value)
	case "MAX_STEPS_PER_TICK":
		c.MaxStepsPerTick, err = strconv.Atoi(value)
	case "SERVO_MIN_PULSE_US":
		c.ServoMinPulseUS, err = strconv.Atoi(value)
	case "SERVO_MAX_PULSE_US":
		c.ServoMaxPulseUS, err = strconv.Atoi(value)

	// Timing
	case "LOOP_INTERVAL":
		c.LoopInterval, err = parseMillis(value)
	case "SEND_INTERVAL":
		c.SendInterval, err = parseMillis(value)
	case "STATUS_PRINT_INTERVAL":
		c.StatusPrintInterval, err = parseMillis(value)
	case "ENV_SAMPLE_INTERVAL":
		c.EnvSampleInterval, err = parseMillis(value)
	case "SEND_TIMEOUT":
		c.SendTimeout, err = parseMillis(value)
	case "ALERT_MAX_ATTEMPTS":
		c.AlertMaxAttempts, err = strconv.Atoi(value)
	case "ALERT_RETRY_BACKOFF":
		c.AlertRetryBackoff, err = parseMillis(value)

	// CPR parameters
	case "MIN_COMPRESSION_DEPTH":
		c.MinCompressionDepth, err = strconv.ParseFloat(value, 64)
	case "MAX_COMPRESSION_DEPTH":
		c.MaxCompressionDepth, err = strconv.ParseFloat(value, 64)
	case "IDEAL_COMPRESSION_RATE_MIN":
		c.IdealCompressionRateMin, err = strconv.ParseFloat(value, 64)
	case "IDEAL_COMPRESSION_RATE_MAX":
		c.IdealCompressionRateMax, err = strconv.ParseFloat(value, 64)
	case "COMPRESSION_THRESHOLD":
		c.CompressionThreshold, err = strconv.ParseFloat(value, 64)
	case "COMPRESSION_AXIS":
		c.CompressionAxis = strings.ToLower(value)
	case "COMPRESSION_DEBOUNCE":
		c.CompressionDebounce, err = parseMillis(value)
	case "DESCENT_TIMEOUT":
		c.DescentTimeout, err = parseMillis(value)
	case "COMPRESSION_PAUSE":
		c.CompressionPause, err = parseMillis(value)
	case "ACCEL_FILTER_ALPHA":
		c.AccelFilterAlpha, err = strconv.ParseFloat(value, 64)
	case "BASELINE_ALPHA":
		c.BaselineAlpha, err = strconv.ParseFloat(value, 64)

	// SOS gesture
	case "SOS_GESTURE_UP":
		c.SOSGestureUp, err = gesture.ParseCode(value)
	case "SOS_GESTURE_DOWN":
		c.SOSGestureDown, err = gesture.ParseCode(value)
	case "SOS_ACCEPT_REVERSE":
		c.SOSAcceptReverse, err = strconv.ParseBool(value)
	case "GESTURE_WINDOW":
		c.GestureWindow, err = parseMillis(value)
	case "GESTURE_STRICT_ADJACENCY":
		c.GestureStrictAdjacency, err = strconv.ParseBool(value)

	case "SENSOR_FAULT_THRESHOLD":
		c.SensorFaultThreshold, err = strconv.Atoi(value)

	// Telemetry
	case "TELEMETRY_SINK":
		c.TelemetrySink = strings.ToLower(value)
	case "FIREBASE_HOST":
		c.FirebaseHost = value
	case "FIREBASE_AUTH":
		c.FirebaseAuth = value
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_TOPIC_PREFIX":
		c.MQTTTopicPrefix = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = strconv.Atoi(value)

	case "STATUS_FEED_ADDR":
		c.StatusFeedAddr = value

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)
	case "LOG_FORMAT":
		c.LogFormat = strings.ToLower(value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return nil
}

// parseMillis reads an integer millisecond count, the unit used by the kit header.
func parseMillis(value string) (time.Duration, error) {
	ms, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// parseAddr accepts decimal or 0x-prefixed 7-bit I2C addresses.
func parseAddr(value string) (uint16, error) {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, err
	}
	if addr > 0x7F {
		return 0, fmt.Errorf("address 0x%X is not a 7-bit I2C address", addr)
	}
	return uint16(addr), nil
}

// Validate checks ranges and cross-field constraints. A failure is fatal:
// the control loop must not start.
func (c *Config) Validate() error {
	switch {
	case c.DeviceID == "":
		return fieldError("DEVICE_ID", "is required")
	case c.SDAPin < 0 || c.SCLPin < 0 || c.ServoPin < 0:
		return fieldError("SDA_PIN", "pins must be non-negative")
	case c.SDAPin == c.SCLPin || c.SDAPin == c.ServoPin || c.SCLPin == c.ServoPin:
		return fieldError("SERVO_PIN", fmt.Sprintf("SDA (%d), SCL (%d) and servo (%d) pins must differ", c.SDAPin, c.SCLPin, c.ServoPin))

	case c.MotorSpeedDelay <= 0:
		return fieldError("MOTOR_SPEED_DELAY", "must be positive")
	case c.DegreesPerStep <= 0:
		return fieldError("DEGREES_PER_STEP", "must be positive")
	case c.StepsPerRotation <= 0:
		return fieldError("STEPS_PER_ROTATION", "must be positive")
	case c.TotalRotations <= 0:
		return fieldError("TOTAL_ROTATIONS", "must be positive")
	case c.MaxStepsPerTick <= 0:
		return fieldError("MAX_STEPS_PER_TICK", "must be positive")
	case c.ServoMinPulseUS <= 0 || c.ServoMaxPulseUS <= c.ServoMinPulseUS:
		return fieldError("SERVO_MAX_PULSE_US", "pulse range must be positive and increasing")

	case c.LoopInterval <= 0:
		return fieldError("LOOP_INTERVAL", "must be positive")
	case c.SendInterval <= 0:
		return fieldError("SEND_INTERVAL", "must be positive")
	case c.StatusPrintInterval <= 0:
		return fieldError("STATUS_PRINT_INTERVAL", "must be positive")
	case c.EnvSampleInterval <= 0:
		return fieldError("ENV_SAMPLE_INTERVAL", "must be positive")
	case c.SendTimeout <= 0:
		return fieldError("SEND_TIMEOUT", "must be positive")
	case c.AlertMaxAttempts <= 0:
		return fieldError("ALERT_MAX_ATTEMPTS", "must be positive")
	case c.AlertRetryBackoff < 0:
		return fieldError("ALERT_RETRY_BACKOFF", "must not be negative")

	case c.MinCompressionDepth <= 0:
		return fieldError("MIN_COMPRESSION_DEPTH", "must be positive")
	case c.MaxCompressionDepth < c.MinCompressionDepth:
		return fieldError("MAX_COMPRESSION_DEPTH", "must not be below MIN_COMPRESSION_DEPTH")
	case c.IdealCompressionRateMin <= 0:
		return fieldError("IDEAL_COMPRESSION_RATE_MIN", "must be positive")
	case c.IdealCompressionRateMax < c.IdealCompressionRateMin:
		return fieldError("IDEAL_COMPRESSION_RATE_MAX", "must not be below IDEAL_COMPRESSION_RATE_MIN")
	case c.CompressionThreshold >= 0:
		return fieldError("COMPRESSION_THRESHOLD", "must be negative")
	case c.CompressionAxis != "x" && c.CompressionAxis != "y" && c.CompressionAxis != "z":
		return fieldError("COMPRESSION_AXIS", "must be x, y or z")
	case c.CompressionDebounce <= 0:
		return fieldError("COMPRESSION_DEBOUNCE", "must be positive")
	case c.DescentTimeout <= 0:
		return fieldError("DESCENT_TIMEOUT", "must be positive")
	case c.CompressionPause <= 0:
		return fieldError("COMPRESSION_PAUSE", "must be positive")
	case c.AccelFilterAlpha <= 0 || c.AccelFilterAlpha > 1:
		return fieldError("ACCEL_FILTER_ALPHA", "must be in (0, 1]")
	case c.BaselineAlpha < 0 || c.BaselineAlpha >= 1:
		return fieldError("BASELINE_ALPHA", "must be in [0, 1)")

	case c.SOSGestureUp == gesture.None || c.SOSGestureDown == gesture.None:
		return fieldError("SOS_GESTURE_UP", "SOS gestures must not be NONE")
	case c.SOSGestureUp == c.SOSGestureDown:
		return fieldError("SOS_GESTURE_DOWN", "must differ from SOS_GESTURE_UP")
	case c.GestureWindow <= 0:
		return fieldError("GESTURE_WINDOW", "must be positive")

	case c.SensorFaultThreshold <= 0:
		return fieldError("SENSOR_FAULT_THRESHOLD", "must be positive")
	}

	switch c.TelemetrySink {
	case "none":
	case "firebase":
		if c.FirebaseHost == "" {
			return fieldError("FIREBASE_HOST", "is required for the firebase sink")
		}
	case "mqtt":
		if c.MQTTBroker == "" {
			return fieldError("MQTT_BROKER", "is required for the mqtt sink")
		}
	case "both":
		if c.FirebaseHost == "" || c.MQTTBroker == "" {
			return fieldError("TELEMETRY_SINK", "both requires FIREBASE_HOST and MQTT_BROKER")
		}
	default:
		return fieldError("TELEMETRY_SINK", fmt.Sprintf("unknown sink %q", c.TelemetrySink))
	}

	if c.GPSSerialPort != "" && c.GPSBaudRate <= 0 {
		return fieldError("GPS_BAUD_RATE", "must be positive when GPS_SERIAL_PORT is set")
	}
	return nil
}

// ActuatorSteps is the travel bound STEPS_PER_ROTATION × TOTAL_ROTATIONS.
func (c *Config) ActuatorSteps() int {
	return c.StepsPerRotation * c.TotalRotations
}

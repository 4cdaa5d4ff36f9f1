// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDServer  string
	MQTTClientIDIMU     string
	MQTTClientIDNMEA    string
	MQTTClientIDConsole string
	MQTTClientIDDisplay string

	// Topics
	TopicDeviceOrientation string
	TopicScreenOrientation string
	TopicNodePose          string // node name is appended: <topic>/<node>
	TopicPlacerState       string

	// IMU Hardware
	IMUSPIDevice      string
	IMUCSPin          string
	IMUSampleInterval int // milliseconds

	// NMEA attitude sensor
	NMEASerialPort string
	NMEABaudRate   int

	// Engine
	FrameInterval  int // milliseconds
	ViewportWidth  int
	ViewportHeight int
	XRMode         string // "remote" (browser over websocket) or "scripted"

	// Web Server
	WebServerPort int
	WebStaticDir  string

	// Display
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds
}

// Package-level unexported variables for the singleton:
//   - globalConfig is only reachable through InitGlobal and Get.
//   - configOnce makes InitGlobal load the file once.
//   - configMu lets many readers call Get concurrently.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{
		XRMode:       "remote",
		WebStaticDir: "web",
	}
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseRange parses an integer and checks it lies in [min, max].
func parseRange(key, value string, min, max int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, min, max, v)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error

	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_SERVER":
		c.MQTTClientIDServer = value
	case "MQTT_CLIENT_ID_IMU":
		c.MQTTClientIDIMU = value
	case "MQTT_CLIENT_ID_NMEA":
		c.MQTTClientIDNMEA = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_DEVICE_ORIENTATION":
		c.TopicDeviceOrientation = value
	case "TOPIC_SCREEN_ORIENTATION":
		c.TopicScreenOrientation = value
	case "TOPIC_NODE_POSE":
		c.TopicNodePose = strings.TrimSuffix(value, "/")
	case "TOPIC_PLACER_STATE":
		c.TopicPlacerState = value

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = parseRange(key, value, 1, 60000)

	// NMEA
	case "NMEA_SERIAL_PORT":
		c.NMEASerialPort = value
	case "NMEA_BAUD_RATE":
		c.NMEABaudRate, err = parseRange(key, value, 1200, 921600)

	// Engine
	case "FRAME_INTERVAL":
		c.FrameInterval, err = parseRange(key, value, 1, 1000)
	case "VIEWPORT_WIDTH":
		c.ViewportWidth, err = parseRange(key, value, 0, 16384)
	case "VIEWPORT_HEIGHT":
		c.ViewportHeight, err = parseRange(key, value, 0, 16384)
	case "XR_MODE":
		if value != "remote" && value != "scripted" {
			return fmt.Errorf("XR_MODE must be \"remote\" or \"scripted\", got %q", value)
		}
		c.XRMode = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseRange(key, value, 1, 65535)
	case "WEB_STATIC_DIR":
		c.WebStaticDir = value

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseRange(key, value, 10, 60000)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicDeviceOrientation == "" {
		return fmt.Errorf("TOPIC_DEVICE_ORIENTATION is required")
	}
	if c.TopicNodePose == "" {
		return fmt.Errorf("TOPIC_NODE_POSE is required")
	}
	if c.TopicPlacerState == "" {
		return fmt.Errorf("TOPIC_PLACER_STATE is required")
	}
	if c.FrameInterval == 0 {
		return fmt.Errorf("FRAME_INTERVAL is required")
	}
	if c.WebServerPort == 0 {
		return fmt.Errorf("WEB_SERVER_PORT is required")
	}
	return nil
}

// NodePoseTopic returns the topic a node's pose is published on.
func (c *Config) NodePoseTopic(node string) string {
	return c.TopicNodePose + "/" + node
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads; later calls return the first result.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

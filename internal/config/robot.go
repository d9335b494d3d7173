// Package config provides configuration helpers for go-mission commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default robot configuration.
const (
	DefaultSerialPort    = "/dev/ttyS0"
	DefaultBaudRate      = 4800
	DefaultAckTimeout    = 2 * time.Second
	DefaultSettleDelay   = 20 * time.Millisecond
	DefaultPollInterval  = 10 * time.Millisecond
	DefaultMaxAttempts   = 3
	DefaultTickInterval  = 50 * time.Millisecond
	DefaultInitialMode   = "start"
	DefaultDashboardPort = "8080"
	DefaultTopicPrefix   = "mission"
	DefaultMQTTClientID  = "go-mission"
)

// Config holds everything the mission binary needs at startup.
type Config struct {
	// Serial link
	SerialPort   string
	BaudRate     int
	Debug        bool // no physical link, sends are logged only
	AckTimeout   time.Duration
	SettleDelay  time.Duration
	PollInterval time.Duration
	MaxAttempts  int

	// Mission
	InitialMode  string
	TickInterval time.Duration

	// Perception service websocket URL (ws://host:port/path)
	PerceptionURL string

	// Dashboard, empty port disables it
	DashboardPort string

	// MQTT operator notifications, empty broker disables them
	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	LogLevel string
}

// Load reads an optional .env file and then the environment.
// Missing .env files are not an error; malformed ones are.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load env file: %w", err)
	}

	cfg := &Config{
		SerialPort:      getEnv("MISSION_SERIAL_PORT", DefaultSerialPort),
		InitialMode:     getEnv("MISSION_INITIAL_MODE", DefaultInitialMode),
		PerceptionURL:   os.Getenv("PERCEPTION_URL"),
		DashboardPort:   getEnv("DASHBOARD_PORT", DefaultDashboardPort),
		MQTTBroker:      os.Getenv("MQTT_BROKER"),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", DefaultMQTTClientID),
		MQTTUsername:    os.Getenv("MQTT_USERNAME"),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", DefaultTopicPrefix),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.BaudRate, err = getInt("MISSION_BAUD", DefaultBaudRate); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = getInt("MISSION_MAX_ATTEMPTS", DefaultMaxAttempts); err != nil {
		return nil, err
	}
	if cfg.Debug, err = getBool("MISSION_DEBUG", false); err != nil {
		return nil, err
	}
	if cfg.AckTimeout, err = getDuration("MISSION_ACK_TIMEOUT", DefaultAckTimeout); err != nil {
		return nil, err
	}
	if cfg.SettleDelay, err = getDuration("MISSION_SETTLE_DELAY", DefaultSettleDelay); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("MISSION_POLL_INTERVAL", DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.TickInterval, err = getDuration("MISSION_TICK_INTERVAL", DefaultTickInterval); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the link or the loop cannot work with.
func (c *Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("config: baud rate must be positive, got %d", c.BaudRate)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("config: max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("config: ack timeout must be positive, got %s", c.AckTimeout)
	}
	if !c.Debug && c.SerialPort == "" {
		return errors.New("config: serial port required unless MISSION_DEBUG is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

// Package config loads console and flight monitor settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	Log       LogConfig       `yaml:"log"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres or memory
	DSN    string `yaml:"dsn"`
}

type TelemetryConfig struct {
	Cadence   time.Duration `yaml:"cadence"`
	MissionID int64         `yaml:"missionId"`
	Seed      uint64        `yaml:"seed"` // 0 seeds from the clock
}

// AMQPConfig enables the telemetry tap and the status queue when URL is set.
type AMQPConfig struct {
	URL               string        `yaml:"url"`
	TelemetryExchange string        `yaml:"telemetryExchange"`
	StatusQueue       string        `yaml:"statusQueue"`
	ConnectAttempts   int           `yaml:"connectAttempts"`
	RetryDelay        time.Duration `yaml:"retryDelay"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// MonitorConfig tunes the flight monitor worker.
type MonitorConfig struct {
	Name         string  `yaml:"name"`
	LowFuelLevel float64 `yaml:"lowFuelLevel"`
	Workers      int     `yaml:"workers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":5000",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "starlaunch.db",
		},
		Telemetry: TelemetryConfig{
			Cadence:   time.Second,
			MissionID: 1,
		},
		AMQP: AMQPConfig{
			TelemetryExchange: "telemetry.samples",
			StatusQueue:       "mission_status",
			ConnectAttempts:   5,
			RetryDelay:        3 * time.Second,
		},
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Monitor: MonitorConfig{
			Name:         "flight_monitor",
			LowFuelLevel: 10,
			Workers:      2,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// $STARLAUNCH_CONFIG when path is empty) and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("STARLAUNCH_CONFIG")
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("TELEMETRY_CADENCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TELEMETRY_CADENCE: %w", err)
		}
		cfg.Telemetry.Cadence = d
	}
	if v := os.Getenv("TELEMETRY_MISSION_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEMETRY_MISSION_ID: %w", err)
		}
		cfg.Telemetry.MissionID = id
	}
	if v := os.Getenv("TELEMETRY_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEMETRY_SEED: %w", err)
		}
		cfg.Telemetry.Seed = seed
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQP.URL = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("MONITOR_NAME"); v != "" {
		cfg.Monitor.Name = v
	}
	return nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("invalid store driver %q, must be one of: sqlite, postgres, memory", c.Store.Driver)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http address is required")
	}
	if c.Telemetry.Cadence <= 0 {
		return fmt.Errorf("telemetry cadence %s must be positive", c.Telemetry.Cadence)
	}
	if c.Telemetry.MissionID <= 0 {
		return fmt.Errorf("telemetry mission id %d must be positive", c.Telemetry.MissionID)
	}
	if c.AMQP.URL != "" {
		if c.AMQP.TelemetryExchange == "" || c.AMQP.StatusQueue == "" {
			return fmt.Errorf("amqp exchange and status queue are required when amqp.url is set")
		}
		if c.AMQP.ConnectAttempts < 1 {
			return fmt.Errorf("amqp connect attempts %d must be at least 1", c.AMQP.ConnectAttempts)
		}
	}
	if c.Monitor.Workers < 1 {
		return fmt.Errorf("monitor workers %d must be at least 1", c.Monitor.Workers)
	}
	if c.Monitor.LowFuelLevel < 0 || c.Monitor.LowFuelLevel > 100 {
		return fmt.Errorf("monitor low fuel level %v outside [0, 100]", c.Monitor.LowFuelLevel)
	}
	return nil
}

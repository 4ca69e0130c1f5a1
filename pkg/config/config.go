package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds process settings. The device identity lives in the config
// store, not here.
type Config struct {
	LogLevel      string         `yaml:"log_level" default:"info"`
	SettleDelay   time.Duration  `yaml:"settle_delay" default:"15s"`
	RegisterDelay time.Duration  `yaml:"register_delay" default:"5s"`
	Store         StoreConfig    `yaml:"store"`
	Radio         RadioConfig    `yaml:"radio"`
	Platform      PlatformConfig `yaml:"platform"`
}

type StoreConfig struct {
	// Kind is dir, sqlite or memory.
	Kind       string `yaml:"kind" default:"dir"`
	Path       string `yaml:"path" default:"/var/lib/blesense"`
	ConfigName string `yaml:"config_name" default:"main.json"`
}

type RadioConfig struct {
	// Backend is go-ble, tinygo or log.
	Backend          string `yaml:"backend" default:"go-ble"`
	Name             string `yaml:"name" default:"dec4IoT Device"`
	ServiceUUID      string `yaml:"service_uuid" default:"34defd2c-c8fe-b18e-9a70-591970cba32b"`
	ManufacturerID   uint16 `yaml:"manufacturer_id" default:"1424"`
	ManufacturerData string `yaml:"manufacturer_data" default:"{}"`
	HistorySize      uint32 `yaml:"history_size" default:"64"`
}

type PlatformConfig struct {
	// Kind is sim or periph.
	Kind   string       `yaml:"kind" default:"sim"`
	Sim    SimConfig    `yaml:"sim"`
	Periph PeriphConfig `yaml:"periph"`
}

// PeriphConfig names the board pins and buses of the periph platform.
type PeriphConfig struct {
	ButtonPin     string   `yaml:"button_pin" default:"GPIO17"`
	MotionPin     string   `yaml:"motion_pin" default:"GPIO27"`
	LEDPins       []string `yaml:"led_pins"`
	I2CBus        string   `yaml:"i2c_bus"`
	BME280Address uint16   `yaml:"bme280_address" default:"118"`
	BatteryPath   string   `yaml:"battery_path" default:"/sys/class/power_supply/BAT0/capacity"`
}

type SimConfig struct {
	Battery     float64 `yaml:"battery" default:"100"`
	Temperature float64 `yaml:"temperature" default:"21"`
	Script      string  `yaml:"script"`
	// Console is stdin, pty or none.
	Console string `yaml:"console" default:"stdin"`
}

var (
	StoreKinds    = []string{"dir", "sqlite", "memory"}
	RadioBackends = []string{"go-ble", "tinygo", "log"}
	PlatformKinds = []string{"sim", "periph"}
	ConsoleModes  = []string{"stdin", "pty", "none"}
	LogLevels     = []string{"trace", "debug", "info", "warn", "error"}
)

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML settings file over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return cfg, nil
}

func oneOf(field, value string, allowed []string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%s %q must be one of %s", field, value, strings.Join(allowed, ", "))
	}
	return nil
}

// Validate rejects unknown kinds and negative delays. Zero delays are
// allowed for bench runs.
func (c *Config) Validate() error {
	checks := []error{
		oneOf("log_level", strings.ToLower(c.LogLevel), LogLevels),
		oneOf("store.kind", c.Store.Kind, StoreKinds),
		oneOf("radio.backend", c.Radio.Backend, RadioBackends),
		oneOf("platform.kind", c.Platform.Kind, PlatformKinds),
		oneOf("platform.sim.console", c.Platform.Sim.Console, ConsoleModes),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if c.SettleDelay < 0 || c.RegisterDelay < 0 {
		return fmt.Errorf("delays must not be negative (settle %v, register %v)", c.SettleDelay, c.RegisterDelay)
	}
	if c.Store.Kind != "memory" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the %s store", c.Store.Kind)
	}
	if c.Store.ConfigName == "" {
		return fmt.Errorf("store.config_name must not be empty")
	}
	if _, err := c.ServiceUUID(); err != nil {
		return err
	}
	if c.Radio.Name == "" {
		return fmt.Errorf("radio.name must not be empty")
	}
	return nil
}

// ServiceUUID parses the configured service UUID.
func (c *Config) ServiceUUID() (ble.UUID, error) {
	u, err := ble.Parse(c.Radio.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("radio.service_uuid %q: %w", c.Radio.ServiceUUID, err)
	}
	return u, nil
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

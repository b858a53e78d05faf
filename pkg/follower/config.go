// Package follower wires the range filter, target intake, velocity source,
// safety arbiter and command loop into one runnable application.
package follower

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-follow/internal/config"
	"github.com/teslashibe/go-follow/pkg/control"
	"github.com/teslashibe/go-follow/pkg/scan"
	"github.com/teslashibe/go-follow/pkg/tracking"
	"github.com/teslashibe/go-follow/pkg/velocity"
	"github.com/teslashibe/go-follow/pkg/web"
)

// Velocity source modes.
const (
	ModeLocal  = "local"  // in-process PID axes
	ModeRemote = "remote" // HTTP velocity service
)

// Actuator modes.
const (
	ActuatorWS   = "ws"   // cmd_vel over /ws/cmd_vel and to connected robots
	ActuatorHTTP = "http" // POST <base_url>/api/cmd_vel
)

// Loop periods used when control.period is left unset.
const (
	DefaultLocalPeriod  = 10 * time.Millisecond
	DefaultRemotePeriod = 100 * time.Millisecond
)

// ActuatorConfig selects where commands go.
type ActuatorConfig struct {
	Mode    string        `yaml:"mode" json:"mode"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Config holds all configuration for the follower.
// Flag parsing is done in cmd/follower/main.go; this struct is data only.
type Config struct {
	// Mode selects the velocity source: "local" or "remote".
	Mode string `yaml:"mode" json:"mode"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Web      web.Config            `yaml:"web" json:"web"`
	Scan     scan.Config           `yaml:"scan" json:"scan"`
	Serial   scan.SerialConfig     `yaml:"serial" json:"serial"`
	Control  control.Config        `yaml:"control" json:"control"`
	Tracking tracking.Config       `yaml:"tracking" json:"tracking"`
	Velocity velocity.RemoteConfig `yaml:"velocity" json:"velocity"`
	Actuator ActuatorConfig        `yaml:"actuator" json:"actuator"`
}

// DefaultConfig returns sensible defaults. The loop period is left at zero
// and resolved from the mode by Resolve.
func DefaultConfig() Config {
	ctrl := control.DefaultConfig()
	ctrl.Period = 0

	return Config{
		Mode:     ModeLocal,
		LogLevel: "info",
		Web:      web.DefaultConfig(),
		Scan:     scan.DefaultConfig(),
		Control:  ctrl,
		Tracking: tracking.DefaultConfig(),
		Velocity: velocity.DefaultRemoteConfig(),
		Actuator: ActuatorConfig{
			Mode:    ActuatorWS,
			BaseURL: "http://localhost:8000",
			Timeout: 100 * time.Millisecond,
		},
	}
}

// LoadFile overlays a YAML file onto c. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return &ConfigError{Field: "file", Message: fmt.Sprintf("parse %s: %v", path, err)}
	}
	return nil
}

// LoadEnvConfig applies environment overrides.
// Call this after the file is loaded and before flags are applied.
func (c *Config) LoadEnvConfig() error {
	c.Mode = config.String(config.EnvMode, c.Mode)
	c.LogLevel = config.String(config.EnvLogLevel, c.LogLevel)
	c.Web.Listen = config.String(config.EnvListen, c.Web.Listen)
	c.Velocity.URL = config.String(config.EnvVelocityURL, c.Velocity.URL)
	c.Actuator.BaseURL = config.String(config.EnvBaseURL, c.Actuator.BaseURL)
	c.Serial.Port = config.String(config.EnvSerialPort, c.Serial.Port)

	threshold, err := config.Float(config.EnvThreshold, c.Control.Threshold)
	if err != nil {
		return &ConfigError{Field: "control.threshold", Message: err.Error()}
	}
	c.Control.Threshold = threshold

	period, err := config.Duration(config.EnvPeriod, c.Control.Period)
	if err != nil {
		return &ConfigError{Field: "control.period", Message: err.Error()}
	}
	c.Control.Period = period
	return nil
}

// Resolve fills values that depend on other fields.
func (c *Config) Resolve() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.Actuator.Mode = strings.ToLower(strings.TrimSpace(c.Actuator.Mode))
	if c.Control.Period == 0 {
		if c.Mode == ModeRemote {
			c.Control.Period = DefaultRemotePeriod
		} else {
			c.Control.Period = DefaultLocalPeriod
		}
	}
}

// Validate checks the whole configuration. Call Resolve first.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLocal:
		if err := c.Tracking.Validate(); err != nil {
			return &ConfigError{Field: "tracking", Message: err.Error()}
		}
	case ModeRemote:
		if err := c.Velocity.Validate(); err != nil {
			return &ConfigError{Field: "velocity", Message: err.Error()}
		}
	default:
		return &ConfigError{Field: "mode", Message: fmt.Sprintf("mode must be %q or %q, got %q", ModeLocal, ModeRemote, c.Mode)}
	}

	switch c.Actuator.Mode {
	case ActuatorWS:
	case ActuatorHTTP:
		if c.Actuator.BaseURL == "" {
			return &ConfigError{Field: "actuator.base_url", Message: "base url is required for the http actuator"}
		}
		if c.Actuator.Timeout <= 0 {
			return &ConfigError{Field: "actuator.timeout", Message: "actuator timeout must be positive"}
		}
	default:
		return &ConfigError{Field: "actuator.mode", Message: fmt.Sprintf("actuator must be %q or %q, got %q", ActuatorWS, ActuatorHTTP, c.Actuator.Mode)}
	}

	if err := c.Scan.Validate(); err != nil {
		return &ConfigError{Field: "scan", Message: err.Error()}
	}
	if err := c.Control.Validate(); err != nil {
		return &ConfigError{Field: "control", Message: err.Error()}
	}
	if err := c.Web.Validate(); err != nil {
		return &ConfigError{Field: "web", Message: err.Error()}
	}
	return nil
}

// Load builds a configuration from defaults, an optional YAML file and the
// environment, then resolves and validates it.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = config.String(config.EnvConfigFile, "")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.LoadEnvConfig(); err != nil {
		return cfg, err
	}
	cfg.Resolve()
	return cfg, cfg.Validate()
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "follower: " + e.Field + ": " + e.Message
}

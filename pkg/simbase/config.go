// Package simbase simulates a mobile base with a laser scanner and a target
// tracker. It connects to the follower's robot endpoint, streams synthetic
// sweeps and centroids, and integrates the cmd_vel commands it receives.
//
// It exists for bench testing without hardware.
package simbase

import (
	"fmt"
	"time"
)

// Config holds simulator configuration.
type Config struct {
	// URL is the follower base URL.
	// Examples: "ws://localhost:8080", "ws://192.168.68.83:8080"
	URL string `yaml:"url" json:"url"`

	// RobotID is used in the /ws/robot/:id path.
	RobotID string `yaml:"robot_id" json:"robot_id"`

	// ScanInterval is the sweep period; commands are integrated at this rate.
	ScanInterval time.Duration `yaml:"scan_interval" json:"scan_interval"`

	// CentroidInterval is the target observation period. 0 disables centroids.
	CentroidInterval time.Duration `yaml:"centroid_interval" json:"centroid_interval"`

	// ReconnectInterval is how often to retry a failed dial.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" json:"reconnect_interval"`

	// MaxReconnectAttempts is the maximum number of dial attempts.
	// 0 means unlimited.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`

	World WorldConfig `yaml:"world" json:"world"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:               "ws://localhost:8080",
		RobotID:           "simbase",
		ScanInterval:      100 * time.Millisecond,
		CentroidInterval:  100 * time.Millisecond,
		ReconnectInterval: 2 * time.Second,
		World:             DefaultWorldConfig(),
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.RobotID == "" {
		return fmt.Errorf("robot id is required")
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan interval must be positive, got %v", c.ScanInterval)
	}
	if c.CentroidInterval < 0 {
		return fmt.Errorf("centroid interval must not be negative, got %v", c.CentroidInterval)
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect interval must be positive, got %v", c.ReconnectInterval)
	}
	return c.World.Validate()
}

// Endpoint returns the websocket URL for this robot.
func (c *Config) Endpoint() string {
	return c.URL + "/ws/robot/" + c.RobotID
}

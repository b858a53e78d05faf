// Package config provides environment helpers for go-follow commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names read by the commands.
const (
	EnvListen        = "FOLLOW_LISTEN"
	EnvVelocityURL   = "VELOCITY_URL"
	EnvBaseURL       = "BASE_URL"
	EnvSerialPort    = "SCAN_SERIAL_PORT"
	EnvLogLevel      = "LOG_LEVEL"
	EnvControllerURL = "CONTROLLER_URL"
	EnvMode          = "FOLLOW_MODE"
	EnvThreshold     = "FOLLOW_THRESHOLD"
	EnvPeriod        = "FOLLOW_PERIOD"
	EnvConfigFile    = "FOLLOW_CONFIG"
)

// String returns the value of key, or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Float returns key parsed as float64, or def when unset.
// A malformed value is an error rather than a silent fallback.
func Float(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// Duration returns key parsed with time.ParseDuration, or def when unset.
func Duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

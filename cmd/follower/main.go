// follower - target-following velocity controller.
// Reads laser sweeps and target centroids, computes velocities and publishes
// arbitrated commands to the base at a fixed rate.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-follow/internal/config"
	flog "github.com/teslashibe/go-follow/internal/log"
	"github.com/teslashibe/go-follow/pkg/follower"
)

func main() {
	cfg := parseFlags()

	flog.Init(cfg.LogLevel)

	fmt.Println("🤖 go-follow controller")
	fmt.Println("========================")
	fmt.Printf("   mode=%s actuator=%s listen=%s\n", cfg.Mode, cfg.Actuator.Mode, cfg.Web.Listen)

	app, err := follower.New(cfg, flog.L())
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	if err := app.Init(); err != nil {
		log.Fatalf("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
	fmt.Println("\n👋 Stopped")
}

// parseFlags layers defaults, the config file, the environment and then any
// flag that was set explicitly.
func parseFlags() follower.Config {
	configPath := flag.String("config", "", "YAML config file (or "+config.EnvConfigFile+")")
	mode := flag.String("mode", "", "Velocity source: local or remote")
	listen := flag.String("listen", "", "API listen address")
	actuator := flag.String("actuator", "", "Actuator: ws or http")
	baseURL := flag.String("base-url", "", "Base driver URL for the http actuator")
	velocityURL := flag.String("velocity-url", "", "Remote velocity service URL")
	serialPort := flag.String("serial", "", "Serial port of the laser scanner")
	threshold := flag.Float64("threshold", 0, "Blocking clearance in meters")
	period := flag.Duration("period", 0, "Loop period")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	requestLog := flag.Bool("request-log", false, "Log every HTTP request")
	flag.Parse()

	// Resolve and Validate run in follower.New, after flags are applied.
	cfg := follower.DefaultConfig()
	path := *configPath
	if path == "" {
		path = config.String(config.EnvConfigFile, "")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			log.Fatalf("❌ Configuration error: %v", err)
		}
	}
	if err := cfg.LoadEnvConfig(); err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = *mode
		case "listen":
			cfg.Web.Listen = *listen
		case "actuator":
			cfg.Actuator.Mode = *actuator
		case "base-url":
			cfg.Actuator.BaseURL = *baseURL
		case "velocity-url":
			cfg.Velocity.URL = *velocityURL
		case "serial":
			cfg.Serial.Port = *serialPort
		case "threshold":
			cfg.Control.Threshold = *threshold
		case "period":
			cfg.Control.Period = *period
		case "log-level":
			cfg.LogLevel = *logLevel
		case "request-log":
			cfg.Web.RequestLog = *requestLog
		}
	})
	return cfg
}

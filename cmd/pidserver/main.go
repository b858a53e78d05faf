// pidserver - remote velocity service.
// Serves POST /api/des_vel from in-process PID axes so a follower in remote
// mode can run against it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-follow/internal/config"
	flog "github.com/teslashibe/go-follow/internal/log"
	"github.com/teslashibe/go-follow/pkg/tracking"
	"github.com/teslashibe/go-follow/pkg/velocity"
)

func main() {
	listen := flag.String("listen", config.String(config.EnvListen, ":8090"), "Listen address")
	preset := flag.String("preset", "default", "Gain preset: default, base-only, limited")
	gainsFile := flag.String("gains", "", "YAML file with tracking axes (overrides -preset)")
	logLevel := flag.String("log-level", config.String(config.EnvLogLevel, "info"), "Log level")
	flag.Parse()

	flog.Init(*logLevel)
	logger := flog.Component("pidserver")

	cfg, err := loadTracking(*preset, *gainsFile)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	fmt.Println("🎯 go-follow velocity service")
	fmt.Println("=============================")
	fmt.Printf("   listen=%s tilt=%v\n", *listen, cfg.TiltEnabled)

	app := velocity.NewApp(velocity.NewHandler(velocity.NewLocal(cfg, logger), logger))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		app.ShutdownWithContext(shutdownCtx)
	}()

	if err := app.Listen(*listen); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
	fmt.Println("\n👋 Stopped")
}

func loadTracking(preset, path string) (tracking.Config, error) {
	var cfg tracking.Config
	switch preset {
	case "default":
		cfg = tracking.DefaultConfig()
	case "base-only":
		cfg = tracking.BaseOnlyConfig()
	case "limited":
		cfg = tracking.LimitedConfig()
	default:
		return cfg, fmt.Errorf("unknown preset %q", preset)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

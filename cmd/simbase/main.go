// simbase - simulated base, laser scanner and target tracker.
// Connects to a follower, streams synthetic sweeps and centroids, and prints
// the commands it is driven with.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-follow/internal/config"
	flog "github.com/teslashibe/go-follow/internal/log"
	"github.com/teslashibe/go-follow/pkg/robot"
	"github.com/teslashibe/go-follow/pkg/simbase"
)

func main() {
	cfg := simbase.DefaultConfig()

	url := flag.String("url", config.String(config.EnvControllerURL, cfg.URL), "Follower websocket base URL")
	id := flag.String("id", cfg.RobotID, "Robot ID")
	obstacle := flag.Float64("obstacle", cfg.World.Obstacle, "Obstacle distance ahead in meters (0 = none)")
	depth := flag.Float64("depth", cfg.World.TargetDepth, "Initial target depth in meters")
	targetX := flag.Float64("x", cfg.World.TargetX, "Initial target x in pixels")
	scanEvery := flag.Duration("scan-interval", cfg.ScanInterval, "Sweep period")
	centroidEvery := flag.Duration("centroid-interval", cfg.CentroidInterval, "Centroid period (0 disables)")
	quiet := flag.Bool("quiet", false, "Do not print every command")
	flag.Parse()

	cfg.URL, cfg.RobotID = *url, *id
	cfg.World.Obstacle, cfg.World.TargetDepth, cfg.World.TargetX = *obstacle, *depth, *targetX
	cfg.ScanInterval, cfg.CentroidInterval = *scanEvery, *centroidEvery

	flog.Init(config.String(config.EnvLogLevel, "info"))

	client, err := simbase.New(cfg, flog.L())
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	fmt.Println("🛞 go-follow simulated base")
	fmt.Println("===========================")
	fmt.Printf("   follower=%s robot=%s\n", cfg.Endpoint(), cfg.RobotID)

	if !*quiet {
		client.OnCommand = func(cmd robot.Command) {
			w := client.World().Snapshot()
			fmt.Printf("  %s  obstacle=%.2fm target=(%.0f,%.0f) depth=%.2fm\n",
				cmd, w.Obstacle, w.TargetX, w.TargetY, w.Depth)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	if err := client.Run(ctx); err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}

	st := client.Stats()
	fmt.Printf("\n👋 Stopped after %s: %d scans, %d centroids (%d acked), %d commands\n",
		time.Since(start).Round(time.Second), st.ScansSent, st.CentroidsSent, st.Acks, st.Commands)
}

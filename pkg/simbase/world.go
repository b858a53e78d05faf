package simbase

import (
	"fmt"
	"math"
	"sync"

	"github.com/teslashibe/go-follow/pkg/robot"
	"github.com/teslashibe/go-follow/pkg/tracking"
)

// pixelsPerRadian maps heading change to image motion for a ~60° lens.
const pixelsPerRadian = 610.0

// WorldConfig is the initial scene.
type WorldConfig struct {
	Beams int `yaml:"beams" json:"beams"`

	// OpenRange is reported by beams that see nothing in particular.
	OpenRange float64 `yaml:"open_range" json:"open_range"`

	// Obstacle is the distance to an object straight ahead. 0 means none.
	Obstacle float64 `yaml:"obstacle" json:"obstacle"`

	// Target starts at this image position and depth.
	TargetX     float64 `yaml:"target_x" json:"target_x"`
	TargetY     float64 `yaml:"target_y" json:"target_y"`
	TargetDepth float64 `yaml:"target_depth" json:"target_depth"`
}

// DefaultWorldConfig is a clear room with the target off to the right.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Beams:       720,
		OpenRange:   4.0,
		TargetX:     400,
		TargetY:     tracking.DefaultImageHeight / 2,
		TargetDepth: 3.0,
	}
}

// Validate checks the scene.
func (c *WorldConfig) Validate() error {
	if c.Beams <= 0 {
		return fmt.Errorf("beams must be positive, got %d", c.Beams)
	}
	if !(c.OpenRange > 0) {
		return fmt.Errorf("open range must be positive, got %v", c.OpenRange)
	}
	if c.Obstacle < 0 || c.TargetDepth < 0 {
		return fmt.Errorf("distances must not be negative")
	}
	return nil
}

// World is a one-dimensional corridor: the base drives toward the target,
// and toward the obstacle if there is one.
type World struct {
	mu  sync.Mutex
	cfg WorldConfig

	obstacle float64
	targetX  float64
	targetY  float64
	depth    float64
	joint    float64
}

// NewWorld creates a world in its initial state.
func NewWorld(cfg WorldConfig) *World {
	return &World{
		cfg:      cfg,
		obstacle: cfg.Obstacle,
		targetX:  cfg.TargetX,
		targetY:  cfg.TargetY,
		depth:    cfg.TargetDepth,
	}
}

// Sweep renders the current laser sweep. The obstacle occupies the beams
// straight ahead, which for a 720-beam scanner are 300..359.
func (w *World) Sweep() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	ranges := make([]float64, w.cfg.Beams)
	for i := range ranges {
		ranges[i] = w.cfg.OpenRange
	}
	if w.obstacle > 0 {
		from, to := w.cfg.Beams*300/720, w.cfg.Beams*360/720
		for i := from; i < to; i++ {
			ranges[i] = w.obstacle
		}
	}
	return ranges
}

// Centroid returns the target's image position and depth.
func (w *World) Centroid() (x, y, z float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.targetX, w.targetY, w.depth
}

// Step integrates cmd over dt seconds.
func (w *World) Step(cmd robot.Command, dt float64) {
	if !cmd.IsFinite() || dt <= 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	travel := cmd.Linear * dt
	if w.obstacle > 0 {
		w.obstacle = math.Max(w.obstacle-travel, 0.05)
	}
	w.depth = math.Max(w.depth-travel, 0.1)

	// Turning toward the target moves it toward the image center.
	w.targetX += cmd.Angular * dt * pixelsPerRadian
	w.targetX = math.Max(0, math.Min(tracking.DefaultImageWidth, w.targetX))

	if j, ok := cmd.JointValue(); ok {
		w.joint += j * dt
		w.targetY += j * dt * pixelsPerRadian
		w.targetY = math.Max(0, math.Min(tracking.DefaultImageHeight, w.targetY))
	}
}

// Snapshot is the world state.
type Snapshot struct {
	Obstacle float64 `json:"obstacle"`
	TargetX  float64 `json:"target_x"`
	TargetY  float64 `json:"target_y"`
	Depth    float64 `json:"depth"`
	Joint    float64 `json:"joint"`
}

// Snapshot returns the world state.
func (w *World) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		Obstacle: w.obstacle,
		TargetX:  w.targetX,
		TargetY:  w.targetY,
		Depth:    w.depth,
		Joint:    w.joint,
	}
}

package tracking

import (
	"sync"
	"time"
)

// PID is a single-axis proportional-integral-derivative controller with a
// fixed setpoint:
//
//	output = Kp*e + Ki*∫e dt + Kd*de/dt,  e = Setpoint - measured
//
// The first evaluation has no derivative term. When output limits are set the
// output is clamped and the integral stops accumulating in the saturated
// direction.
type PID struct {
	mu sync.Mutex

	cfg    AxisConfig
	period time.Duration
	now    func() time.Time

	// State
	integral  float64
	lastError float64
	lastTime  time.Time
	primed    bool
}

// NewPID creates a controller for one axis. period is the fallback dt.
func NewPID(cfg AxisConfig, period time.Duration) *PID {
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	return &PID{
		cfg:    cfg,
		period: period,
		now:    time.Now,
	}
}

// Setpoint returns the fixed target value of the axis.
func (p *PID) Setpoint() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Setpoint
}

// Error returns setpoint - measured without touching controller state.
func (p *PID) Error(measured float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Setpoint - measured
}

// Update evaluates the controller using wall time since the previous call.
func (p *PID) Update(measured float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	dt := p.period
	if p.primed {
		if d := now.Sub(p.lastTime); d > 0 {
			dt = d
		}
	}
	p.lastTime = now
	return p.step(measured, dt)
}

// UpdateDt evaluates the controller with an explicit time step. A
// non-positive dt falls back to the sample period.
func (p *PID) UpdateDt(measured float64, dt time.Duration) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if dt <= 0 {
		dt = p.period
	}
	p.lastTime = p.now()
	return p.step(measured, dt)
}

func (p *PID) step(measured float64, dt time.Duration) float64 {
	sec := dt.Seconds()
	e := p.cfg.Setpoint - measured

	var derivative float64
	if p.primed {
		derivative = (e - p.lastError) / sec
	}

	integral := p.integral + e*sec
	output := p.cfg.Kp*e + p.cfg.Ki*integral + p.cfg.Kd*derivative

	if p.cfg.Limited() {
		clamped := clamp(output, p.cfg.OutputMin, p.cfg.OutputMax)
		// Anti-windup: keep the integral only if it does not push further
		// into saturation.
		if clamped == output || (output > clamped) != (e*p.cfg.Ki > 0) {
			p.integral = integral
		}
		output = clamped
	} else {
		p.integral = integral
	}

	p.lastError = e
	p.primed = true
	return output
}

// Reset clears integral and derivative memory.
func (p *PID) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integral = 0
	p.lastError = 0
	p.lastTime = time.Time{}
	p.primed = false
}

package tracking

// Gains is the runtime-adjustable part of one axis.
type Gains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// GainsUpdate changes gains at runtime. Nil fields are left unchanged.
type GainsUpdate struct {
	Kp *float64 `json:"kp,omitempty"`
	Ki *float64 `json:"ki,omitempty"`
	Kd *float64 `json:"kd,omitempty"`
}

// TuningParams holds the gains of all three axes.
type TuningParams struct {
	Distance Gains `json:"distance"`
	Bearing  Gains `json:"bearing"`
	Tilt     Gains `json:"tilt"`
}

// TuningUpdate is a partial update of TuningParams.
type TuningUpdate struct {
	Distance GainsUpdate `json:"distance"`
	Bearing  GainsUpdate `json:"bearing"`
	Tilt     GainsUpdate `json:"tilt"`
}

// Gains returns the current gains.
func (p *PID) Gains() Gains {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Gains{Kp: p.cfg.Kp, Ki: p.cfg.Ki, Kd: p.cfg.Kd}
}

// SetGains applies a partial gain update. Changing Ki resets the integral so
// the output does not jump.
func (p *PID) SetGains(u GainsUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if u.Kp != nil {
		p.cfg.Kp = *u.Kp
	}
	if u.Ki != nil && *u.Ki != p.cfg.Ki {
		p.cfg.Ki = *u.Ki
		p.integral = 0
	}
	if u.Kd != nil {
		p.cfg.Kd = *u.Kd
	}
}

package layout

import (
	"errors"
	"fmt"
	"math"
)

// Options configures packing and the force simulation.
type Options struct {
	Width  float64 `koanf:"width"`
	Height float64 `koanf:"height"`

	NodeRadius     float64 `koanf:"node_radius"`     // drawn radius; bodies stay this far inside the canvas
	LinkDistance   float64 `koanf:"link_distance"`   // spring rest length
	LinkIterations int     `koanf:"link_iterations"` // link force passes per tick
	ChargeStrength float64 `koanf:"charge_strength"` // negative repels
	AnchorStrength float64 `koanf:"anchor_strength"` // pull toward the packed component center

	BaseRadius    float64 `koanf:"base_radius"`
	PerNodeRadius float64 `koanf:"per_node_radius"`
	Padding       float64 `koanf:"padding"`
	Margin        float64 `koanf:"margin"`
	MaxAttempts   int     `koanf:"max_attempts"`
	ShrinkFactor  float64 `koanf:"shrink_factor"`
	MaxShrinks    int     `koanf:"max_shrinks"`

	Alpha           float64 `koanf:"alpha"`
	AlphaMin        float64 `koanf:"alpha_min"`
	AlphaDecay      float64 `koanf:"alpha_decay"`
	AlphaTarget     float64 `koanf:"alpha_target"`
	DragAlphaTarget float64 `koanf:"drag_alpha_target"`
	VelocityDecay   float64 `koanf:"velocity_decay"`

	// Touch keeps a dragged node pinned after the drag ends.
	Touch bool   `koanf:"touch"`
	Seed  uint64 `koanf:"seed"`
}

// DefaultOptions returns the settings the viewer was tuned with.
func DefaultOptions() Options {
	return Options{
		Width:  1600,
		Height: 1200,

		NodeRadius:     30,
		LinkDistance:   250,
		LinkIterations: 1,
		ChargeStrength: -600,
		AnchorStrength: 0.03,

		BaseRadius:    60,
		PerNodeRadius: 40,
		Padding:       40,
		Margin:        35,
		MaxAttempts:   200,
		ShrinkFactor:  0.9,
		MaxShrinks:    30,

		Alpha:           1,
		AlphaMin:        0.001,
		AlphaDecay:      1 - math.Pow(0.001, 1.0/300),
		AlphaTarget:     0,
		DragAlphaTarget: 0.3,
		VelocityDecay:   0.4,

		Seed: 1,
	}
}

// ErrInvalidBounds is returned for a canvas without positive finite size.
var ErrInvalidBounds = errors.New("invalid canvas bounds")

// Validate reports settings the engine cannot run with.
func (o Options) Validate() error {
	if err := checkBounds(o.Width, o.Height); err != nil {
		return err
	}
	switch {
	case o.MaxAttempts <= 0:
		return fmt.Errorf("max attempts must be positive, got %d", o.MaxAttempts)
	case o.MaxShrinks < 0:
		return fmt.Errorf("max shrinks must not be negative, got %d", o.MaxShrinks)
	case o.ShrinkFactor <= 0 || o.ShrinkFactor >= 1:
		return fmt.Errorf("shrink factor must be in (0, 1), got %g", o.ShrinkFactor)
	case o.VelocityDecay < 0 || o.VelocityDecay > 1:
		return fmt.Errorf("velocity decay must be in [0, 1], got %g", o.VelocityDecay)
	case o.AlphaDecay < 0 || o.AlphaDecay > 1:
		return fmt.Errorf("alpha decay must be in [0, 1], got %g", o.AlphaDecay)
	case o.NodeRadius < 0 || o.Margin < 0 || o.Padding < 0:
		return fmt.Errorf("radius, margin and padding must not be negative")
	}
	return nil
}

func checkBounds(w, h float64) error {
	if !(w > 0) || !(h > 0) || math.IsInf(w, 0) || math.IsInf(h, 0) {
		return fmt.Errorf("%w: %gx%g", ErrInvalidBounds, w, h)
	}
	return nil
}

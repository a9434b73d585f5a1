package layout

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"
)

// Placement is where Pack put one component.
type Placement struct {
	Center r2.Vec
	Radius float64 // radius the component was accepted with
	Forced bool    // accepted after the retry budget ran out
}

// Packing is the result of Pack.
type Packing struct {
	Components []Placement       // indexed like the input components
	Positions  map[string]r2.Vec // initial position per member
}

// ComponentRadius is the packing radius of a component with n members.
func ComponentRadius(n int, opts Options) float64 {
	return opts.BaseRadius + opts.PerNodeRadius*math.Sqrt(float64(n))
}

// Pack places each component as a disk inside the canvas, largest first,
// by rejection sampling. A candidate is accepted when it keeps Padding
// between its disk and every disk placed before it. After MaxAttempts
// rejections the candidate disk shrinks by ShrinkFactor; after MaxShrinks
// shrinks the next candidate is accepted as is, so Pack always returns.
// Members are scattered uniformly over their disk.
func Pack(components [][]string, opts Options, rng *rand.Rand) Packing {
	p := Packing{
		Components: make([]Placement, len(components)),
		Positions:  make(map[string]r2.Vec),
	}

	order := make([]int, len(components))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(len(components[b]), len(components[a]))
	})

	var placed []int
	for _, ci := range order {
		placement := place(ComponentRadius(len(components[ci]), opts), p.Components, placed, opts, rng)
		p.Components[ci] = placement
		placed = append(placed, ci)

		spread := max(0, placement.Radius-opts.Margin)
		for _, id := range components[ci] {
			r := spread * math.Sqrt(rng.Float64())
			theta := 2 * math.Pi * rng.Float64()
			offset := r2.Vec{X: r * math.Cos(theta), Y: r * math.Sin(theta)}
			p.Positions[id] = clampPoint(r2.Add(placement.Center, offset), opts)
		}
	}

	return p
}

func place(radius float64, all []Placement, placed []int, opts Options, rng *rand.Rand) Placement {
	accept := radius
	padding := opts.Padding

	for shrink := 0; ; shrink++ {
		for range opts.MaxAttempts {
			c := sampleCenter(accept, opts, rng)
			if fits(c, accept, padding, all, placed) {
				return Placement{Center: c, Radius: accept}
			}
		}
		if shrink >= opts.MaxShrinks {
			return Placement{Center: sampleCenter(accept, opts, rng), Radius: accept, Forced: true}
		}
		accept *= opts.ShrinkFactor
		padding *= opts.ShrinkFactor
	}
}

func fits(c r2.Vec, radius, padding float64, all []Placement, placed []int) bool {
	for _, j := range placed {
		if r2.Norm(r2.Sub(c, all[j].Center)) <= radius+all[j].Radius+padding {
			return false
		}
	}
	return true
}

// sampleCenter draws a center keeping the disk inside the canvas where it fits.
func sampleCenter(radius float64, opts Options, rng *rand.Rand) r2.Vec {
	return r2.Vec{
		X: sampleAxis(radius, opts.Width, rng),
		Y: sampleAxis(radius, opts.Height, rng),
	}
}

func sampleAxis(radius, extent float64, rng *rand.Rand) float64 {
	lo, hi := radius, extent-radius
	if hi <= lo {
		return extent / 2
	}
	return lo + rng.Float64()*(hi-lo)
}

// clampPoint keeps p inside the canvas, NodeRadius away from the edges.
// Non-finite coordinates are moved to the canvas center.
func clampPoint(p r2.Vec, opts Options) r2.Vec {
	return r2.Vec{
		X: clampAxis(p.X, opts.NodeRadius, opts.Width),
		Y: clampAxis(p.Y, opts.NodeRadius, opts.Height),
	}
}

func clampAxis(v, inset, extent float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return extent / 2
	}
	lo, hi := inset, extent-inset
	if hi < lo {
		return extent / 2
	}
	return min(max(v, lo), hi)
}

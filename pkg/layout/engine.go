package layout

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ritzau/forward-chain/pkg/model"
)

// ErrUnknownNode is returned by interaction calls naming a node the engine
// does not hold.
var ErrUnknownNode = errors.New("unknown node")

// Point is a position on the canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Snapshot is the state of the layout after a tick.
type Snapshot struct {
	Tick      uint64           `json:"tick"`
	Alpha     float64          `json:"alpha"`
	Width     float64          `json:"width"`
	Height    float64          `json:"height"`
	Positions map[string]Point `json:"positions"`
	Pinned    []string         `json:"pinned"`
	Dragging  string           `json:"dragging,omitempty"`
	Settled   bool             `json:"settled"`
}

// Body is the simulation state of one node.
type Body struct {
	Pos       r2.Vec
	Vel       r2.Vec
	Pin       *r2.Vec
	Component int
}

type spring struct {
	source, target int
	bias           float64 // share of the correction applied to the target
	strength       float64 // 1 at rest; 0 for links outside a dragged component
}

// Engine positions nodes with a force simulation. It is not safe for
// concurrent use; Session serializes access.
type Engine struct {
	opts Options
	rng  *rand.Rand

	ids     []string
	index   map[string]int
	bodies  []Body
	springs []spring
	anchors []r2.Vec // packed center per component
	members [][]int  // body indices per component

	alpha       float64
	alphaTarget float64
	dragging    int // body index, -1 when idle
	tick        uint64

	subscribers map[int]func(Snapshot)
	nextSub     int
}

// NewEngine packs the network's components onto the canvas and prepares the
// simulation. Components are taken from Node.ComponentGroup.
func NewEngine(net *model.Network, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		opts:        opts,
		rng:         rand.New(rand.NewPCG(opts.Seed, opts.Seed^0xdeadbeef)),
		index:       make(map[string]int, len(net.Nodes)),
		alpha:       opts.Alpha,
		alphaTarget: opts.AlphaTarget,
		dragging:    -1,
		subscribers: make(map[int]func(Snapshot)),
	}

	// Component numbers may be sparse; renumber densely in first-seen order.
	dense := make(map[int]int)
	var components [][]string
	for _, n := range net.Nodes {
		if _, dup := e.index[n.ID]; dup {
			continue
		}
		c, ok := dense[n.ComponentGroup]
		if !ok {
			c = len(components)
			dense[n.ComponentGroup] = c
			components = append(components, nil)
			e.members = append(e.members, nil)
		}
		i := len(e.ids)
		e.index[n.ID] = i
		e.ids = append(e.ids, n.ID)
		e.bodies = append(e.bodies, Body{Component: c})
		components[c] = append(components[c], n.ID)
		e.members[c] = append(e.members[c], i)
	}

	packing := Pack(components, opts, e.rng)
	e.anchors = make([]r2.Vec, len(components))
	for c, placement := range packing.Components {
		e.anchors[c] = placement.Center
	}
	for i, id := range e.ids {
		e.bodies[i].Pos = packing.Positions[id]
	}

	degree := make([]int, len(e.ids))
	for _, l := range net.Links {
		s, okS := e.index[l.Source]
		t, okT := e.index[l.Target]
		if !okS || !okT || s == t {
			continue
		}
		e.springs = append(e.springs, spring{source: s, target: t, strength: 1})
		degree[s]++
		degree[t]++
	}
	for k := range e.springs {
		sp := &e.springs[k]
		sp.bias = float64(degree[sp.source]) / float64(degree[sp.source]+degree[sp.target])
	}

	return e, nil
}

// Len returns the number of bodies.
func (e *Engine) Len() int {
	return len(e.bodies)
}

// Options returns the engine's current options, including canvas bounds.
func (e *Engine) Options() Options {
	return e.opts
}

// Position returns the position of id.
func (e *Engine) Position(id string) (Point, error) {
	i, ok := e.index[id]
	if !ok {
		return Point{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return Point{X: e.bodies[i].Pos.X, Y: e.bodies[i].Pos.Y}, nil
}

// Alpha returns the current simulation heat.
func (e *Engine) Alpha() float64 {
	return e.alpha
}

// Settled reports whether the simulation has cooled and no drag is active.
func (e *Engine) Settled() bool {
	return e.dragging < 0 && e.alpha < e.opts.AlphaMin
}

// Subscribe registers fn to receive a snapshot after every tick. The
// returned function removes the subscription.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn
	return func() { delete(e.subscribers, id) }
}

// Tick advances the simulation one step.
func (e *Engine) Tick() {
	e.alpha += (e.alphaTarget - e.alpha) * e.opts.AlphaDecay

	for range max(e.opts.LinkIterations, 1) {
		e.applyLinks()
	}
	e.applyCharge()
	e.applyAnchors()
	e.applyCollisions()
	e.integrate()

	e.tick++
	if len(e.subscribers) > 0 {
		snap := e.Snapshot()
		for _, fn := range e.subscribers {
			fn(snap)
		}
	}
}

// active reports whether body i is integrated this tick. During a drag only
// the dragged component moves.
func (e *Engine) active(i int) bool {
	return e.dragging < 0 || e.bodies[i].Component == e.bodies[e.dragging].Component
}

func (e *Engine) applyLinks() {
	for _, sp := range e.springs {
		w := sp.strength
		if w == 0 {
			continue
		}
		s, t := &e.bodies[sp.source], &e.bodies[sp.target]
		d := r2.Sub(r2.Add(t.Pos, t.Vel), r2.Add(s.Pos, s.Vel))
		if d.X == 0 {
			d.X = e.jiggle()
		}
		if d.Y == 0 {
			d.Y = e.jiggle()
		}
		l := r2.Norm(d)
		d = r2.Scale((l-e.opts.LinkDistance)/l*e.alpha*w, d)
		t.Vel = r2.Sub(t.Vel, r2.Scale(sp.bias, d))
		s.Vel = r2.Add(s.Vel, r2.Scale(1-sp.bias, d))
	}
}

// applyCharge repels nodes of the same component from each other.
func (e *Engine) applyCharge() {
	if e.opts.ChargeStrength == 0 {
		return
	}
	for c, members := range e.members {
		if e.dragging >= 0 && e.bodies[e.dragging].Component != c {
			continue
		}
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				i, j := &e.bodies[members[a]], &e.bodies[members[b]]
				d := r2.Sub(j.Pos, i.Pos)
				if d.X == 0 {
					d.X = e.jiggle()
				}
				if d.Y == 0 {
					d.Y = e.jiggle()
				}
				l2 := r2.Norm2(d)
				if l2 < 1 {
					l2 = math.Sqrt(l2)
				}
				f := r2.Scale(e.opts.ChargeStrength*e.alpha/l2, d)
				i.Vel = r2.Add(i.Vel, f)
				j.Vel = r2.Sub(j.Vel, f)
			}
		}
	}
}

func (e *Engine) applyAnchors() {
	if e.opts.AnchorStrength == 0 {
		return
	}
	for i := range e.bodies {
		if !e.active(i) {
			continue
		}
		b := &e.bodies[i]
		pull := r2.Sub(e.anchors[b.Component], b.Pos)
		b.Vel = r2.Add(b.Vel, r2.Scale(e.opts.AnchorStrength*e.alpha, pull))
	}
}

// applyCollisions pushes apart bodies closer than two node radii.
func (e *Engine) applyCollisions() {
	minDist := 2 * e.opts.NodeRadius
	if minDist <= 0 {
		return
	}
	for i := range e.bodies {
		for j := i + 1; j < len(e.bodies); j++ {
			ai, aj := e.active(i), e.active(j)
			if !ai && !aj {
				continue
			}
			a, b := &e.bodies[i], &e.bodies[j]
			d := r2.Sub(r2.Add(a.Pos, a.Vel), r2.Add(b.Pos, b.Vel))
			l2 := r2.Norm2(d)
			if l2 >= minDist*minDist {
				continue
			}
			if d.X == 0 {
				d.X = e.jiggle()
			}
			if d.Y == 0 {
				d.Y = e.jiggle()
			}
			l := r2.Norm(d)
			push := r2.Scale((minDist-l)/l/2, d)
			if ai {
				a.Vel = r2.Add(a.Vel, push)
			}
			if aj {
				b.Vel = r2.Sub(b.Vel, push)
			}
		}
	}
}

func (e *Engine) integrate() {
	keep := 1 - e.opts.VelocityDecay
	for i := range e.bodies {
		b := &e.bodies[i]
		if !e.active(i) {
			b.Vel = r2.Vec{}
			continue
		}
		if b.Pin != nil {
			b.Pos = *b.Pin
			b.Vel = r2.Vec{}
			continue
		}
		b.Vel = r2.Scale(keep, b.Vel)
		next := clampPoint(r2.Add(b.Pos, b.Vel), e.opts)
		if next.X != b.Pos.X+b.Vel.X {
			b.Vel.X = 0
		}
		if next.Y != b.Pos.Y+b.Vel.Y {
			b.Vel.Y = 0
		}
		b.Pos = next
	}
}

func (e *Engine) jiggle() float64 {
	return (e.rng.Float64() - 0.5) * 1e-6
}

func (e *Engine) lookup(id string) (int, error) {
	i, ok := e.index[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return i, nil
}

// DragStart pins id where it is, reheats the simulation and restricts link
// forces to the dragged component.
func (e *Engine) DragStart(id string) error {
	i, err := e.lookup(id)
	if err != nil {
		return err
	}

	pin := e.bodies[i].Pos
	e.bodies[i].Pin = &pin
	e.dragging = i
	e.alphaTarget = e.opts.DragAlphaTarget
	e.alpha = max(e.alpha, e.opts.DragAlphaTarget)

	c := e.bodies[i].Component
	for k := range e.springs {
		sp := &e.springs[k]
		if e.bodies[sp.source].Component == c && e.bodies[sp.target].Component == c {
			sp.strength = 1
		} else {
			sp.strength = 0
		}
	}
	return nil
}

// DragMove moves the pin of id to (x, y), clamped to the canvas.
func (e *Engine) DragMove(id string, x, y float64) error {
	i, err := e.lookup(id)
	if err != nil {
		return err
	}
	pin := clampPoint(r2.Vec{X: x, Y: y}, e.opts)
	e.bodies[i].Pin = &pin
	return nil
}

// DragEnd lets the simulation cool again and restores all link forces. The
// pin is released unless the engine runs with the touch policy. Ending a
// drag on a node that is not being dragged changes nothing.
func (e *Engine) DragEnd(id string) error {
	i, err := e.lookup(id)
	if err != nil {
		return err
	}
	if e.dragging != i {
		return nil
	}

	e.alphaTarget = e.opts.AlphaTarget
	for k := range e.springs {
		e.springs[k].strength = 1
	}
	if !e.opts.Touch {
		e.bodies[i].Pin = nil
	}
	e.dragging = -1
	return nil
}

// Release clears the pin of id.
func (e *Engine) Release(id string) error {
	i, err := e.lookup(id)
	if err != nil {
		return err
	}
	e.bodies[i].Pin = nil
	e.alpha = max(e.alpha, e.opts.AlphaMin*2)
	return nil
}

// SetCanvasBounds resizes the canvas and moves every body and pin inside it.
func (e *Engine) SetCanvasBounds(width, height float64) error {
	if err := checkBounds(width, height); err != nil {
		return err
	}
	e.opts.Width, e.opts.Height = width, height
	for i := range e.bodies {
		b := &e.bodies[i]
		b.Pos = clampPoint(b.Pos, e.opts)
		if b.Pin != nil {
			pin := clampPoint(*b.Pin, e.opts)
			b.Pin = &pin
		}
	}
	for c := range e.anchors {
		e.anchors[c] = clampPoint(e.anchors[c], e.opts)
	}
	return nil
}

// Snapshot returns the current positions.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Tick:      e.tick,
		Alpha:     e.alpha,
		Width:     e.opts.Width,
		Height:    e.opts.Height,
		Positions: make(map[string]Point, len(e.bodies)),
		Pinned:    make([]string, 0),
		Settled:   e.Settled(),
	}
	for i, b := range e.bodies {
		snap.Positions[e.ids[i]] = Point{X: b.Pos.X, Y: b.Pos.Y}
		if b.Pin != nil {
			snap.Pinned = append(snap.Pinned, e.ids[i])
		}
	}
	slices.Sort(snap.Pinned)
	if e.dragging >= 0 {
		snap.Dragging = e.ids[e.dragging]
	}
	return snap
}

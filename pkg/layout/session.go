package layout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ritzau/forward-chain/pkg/logging"
)

// ErrSessionStopped is returned for commands sent to a stopped session.
var ErrSessionStopped = errors.New("layout session stopped")

// DefaultTickInterval paces the simulation at roughly 60 ticks per second.
const DefaultTickInterval = 16 * time.Millisecond

type command struct {
	apply func(*Engine) error
	reply chan error
}

// Session runs one Engine on its own goroutine. Ticks come from a ticker
// and commands are applied between ticks, so the engine is never touched
// concurrently.
type Session struct {
	engine   *Engine
	interval time.Duration
	commands chan command
	stop     chan struct{}
	done     chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	mu     sync.RWMutex
	latest Snapshot
}

// NewSession wraps engine. Subscribe on the engine before calling Start.
func NewSession(engine *Engine, interval time.Duration) *Session {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	s := &Session{
		engine:   engine,
		interval: interval,
		commands: make(chan command),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		latest:   engine.Snapshot(),
	}
	engine.Subscribe(func(snap Snapshot) {
		s.mu.Lock()
		s.latest = snap
		s.mu.Unlock()
	})
	return s
}

// Start launches the session goroutine. It runs until ctx is cancelled or
// Stop is called.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
	})
}

// Stop halts the session at a tick boundary and waits for it to exit.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.startOnce.Do(func() {
		// never started
		close(s.done)
	})
	<-s.done
}

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Debug("layout session started", "nodes", s.engine.Len(), "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			logging.Debug("layout session cancelled")
			return
		case <-s.stop:
			logging.Debug("layout session stopped")
			return
		case cmd := <-s.commands:
			cmd.reply <- cmd.apply(s.engine)
			s.refresh()
		case <-ticker.C:
			if !s.engine.Settled() {
				s.engine.Tick()
			}
		}
	}
}

// refresh records a snapshot after a command so readers see the change
// without waiting for the next tick.
func (s *Session) refresh() {
	snap := s.engine.Snapshot()
	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()
}

// Do runs fn on the session goroutine and returns its error.
func (s *Session) Do(ctx context.Context, fn func(*Engine) error) error {
	cmd := command{apply: fn, reply: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-cmd.reply
}

// Snapshot returns the most recent snapshot.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// DragStart forwards to Engine.DragStart.
func (s *Session) DragStart(ctx context.Context, id string) error {
	return s.Do(ctx, func(e *Engine) error { return e.DragStart(id) })
}

// DragMove forwards to Engine.DragMove.
func (s *Session) DragMove(ctx context.Context, id string, x, y float64) error {
	return s.Do(ctx, func(e *Engine) error { return e.DragMove(id, x, y) })
}

// DragEnd forwards to Engine.DragEnd.
func (s *Session) DragEnd(ctx context.Context, id string) error {
	return s.Do(ctx, func(e *Engine) error { return e.DragEnd(id) })
}

// Release forwards to Engine.Release.
func (s *Session) Release(ctx context.Context, id string) error {
	return s.Do(ctx, func(e *Engine) error { return e.Release(id) })
}

// SetCanvasBounds forwards to Engine.SetCanvasBounds.
func (s *Session) SetCanvasBounds(ctx context.Context, width, height float64) error {
	return s.Do(ctx, func(e *Engine) error { return e.SetCanvasBounds(width, height) })
}

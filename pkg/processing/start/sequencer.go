package start

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultLights = 5
	DefaultDelay  = 700 * time.Millisecond
)

// Events receives the signals of the start sequence.
// Both methods are called from within the guard of the sequencer.
type Events interface {
	// OnLight is called for each light stage 1..n
	OnLight(stage int)
	// OnStarted is called exactly once per sequence, one delay after the last light
	OnStarted()
}

// Sequencer gates the session start behind a countdown of lights.
//
// The sequencer does not own a lock. All calls to Start and Close and all
// timer callbacks must run within the same guard, which is usually the
// lock of the state owner (see WithGuard).
type Sequencer struct {
	clock    clockwork.Clock
	events   Events
	lights   int
	delay    time.Duration
	guard    func(func())
	starting bool
	stage    int
	timer    clockwork.Timer
	closed   bool
}

type Option func(s *Sequencer)

func WithLights(n int) Option {
	return func(s *Sequencer) {
		if n > 0 {
			s.lights = n
		}
	}
}

func WithDelay(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithGuard sets the function used to serialize timer callbacks with the
// owner's other mutations.
func WithGuard(guard func(func())) Option {
	return func(s *Sequencer) {
		s.guard = guard
	}
}

func NewSequencer(clock clockwork.Clock, events Events, opts ...Option) *Sequencer {
	ret := &Sequencer{
		clock:  clock,
		events: events,
		lights: DefaultLights,
		delay:  DefaultDelay,
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.guard == nil {
		mu := sync.Mutex{}
		ret.guard = func(f func()) {
			mu.Lock()
			defer mu.Unlock()
			f()
		}
	}
	return ret
}

func (s *Sequencer) Starting() bool {
	return s.starting
}

// Lights returns the number of light stages
func (s *Sequencer) Lights() int {
	return s.lights
}

// Start begins the countdown. The first light is signaled immediately.
// Returns false (and does nothing) if a countdown is already in progress
// or the session is running.
func (s *Sequencer) Start(running bool) bool {
	if s.starting || running || s.closed {
		return false
	}
	s.starting = true
	s.stage = 0
	s.step()
	return true
}

// Close stops a pending countdown timer. No further events are emitted.
func (s *Sequencer) Close() {
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.starting = false
}

func (s *Sequencer) step() {
	if s.stage == s.lights {
		s.starting = false
		s.timer = nil
		s.events.OnStarted()
		return
	}
	s.stage++
	s.events.OnLight(s.stage)
	s.timer = s.clock.AfterFunc(s.delay, func() {
		s.guard(s.fire)
	})
}

func (s *Sequencer) fire() {
	if !s.starting || s.closed {
		return
	}
	s.step()
}

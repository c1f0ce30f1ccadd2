package clock

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mpapenbr/lapclock/pkg/model"
)

// Clock converts readings of a monotonic time source into session time.
// It holds no session state itself, the session is passed in by the owner.
type Clock struct {
	source clockwork.Clock
}

func New(source clockwork.Clock) *Clock {
	if source == nil {
		source = clockwork.NewRealClock()
	}
	return &Clock{source: source}
}

// Source returns the underlying time source (used for timers)
func (c *Clock) Source() clockwork.Clock {
	return c.source
}

func (c *Clock) Now() time.Time {
	return c.source.Now()
}

// SessionTime returns the elapsed session time.
func (c *Clock) SessionTime(s *model.Session) time.Duration {
	if !s.Running {
		return s.Elapsed
	}
	return s.Elapsed + c.source.Since(s.StartedAt)
}

// Pause freezes the session time. Returns false if the session was not running.
func (c *Clock) Pause(s *model.Session) bool {
	if !s.Running {
		return false
	}
	s.Elapsed = c.SessionTime(s)
	s.Running = false
	s.StartedAt = time.Time{}
	return true
}

// Resume continues counting from the current Elapsed value.
// Returns false if the session was already running.
func (c *Clock) Resume(s *model.Session) bool {
	if s.Running {
		return false
	}
	s.StartedAt = c.source.Now()
	s.Running = true
	return true
}

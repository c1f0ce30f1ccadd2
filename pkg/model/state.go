package model

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	MaxParticipants    = 4
	DefaultActiveCount = 2
)

type Status string

const (
	StatusStarting Status = "STARTING"
	StatusRunning  Status = "RUNNING"
	StatusPaused   Status = "PAUSED"
)

type Flag string

const (
	FlagSafetyCar        Flag = "sc"
	FlagVirtualSafetyCar Flag = "vsc"
)

// Session holds the clock related values.
// StartedAt is only set while Running is true.
type Session struct {
	Running   bool
	StartedAt time.Time
	Elapsed   time.Duration // accumulated session time up to the last pause
}

// Flags are mutually exclusive, at most one of them is set
type Flags struct {
	SafetyCar        bool
	VirtualSafetyCar bool
}

// Toggle flips the given flag. Setting one flag clears the other one.
// Returns false if the flag is unknown.
func (f *Flags) Toggle(flag Flag) bool {
	switch flag {
	case FlagSafetyCar:
		f.SafetyCar = !f.SafetyCar
		if f.SafetyCar {
			f.VirtualSafetyCar = false
		}
	case FlagVirtualSafetyCar:
		f.VirtualSafetyCar = !f.VirtualSafetyCar
		if f.VirtualSafetyCar {
			f.SafetyCar = false
		}
	default:
		return false
	}
	return true
}

type Roster struct {
	ActiveCount       int // participants 1..ActiveCount take part in the session
	ActiveParticipant int // the participant selected for single key lap registration
}

// SetActiveCount changes the number of participants.
// The active participant is clamped down if needed.
func (r *Roster) SetActiveCount(n int) {
	r.ActiveCount = n
	if r.ActiveParticipant > n {
		r.ActiveParticipant = n
	}
}

// NextActive cycles the active participant through 1..ActiveCount
func (r *Roster) NextActive() {
	r.ActiveParticipant = r.ActiveParticipant%r.ActiveCount + 1
}

type Participant struct {
	ID              int
	Name            string
	Laps            []time.Duration // chronological
	LastLapBoundary *time.Duration  // session time at which the current lap began
	Best            *time.Duration
	LastLap         *time.Duration
	TotalTime       time.Duration
	// LastRegister is the time of the last accepted lap registration.
	// It is transient and never persisted.
	LastRegister time.Time
}

func DefaultName(id int) string {
	return fmt.Sprintf("Driver %d", id)
}

func NewParticipant(id int) *Participant {
	return &Participant{ID: id, Name: DefaultName(id), Laps: []time.Duration{}}
}

// Recompute derives TotalTime, Best and LastLap from Laps
func (p *Participant) Recompute() {
	p.TotalTime = 0
	p.Best = nil
	p.LastLap = nil
	for _, lap := range p.Laps {
		p.TotalTime += lap
		if p.Best == nil || lap < *p.Best {
			p.Best = DurationPtr(lap)
		}
	}
	if len(p.Laps) > 0 {
		p.LastLap = DurationPtr(p.Laps[len(p.Laps)-1])
	}
}

func (p *Participant) Clone() *Participant {
	ret := *p
	ret.Laps = slices.Clone(p.Laps)
	if ret.Laps == nil {
		ret.Laps = []time.Duration{}
	}
	ret.LastLapBoundary = cloneDuration(p.LastLapBoundary)
	ret.Best = cloneDuration(p.Best)
	ret.LastLap = cloneDuration(p.LastLap)
	return &ret
}

// State is the session aggregate.
type State struct {
	ID           string // regenerated on every hard reset
	Session      Session
	Flags        Flags
	Roster       Roster
	Participants [MaxParticipants]*Participant
	Starting     bool // start sequence in progress
	LightsOn     int  // number of start lights currently on
}

func NewState() *State {
	s := &State{
		ID: uuid.NewString(),
		Roster: Roster{
			ActiveCount:       DefaultActiveCount,
			ActiveParticipant: 1,
		},
	}
	for i := range s.Participants {
		s.Participants[i] = NewParticipant(i + 1)
	}
	return s
}

func (s *State) Status() Status {
	switch {
	case s.Starting:
		return StatusStarting
	case s.Session.Running:
		return StatusRunning
	default:
		return StatusPaused
	}
}

// Participant returns the participant with the given id or nil
func (s *State) Participant(id int) *Participant {
	if id < 1 || id > MaxParticipants {
		return nil
	}
	return s.Participants[id-1]
}

func (s *State) IsActive(id int) bool {
	return id >= 1 && id <= s.Roster.ActiveCount
}

// Active returns the participants taking part in the session in id order
func (s *State) Active() []*Participant {
	return s.Participants[:s.Roster.ActiveCount]
}

func (s *State) Clone() *State {
	ret := *s
	for i, p := range s.Participants {
		ret.Participants[i] = p.Clone()
	}
	return &ret
}

func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

func cloneDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	return DurationPtr(*d)
}

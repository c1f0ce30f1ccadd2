package lap

import (
	"time"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/model"
)

const DefaultDebounce = 300 * time.Millisecond

// Tracker computes lap boundaries and statistics of participants.
type Tracker struct {
	debounce time.Duration
	log      *log.Logger
}

type Option func(t *Tracker)

func WithDebounce(d time.Duration) Option {
	return func(t *Tracker) {
		if d >= 0 {
			t.debounce = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) {
		t.log = l
	}
}

func NewTracker(opts ...Option) *Tracker {
	ret := &Tracker{
		debounce: DefaultDebounce,
		log:      log.Default().Named("processing.lap"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// RegisterLap completes the current lap of p.
// now is a reading of the monotonic time source (used for debouncing),
// sessionTime the current session time.
// Returns false if the call was debounced and p was left untouched.
//
//nolint:whitespace // can't make both editor and linter happy
func (t *Tracker) RegisterLap(
	p *model.Participant,
	now time.Time,
	sessionTime time.Duration,
) bool {
	if !p.LastRegister.IsZero() && now.Sub(p.LastRegister) < t.debounce {
		t.log.Debug("lap registration debounced",
			log.Int("participant", p.ID),
			log.Duration("sinceLast", now.Sub(p.LastRegister)))
		return false
	}
	p.LastRegister = now

	if p.LastLapBoundary == nil {
		p.LastLapBoundary = model.DurationPtr(sessionTime)
	}
	lap := max(0, (sessionTime - *p.LastLapBoundary).Truncate(time.Millisecond))

	p.Laps = append(p.Laps, lap)
	p.LastLapBoundary = model.DurationPtr(sessionTime)
	p.LastLap = model.DurationPtr(lap)
	p.TotalTime += lap
	if p.Best == nil || lap < *p.Best {
		p.Best = model.DurationPtr(lap)
	}
	t.log.Debug("lap registered",
		log.Int("participant", p.ID),
		log.Int("lap", len(p.Laps)),
		log.Duration("time", lap))
	return true
}

// MarkBoundary sets the lap boundary of all given participants,
// establishing lap zero for them.
func (t *Tracker) MarkBoundary(participants []*model.Participant, sessionTime time.Duration) {
	for _, p := range participants {
		p.LastLapBoundary = model.DurationPtr(sessionTime)
	}
}

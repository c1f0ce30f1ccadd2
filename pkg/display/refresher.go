package display

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/processing"
)

const DefaultRefreshInterval = 50 * time.Millisecond

// ViewSource provides the current view on demand
type ViewSource interface {
	View() processing.View
}

// Refresher periodically renders the current view while the session is
// running. The periodic task only exists while the last view passed to
// Update was running.
type Refresher struct {
	clock    clockwork.Clock
	interval time.Duration
	source   ViewSource
	render   func(processing.View)
	log      *log.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

type RefresherOption func(r *Refresher)

func WithInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithClock(c clockwork.Clock) RefresherOption {
	return func(r *Refresher) {
		r.clock = c
	}
}

//nolint:whitespace // can't make both editor and linter happy
func NewRefresher(
	source ViewSource,
	render func(processing.View),
	opts ...RefresherOption,
) *Refresher {
	ret := &Refresher{
		clock:    clockwork.NewRealClock(),
		interval: DefaultRefreshInterval,
		source:   source,
		render:   render,
		log:      log.Default().Named("display"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Update starts the periodic task for a running view and stops it
// otherwise. Stopping returns after the task has ended.
func (r *Refresher) Update(v processing.View) {
	if v.Running() {
		r.start()
	} else {
		r.Stop()
	}
}

// Active reports whether the periodic task exists
func (r *Refresher) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop != nil
}

func (r *Refresher) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	ticker := r.clock.NewTicker(r.interval)
	r.log.Debug("refresh started", log.Duration("interval", r.interval))
	go r.loop(ticker, r.stop, r.done)
}

// Stop ends the periodic task and waits for it
func (r *Refresher) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	r.log.Debug("refresh stopped")
}

// release forgets the task identified by stop unless it was replaced already
func (r *Refresher) release(stop chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop == stop {
		r.stop, r.done = nil, nil
	}
}

//nolint:whitespace // can't make both editor and linter happy
func (r *Refresher) loop(
	ticker clockwork.Ticker,
	stop chan struct{},
	done chan<- struct{},
) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			v := r.source.View()
			if !v.Running() {
				// the stopping view may never have reached Update
				r.release(stop)
				r.log.Debug("refresh ended, session not running")
				return
			}
			r.render(v)
		}
	}
}

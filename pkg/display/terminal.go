package display

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/processing"
)

// Terminal renders session views to a writer. Complete views are written
// on every update, the clock line is refreshed in between while the
// session is running.
type Terminal struct {
	mu        sync.Mutex
	w         io.Writer
	refresher *Refresher
	log       *log.Logger
}

func NewTerminal(w io.Writer, source ViewSource, opts ...RefresherOption) *Terminal {
	ret := &Terminal{
		w:   w,
		log: log.Default().Named("display"),
	}
	ret.refresher = NewRefresher(source, ret.refreshClock, opts...)
	return ret
}

// Follow renders every view received from updates until ctx is done or
// updates is closed. The refresh task is stopped before Follow returns.
func (t *Terminal) Follow(ctx context.Context, updates <-chan processing.View) {
	defer t.refresher.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-updates:
			if !ok {
				return
			}
			t.Show(v)
			t.refresher.Update(v)
		}
	}
}

// Show writes the complete view
func (t *Terminal) Show(v processing.View) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w)
	if err := Render(t.w, v); err != nil {
		t.log.Warn("could not render view", log.ErrorField(err))
	}
}

func (t *Terminal) refreshClock(v processing.View) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "\r%s", ClockLine(v))
}

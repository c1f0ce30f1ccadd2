package processing

import (
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/lapclock/pkg/model"
	"github.com/mpapenbr/lapclock/pkg/processing/export"
	"github.com/mpapenbr/lapclock/pkg/processing/ranking"
	"github.com/mpapenbr/lapclock/pkg/processing/start"
)

// View is the rendering snapshot of the session.
// It holds copies only and is safe to use after the state changed.
type View struct {
	SessionID         string
	SessionTime       time.Duration
	FormattedTime     string // mm:ss.mmm
	Status            model.Status
	LightsOn          int
	Lights            int // number of start lights
	Participants      []*model.Participant
	ActiveParticipant int
	ActiveCount       int
	Flags             model.Flags
	Ranking           []ranking.Row
	GlobalBest        *time.Duration
}

// Running reports whether the session clock is counting
func (v View) Running() bool {
	return v.Status == model.StatusRunning
}

// SnapshotView builds the view of a stored state. The session time is
// the stored one, a running session is not advanced.
func SnapshotView(state *model.State) View {
	return newView(state, state.Session.Elapsed, start.DefaultLights)
}

// must be called with p.mu held
func (p *Processor) buildView() View {
	return newView(p.state, p.clock.SessionTime(&p.state.Session), p.sequencer.Lights())
}

func newView(state *model.State, sessionTime time.Duration, lights int) View {
	sessionTime = sessionTime.Truncate(time.Millisecond)
	active := lo.Map(state.Active(), func(item *model.Participant, _ int) *model.Participant {
		return item.Clone()
	})
	return View{
		SessionID:         state.ID,
		SessionTime:       sessionTime,
		FormattedTime:     export.FormatDuration(sessionTime),
		Status:            state.Status(),
		LightsOn:          state.LightsOn,
		Lights:            lights,
		Participants:      active,
		ActiveParticipant: state.Roster.ActiveParticipant,
		ActiveCount:       state.Roster.ActiveCount,
		Flags:             state.Flags,
		Ranking:           ranking.Rank(active),
		GlobalBest:        ranking.GlobalBest(active),
	}
}

package basedata

import (
	"time"

	"github.com/mpapenbr/lapclock/pkg/model"
)

func TestTime() time.Time {
	t, _ := time.Parse(time.RFC3339, "2024-04-28T11:10:12Z")
	return t
}

func Millis(v ...int) []time.Duration {
	ret := make([]time.Duration, len(v))
	for i := range v {
		ret[i] = time.Duration(v[i]) * time.Millisecond
	}
	return ret
}

// SampleState returns a paused session with three active participants.
// Participant 3 has not completed a lap yet.
func SampleState() *model.State {
	s := model.NewState()
	s.ID = "0b9d4c2e-6f1a-4c55-9a53-2a8f6f3e9d10"
	s.Session.Elapsed = 95500 * time.Millisecond
	s.Flags.VirtualSafetyCar = true
	s.Roster = model.Roster{ActiveCount: 3, ActiveParticipant: 2}

	s.Participants[0].Name = "Max"
	s.Participants[0].Laps = Millis(31000, 30500, 32000)
	s.Participants[0].LastLapBoundary = model.DurationPtr(93500 * time.Millisecond)
	s.Participants[0].Recompute()

	s.Participants[1].Name = "Lewis"
	s.Participants[1].Laps = Millis(30800, 30900)
	s.Participants[1].LastLapBoundary = model.DurationPtr(61700 * time.Millisecond)
	s.Participants[1].Recompute()

	s.Participants[2].LastLapBoundary = model.DurationPtr(0)
	return s
}

package ranking

import (
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/lapclock/pkg/model"
)

type Row struct {
	Position      int
	ParticipantID int
	Name          string
	LapCount      int
	Best          *time.Duration
	Last          *time.Duration
	TotalTime     time.Duration
}

// Rank orders the participants: more laps first, then lower total time,
// then participants with a best lap (lower first) before those without.
// The input is not modified.
func Rank(participants []*model.Participant) []Row {
	rows := lo.Map(participants, func(p *model.Participant, _ int) Row {
		return Row{
			ParticipantID: p.ID,
			Name:          p.Name,
			LapCount:      len(p.Laps),
			Best:          copyDuration(p.Best),
			Last:          copyDuration(p.LastLap),
			TotalTime:     p.TotalTime,
		}
	})
	slices.SortStableFunc(rows, compare)
	for i := range rows {
		rows[i].Position = i + 1
	}
	return rows
}

func compare(a, b Row) int {
	if a.LapCount != b.LapCount {
		return b.LapCount - a.LapCount
	}
	if a.TotalTime != b.TotalTime {
		return cmpDuration(a.TotalTime, b.TotalTime)
	}
	switch {
	case a.Best == nil && b.Best == nil:
		return 0
	case a.Best == nil:
		return 1
	case b.Best == nil:
		return -1
	}
	return cmpDuration(*a.Best, *b.Best)
}

// GlobalBest returns the fastest lap of all participants or nil if nobody
// completed a lap yet.
func GlobalBest(participants []*model.Participant) *time.Duration {
	var ret *time.Duration
	for _, p := range participants {
		if p.Best != nil && (ret == nil || *p.Best < *ret) {
			ret = copyDuration(p.Best)
		}
	}
	return ret
}

func cmpDuration(a, b time.Duration) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func copyDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	return model.DurationPtr(*d)
}

package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/mpapenbr/lapclock/pkg/model"
)

// the persisted layout. Durations are whole milliseconds.
type (
	record struct {
		ID           string                  `json:"id"`
		Session      sessionRecord           `json:"session"`
		Flags        flagsRecord             `json:"flags"`
		DriversCount int                     `json:"driversCount"`
		ActiveDriver int                     `json:"activeDriver"`
		Drivers      map[string]driverRecord `json:"drivers"`
	}
	sessionRecord struct {
		Running bool  `json:"running"`
		Elapsed int64 `json:"elapsed"`
	}
	flagsRecord struct {
		SC  bool `json:"sc"`
		VSC bool `json:"vsc"`
	}
	driverRecord struct {
		ID        int     `json:"id"`
		Name      string  `json:"name"`
		Laps      []int64 `json:"laps"`
		LastLapAt *int64  `json:"lastLapAt"`
		Sum       int64   `json:"sum"`
		Best      *int64  `json:"best"`
		LastLap   *int64  `json:"lastLap"`
	}
)

//nolint:gochecknoglobals // compiled once
var (
	pathID           = jp.MustParseString("$.id")
	pathRunning      = jp.MustParseString("$.session.running")
	pathElapsed      = jp.MustParseString("$.session.elapsed")
	pathSC           = jp.MustParseString("$.flags.sc")
	pathVSC          = jp.MustParseString("$.flags.vsc")
	pathDriversCount = jp.MustParseString("$.driversCount")
	pathActiveDriver = jp.MustParseString("$.activeDriver")
	pathDrivers      = func() [model.MaxParticipants]jp.Expr {
		var ret [model.MaxParticipants]jp.Expr
		for i := range ret {
			ret[i] = jp.MustParseString(fmt.Sprintf("$.drivers['%d']", i+1))
		}
		return ret
	}()
)

// Encode serializes the state. Transient values (debounce timestamps,
// start sequence progress) are not written.
func Encode(state *model.State) ([]byte, error) {
	rec := record{
		ID: state.ID,
		Session: sessionRecord{
			Running: state.Session.Running,
			Elapsed: state.Session.Elapsed.Milliseconds(),
		},
		Flags: flagsRecord{
			SC:  state.Flags.SafetyCar,
			VSC: state.Flags.VirtualSafetyCar,
		},
		DriversCount: state.Roster.ActiveCount,
		ActiveDriver: state.Roster.ActiveParticipant,
		Drivers:      make(map[string]driverRecord, model.MaxParticipants),
	}
	for _, p := range state.Participants {
		d := driverRecord{
			ID:        p.ID,
			Name:      p.Name,
			Laps:      make([]int64, len(p.Laps)),
			LastLapAt: toMillis(p.LastLapBoundary),
			Sum:       p.TotalTime.Milliseconds(),
			Best:      toMillis(p.Best),
			LastLap:   toMillis(p.LastLap),
		}
		for i, lap := range p.Laps {
			d.Laps[i] = lap.Milliseconds()
		}
		rec.Drivers[strconv.Itoa(p.ID)] = d
	}
	return json.Marshal(rec)
}

// Decode restores a state from data. Every field is taken over on its
// own: missing or malformed fields get their default value. Derived lap
// statistics are recomputed from the laps and transient values start at
// zero. If data is not a JSON object at all, the default state is returned
// together with ErrMalformedSnapshot.
//
//nolint:funlen // by design
func Decode(data []byte) (*model.State, error) {
	state := model.NewState()
	obj, err := oj.Parse(data)
	if err != nil {
		return state, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	if _, ok := obj.(map[string]any); !ok {
		return state, fmt.Errorf("%w: not an object", ErrMalformedSnapshot)
	}

	if id, ok := pathID.First(obj).(string); ok && id != "" {
		state.ID = id
	} else {
		state.ID = uuid.NewString()
	}

	if running, ok := pathRunning.First(obj).(bool); ok {
		state.Session.Running = running
	}
	if elapsed, ok := asMillis(pathElapsed.First(obj)); ok {
		state.Session.Elapsed = elapsed
	}

	if sc, ok := pathSC.First(obj).(bool); ok {
		state.Flags.SafetyCar = sc
	}
	if vsc, ok := pathVSC.First(obj).(bool); ok {
		state.Flags.VirtualSafetyCar = vsc && !state.Flags.SafetyCar
	}

	if n, ok := asInt(pathDriversCount.First(obj)); ok && n >= 1 && n <= model.MaxParticipants {
		state.Roster.ActiveCount = n
	}
	if n, ok := asInt(pathActiveDriver.First(obj)); ok && n >= 1 {
		state.Roster.ActiveParticipant = min(n, state.Roster.ActiveCount)
	}

	for i, expr := range pathDrivers {
		if d, ok := expr.First(obj).(map[string]any); ok {
			decodeParticipant(state.Participants[i], d)
		}
	}
	return state, nil
}

func decodeParticipant(p *model.Participant, d map[string]any) {
	if name, ok := d["name"].(string); ok && name != "" {
		p.Name = name
	}
	if raw, ok := d["laps"].([]any); ok {
		laps := make([]time.Duration, 0, len(raw))
		var total time.Duration
		for _, v := range raw {
			lap, ok := asMillis(v)
			// the sum of all laps must fit as well
			if !ok || lap > time.Duration(maxMillis)*time.Millisecond-total {
				laps = nil
				break
			}
			total += lap
			laps = append(laps, lap)
		}
		if laps != nil {
			p.Laps = laps
		}
	}
	if boundary, ok := asMillis(d["lastLapAt"]); ok {
		p.LastLapBoundary = model.DurationPtr(boundary)
	}
	p.Recompute()
}

// maxMillis is the largest millisecond value a time.Duration can hold
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// asMillis accepts non-negative integral numbers up to maxMillis
func asMillis(v any) (time.Duration, bool) {
	n, ok := asInt64(v)
	if !ok || n < 0 || n > maxMillis {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}

func asInt(v any) (int, bool) {
	n, ok := asInt64(v)
	if !ok || n > math.MaxInt32 || n < math.MinInt32 {
		return 0, false
	}
	return int(n), true
}

func asInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case float64:
		// the browser version stored fractional values for the lap boundary
		if math.IsNaN(val) || math.IsInf(val, 0) || math.Abs(val) >= math.MaxInt64 {
			return 0, false
		}
		return int64(math.Floor(val)), true
	}
	return 0, false
}

func toMillis(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	ret := d.Milliseconds()
	return &ret
}

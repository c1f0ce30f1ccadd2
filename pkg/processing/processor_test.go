//nolint:funlen,thelper // ok for tests
package processing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/model"
	"github.com/mpapenbr/lapclock/pkg/processing/export"
	"github.com/mpapenbr/lapclock/pkg/processing/start"
	"github.com/mpapenbr/lapclock/pkg/repository/snapshot"
	"github.com/mpapenbr/lapclock/testsupport/basedata"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestProcessor(t *testing.T, opts ...ProcessorOption) (*Processor, *clockwork.FakeClock) {
	fc := clockwork.NewFakeClockAt(basedata.TestTime())
	p := NewProcessor(append([]ProcessorOption{WithClock(fc)}, opts...)...)
	t.Cleanup(p.Close)
	return p, fc
}

// advance waits for the pending start light timer and moves the clock forward
func advance(t *testing.T, fc *clockwork.FakeClock, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(d)
}

func runStartSequence(t *testing.T, p *Processor, fc *clockwork.FakeClock) {
	require.True(t, p.Start(context.Background()))
	for range start.DefaultLights {
		advance(t, fc, start.DefaultDelay)
	}
	require.Eventually(t, func() bool {
		return p.View().Status == model.StatusRunning
	}, time.Second, time.Millisecond)
}

func TestFirstLapAfterStart(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemoryStore()
	p, fc := newTestProcessor(t, WithStore(store))

	runStartSequence(t, p, fc)
	fc.Advance(5000 * time.Millisecond)
	require.NoError(t, p.RegisterLap(ctx, 1))

	got := p.State().Participant(1)
	assert.Equal(t, basedata.Millis(5000), got.Laps)
	assert.Equal(t, 5*time.Second, *got.Best)
	assert.Equal(t, 5*time.Second, *got.LastLap)
	assert.Equal(t, 5*time.Second, got.TotalTime)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, basedata.Millis(5000), stored.Participant(1).Laps)
	assert.True(t, stored.Session.Running)
	assert.Equal(t, 5*time.Second, stored.Session.Elapsed)
}

func TestStartSequence(t *testing.T) {
	ctx := context.Background()
	p, fc := newTestProcessor(t)

	require.True(t, p.Start(ctx))
	v := p.View()
	assert.Equal(t, model.StatusStarting, v.Status)
	assert.Equal(t, 1, v.LightsOn)
	assert.Equal(t, start.DefaultLights, v.Lights)

	assert.False(t, p.Start(ctx), "start while starting")
	assert.Equal(t, 1, p.View().LightsOn)

	for i := 2; i <= start.DefaultLights; i++ {
		advance(t, fc, start.DefaultDelay)
		want := i
		require.Eventually(t, func() bool { return p.View().LightsOn == want },
			time.Second, time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), p.View().SessionTime, "clock not running during countdown")

	advance(t, fc, start.DefaultDelay)
	require.Eventually(t, func() bool { return p.View().Running() }, time.Second, time.Millisecond)
	v = p.View()
	assert.Zero(t, v.LightsOn)
	assert.False(t, p.Start(ctx), "start while running")
}

func TestBoundariesAfterStart(t *testing.T) {
	ctx := context.Background()
	for n := 1; n <= model.MaxParticipants; n++ {
		t.Run(model.DefaultName(n), func(t *testing.T) {
			p, fc := newTestProcessor(t)
			require.NoError(t, p.SetActiveCount(ctx, n))

			// time accumulated before the start counts as session time
			p.Resume(ctx)
			fc.Advance(1234 * time.Millisecond)
			p.Pause(ctx)

			runStartSequence(t, p, fc)
			s := p.State()
			for id := 1; id <= model.MaxParticipants; id++ {
				if id <= n {
					require.NotNil(t, s.Participant(id).LastLapBoundary)
					assert.Equal(t, 1234*time.Millisecond, *s.Participant(id).LastLapBoundary)
				} else {
					assert.Nil(t, s.Participant(id).LastLapBoundary)
				}
			}
		})
	}
}

func TestSessionTimePauseResume(t *testing.T) {
	ctx := context.Background()
	p, fc := newTestProcessor(t)
	runStartSequence(t, p, fc)

	fc.Advance(2 * time.Second)
	p.Resume(ctx)
	assert.Equal(t, 2*time.Second, p.View().SessionTime, "redundant resume")

	p.Pause(ctx)
	fc.Advance(10 * time.Second)
	p.Pause(ctx)
	assert.Equal(t, 2*time.Second, p.View().SessionTime, "paused clock does not move")
	assert.Equal(t, model.StatusPaused, p.View().Status)

	p.TogglePause(ctx)
	fc.Advance(1500 * time.Millisecond)
	assert.Equal(t, 3500*time.Millisecond, p.View().SessionTime)
	p.TogglePause(ctx)
	assert.Equal(t, model.StatusPaused, p.View().Status)
	assert.Equal(t, "00:03.500", p.View().FormattedTime)
}

func TestDebounce(t *testing.T) {
	ctx := context.Background()
	p, fc := newTestProcessor(t)
	runStartSequence(t, p, fc)

	fc.Advance(30 * time.Second)
	require.NoError(t, p.RegisterLap(ctx, 2))
	fc.Advance(299 * time.Millisecond)
	require.NoError(t, p.RegisterLap(ctx, 2))
	assert.Equal(t, basedata.Millis(30000), p.State().Participant(2).Laps)

	// debouncing is per participant
	require.NoError(t, p.RegisterLap(ctx, 1))
	assert.Len(t, p.State().Participant(1).Laps, 1)

	fc.Advance(1 * time.Millisecond)
	require.NoError(t, p.RegisterLap(ctx, 2))
	assert.Equal(t, basedata.Millis(30000, 300), p.State().Participant(2).Laps)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	p, fc := newTestProcessor(t)
	runStartSequence(t, p, fc)

	for _, lap := range []time.Duration{31 * time.Second, 29500 * time.Millisecond, 30 * time.Second} {
		fc.Advance(lap)
		require.NoError(t, p.RegisterActiveLap(ctx))
	}
	got := p.State().Participant(1)
	assert.Equal(t, 90500*time.Millisecond, got.TotalTime)
	assert.Equal(t, 29500*time.Millisecond, *got.Best)
	assert.Equal(t, 30*time.Second, *got.LastLap)

	v := p.View()
	require.NotNil(t, v.GlobalBest)
	assert.Equal(t, 29500*time.Millisecond, *v.GlobalBest)
	assert.Equal(t, 1, v.Ranking[0].ParticipantID)
	assert.Equal(t, 3, v.Ranking[0].LapCount)
	assert.Equal(t, 2, v.Ranking[1].Position)

	rows := p.ExportLaps()
	assert.Equal(t, []export.LapRow{
		{Name: "Driver 1", LapIndex: 1, Lap: 31 * time.Second, Cumulative: 31 * time.Second},
		{Name: "Driver 1", LapIndex: 2, Lap: 29500 * time.Millisecond, Cumulative: 60500 * time.Millisecond},
		{Name: "Driver 1", LapIndex: 3, Lap: 30 * time.Second, Cumulative: 90500 * time.Millisecond},
	}, rows)
}

func TestLapWithoutStart(t *testing.T) {
	ctx := context.Background()
	p, fc := newTestProcessor(t)

	// the first registration establishes the boundary
	require.NoError(t, p.RegisterLap(ctx, 1))
	assert.Equal(t, basedata.Millis(0), p.State().Participant(1).Laps)

	p.Resume(ctx)
	fc.Advance(4 * time.Second)
	p.Pause(ctx)
	fc.Advance(time.Minute)
	require.NoError(t, p.RegisterLap(ctx, 1), "laps are accepted while paused")
	assert.Equal(t, basedata.Millis(0, 4000), p.State().Participant(1).Laps)
}

func TestInvalidArguments(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		cmd      func(p *Processor) error
		inactive bool
	}{
		{"lap id 0", func(p *Processor) error { return p.RegisterLap(ctx, 0) }, false},
		{"lap id 5", func(p *Processor) error { return p.RegisterLap(ctx, 5) }, false},
		{"lap inactive", func(p *Processor) error { return p.RegisterLap(ctx, 3) }, true},
		{"count 0", func(p *Processor) error { return p.SetActiveCount(ctx, 0) }, false},
		{"count 5", func(p *Processor) error { return p.SetActiveCount(ctx, 5) }, false},
		{"active inactive", func(p *Processor) error { return p.SetActiveParticipant(ctx, 4) }, true},
		{"active 0", func(p *Processor) error { return p.SetActiveParticipant(ctx, 0) }, false},
		{"flag", func(p *Processor) error { return p.ToggleFlag(ctx, "yellow") }, false},
		{"rename id", func(p *Processor) error { return p.Rename(ctx, 9, "Nobody") }, false},
		{"rename empty", func(p *Processor) error { return p.Rename(ctx, 1, "  ") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProcessor(t)
			before := p.State()

			err := tt.cmd(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidArgument))
			assert.Equal(t, tt.inactive, errors.Is(err, ErrParticipantInactive))
			if diff := cmp.Diff(before, p.State()); diff != "" {
				t.Errorf("state changed (-before +after):\n%s", diff)
			}
		})
	}
}

func TestIgnoredWhileStarting(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemoryStore()
	p, fc := newTestProcessor(t, WithStore(store))
	require.NoError(t, p.RegisterLap(ctx, 1))
	require.True(t, p.Start(ctx))
	before := p.State()

	fc.Advance(time.Second)
	p.Pause(ctx)
	p.Resume(ctx)
	p.TogglePause(ctx)
	p.HardReset(ctx)
	require.NoError(t, p.RegisterLap(ctx, 1))
	require.NoError(t, p.SetActiveCount(ctx, 4))
	require.Error(t, p.Load(ctx))

	// the light timer may already have fired during the advance above
	if diff := cmp.Diff(before, p.State(),
		cmpopts.IgnoreFields(model.State{}, "LightsOn")); diff != "" {
		t.Errorf("state changed (-before +after):\n%s", diff)
	}
	assert.Equal(t, model.StatusStarting, p.View().Status)
	_, err := store.Load(ctx)
	assert.NoError(t, err, "reset did not clear the store")
}

func TestFlags(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProcessor(t)

	require.NoError(t, p.ToggleFlag(ctx, model.FlagSafetyCar))
	assert.Equal(t, model.Flags{SafetyCar: true}, p.View().Flags)
	require.NoError(t, p.ToggleFlag(ctx, model.FlagVirtualSafetyCar))
	assert.Equal(t, model.Flags{VirtualSafetyCar: true}, p.View().Flags)
	require.NoError(t, p.ToggleFlag(ctx, model.FlagVirtualSafetyCar))
	assert.Equal(t, model.Flags{}, p.View().Flags)
}

func TestRoster(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProcessor(t)

	require.NoError(t, p.SetActiveCount(ctx, 4))
	require.NoError(t, p.SetActiveParticipant(ctx, 4))
	require.NoError(t, p.SetActiveCount(ctx, 3))
	v := p.View()
	assert.Equal(t, 3, v.ActiveParticipant, "clamped to count")
	assert.Len(t, v.Participants, 3)

	p.NextActiveParticipant(ctx)
	assert.Equal(t, 1, p.View().ActiveParticipant)
	p.NextActiveParticipant(ctx)
	assert.Equal(t, 2, p.View().ActiveParticipant)

	require.NoError(t, p.Rename(ctx, 2, " Lewis "))
	assert.Equal(t, "Lewis", p.View().Participants[1].Name)
	require.NoError(t, p.Rename(ctx, 4, "Reserve"), "inactive participants can be renamed")
}

func TestHardReset(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemoryStore()
	p, fc := newTestProcessor(t, WithStore(store))
	runStartSequence(t, p, fc)
	fc.Advance(40 * time.Second)
	require.NoError(t, p.RegisterLap(ctx, 2))
	require.NoError(t, p.ToggleFlag(ctx, model.FlagSafetyCar))
	require.NoError(t, p.SetActiveCount(ctx, 3))
	oldID := p.State().ID

	p.HardReset(ctx)

	got := p.State()
	assert.NotEqual(t, oldID, got.ID)
	if diff := cmp.Diff(model.NewState(), got,
		cmpopts.IgnoreFields(model.State{}, "ID")); diff != "" {
		t.Errorf("HardReset() mismatch (-want +got):\n%s", diff)
	}
	_, err := store.Load(ctx)
	assert.True(t, errors.Is(err, snapshot.ErrSnapshotNotFound))
	assert.True(t, p.Start(ctx), "start is possible after reset")
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemoryStore()
	require.NoError(t, store.Save(ctx, func() *model.State {
		s := basedata.SampleState()
		s.Session.Running = true
		return s
	}()))

	p, fc := newTestProcessor(t, WithStore(store))
	require.NoError(t, p.Load(ctx))
	v := p.View()
	assert.Equal(t, model.StatusRunning, v.Status)
	assert.Equal(t, 95500*time.Millisecond, v.SessionTime)
	assert.Len(t, v.Participants, 3)
	assert.Equal(t, 2, v.ActiveParticipant)

	fc.Advance(2 * time.Second)
	require.NoError(t, p.RegisterLap(ctx, 1))
	assert.Equal(t, 4*time.Second, *p.State().Participant(1).LastLap)
}

func TestLoadMissingAndMalformed(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	store := snapshot.NewMemoryStore()
	p, _ := newTestProcessor(t, WithStore(store), WithLogger(log.FromZap(zap.New(core))))

	require.NoError(t, p.Load(ctx))
	assert.Equal(t, model.StatusPaused, p.View().Status)

	store.SetRaw([]byte(`{"driversCount":`))
	require.NoError(t, p.Load(ctx))
	assert.Equal(t, 2, p.View().ActiveCount)
	assert.Equal(t, 1, logs.FilterMessage("snapshot is malformed, using defaults").Len())
}

type failingStore struct {
	snapshot.MemoryStore
}

func (f *failingStore) Save(context.Context, *model.State) error {
	return errors.New("disk full")
}

func TestSaveFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	p, _ := newTestProcessor(t,
		WithStore(&failingStore{}),
		WithLogger(log.FromZap(zap.New(core))))

	require.NoError(t, p.ToggleFlag(ctx, model.FlagSafetyCar))
	assert.True(t, p.View().Flags.SafetyCar)
	entries := logs.FilterMessage("could not save snapshot").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "disk full", entries[0].ContextMap()["error"])
}

func TestUpdates(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	p := NewProcessor(WithClock(fc))

	require.NoError(t, p.Rename(ctx, 1, "Max"))
	v := <-p.Updates()
	assert.Equal(t, "Max", v.Participants[0].Name)

	// the consumer falls behind: only the latest views are kept
	for i := range updateBuffer + 5 {
		require.NoError(t, p.Rename(ctx, 1, model.DefaultName(i+10)))
	}
	var last View
	for range updateBuffer {
		last = <-p.Updates()
	}
	assert.Equal(t, model.DefaultName(updateBuffer+14), last.Participants[0].Name)

	p.Close()
	_, ok := <-p.Updates()
	assert.False(t, ok, "closed")
	assert.False(t, p.Start(ctx), "closed processor does not start")
	p.Close()
}

//nolint:funlen // ok for tests
package run

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/lapclock/pkg/config"
	"github.com/mpapenbr/lapclock/pkg/model"
	"github.com/mpapenbr/lapclock/pkg/processing"
)

func newTestConsole(t *testing.T) (*Console, *processing.Processor, *clockwork.FakeClock, *bytes.Buffer) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	proc := processing.NewProcessor(processing.WithClock(fc))
	t.Cleanup(proc.Close)
	var out bytes.Buffer
	return NewConsole(proc, &out), proc, fc, &out
}

func TestConsoleCommands(t *testing.T) {
	ctx := context.Background()
	c, proc, fc, out := newTestConsole(t)

	for _, line := range []string{"drivers 3", "active 3", "NAME 3 Ayrton Senna", "sc", "v"} {
		quit, err := c.Execute(ctx, line)
		require.NoError(t, err, line)
		assert.False(t, quit)
	}
	s := proc.State()
	assert.Equal(t, model.Roster{ActiveCount: 3, ActiveParticipant: 3}, s.Roster)
	assert.Equal(t, "Ayrton Senna", s.Participant(3).Name)
	assert.Equal(t, model.Flags{VirtualSafetyCar: true}, s.Flags)

	_, err := c.Execute(ctx, "tab")
	require.NoError(t, err)
	assert.Equal(t, 1, proc.View().ActiveParticipant)

	_, err = c.Execute(ctx, "resume")
	require.NoError(t, err)
	fc.Advance(10 * time.Second)
	_, err = c.Execute(ctx, "lap")
	require.NoError(t, err)
	fc.Advance(2 * time.Second)
	_, err = c.Execute(ctx, "2")
	require.NoError(t, err)
	_, err = c.Execute(ctx, "4")
	require.NoError(t, err, "inactive participant is reported, not an error")
	assert.Contains(t, out.String(), "participant 4 is not active")

	s = proc.State()
	assert.Len(t, s.Participant(1).Laps, 1)
	assert.Len(t, s.Participant(2).Laps, 1)

	_, err = c.Execute(ctx, "space")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, proc.View().Status)

	_, err = c.Execute(ctx, "reset")
	require.NoError(t, err)
	assert.Equal(t, 2, proc.View().ActiveCount)

	quit, err := c.Execute(ctx, "quit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestConsoleStart(t *testing.T) {
	ctx := context.Background()
	c, proc, _, out := newTestConsole(t)

	_, err := c.Execute(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusStarting, proc.View().Status)

	_, err = c.Execute(ctx, "start")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "already running or starting")
}

func TestConsoleErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		line    string
		invalid bool // rejected by the processor
	}{
		{"drivers", false},
		{"drivers x", false},
		{"drivers 9", true},
		{"active 4", true},
		{"name 1", false},
		{"name x Max", false},
		{"name 7 Max", true},
		{"warp 9", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			c, _, _, _ := newTestConsole(t)
			quit, err := c.Execute(ctx, tt.line)
			require.Error(t, err)
			assert.False(t, quit)
			if tt.invalid {
				assert.True(t, errors.Is(err, processing.ErrInvalidArgument))
			} else {
				assert.True(t, errors.Is(err, errUsage))
			}
		})
	}
}

func TestConsoleExport(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	proc := processing.NewProcessor(processing.WithClock(fc), processing.WithLights(1))
	defer proc.Close()
	var out bytes.Buffer
	c := NewConsole(proc, &out)

	_, err := c.Execute(ctx, "start")
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))
	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return proc.View().Running() }, time.Second, time.Millisecond)

	fc.Advance(3 * time.Second)
	require.NoError(t, proc.RegisterLap(ctx, 1))
	fc.Advance(61234 * time.Millisecond)
	require.NoError(t, proc.RegisterLap(ctx, 1))

	file := filepath.Join(t.TempDir(), "Laps.CSV")
	_, err = c.Execute(ctx, "export "+file)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "exported 2 laps")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"driver,lap_index,lap_ms,lap_fmt,sum_ms_after,sum_fmt_after",
		"Driver 1,1,3000,00:03.000,3000,00:03.000",
		"Driver 1,2,61234,01:01.234,64234,01:04.234",
	}, "\n")+"\n", string(data))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunSession(t *testing.T) {
	config.StoreType = "file"
	config.StoreFile = filepath.Join(t.TempDir(), "snapshot.json")
	defer func() { config.StoreType, config.StoreFile = "", "" }()

	out := &syncBuffer{}
	in := strings.NewReader("name 1 Max\ndrivers 3\nquit\n")
	require.NoError(t, runSession(context.Background(), in, out))
	assert.Contains(t, out.String(), "type 'help'")

	// the session is restored on the next run
	out = &syncBuffer{}
	require.NoError(t, runSession(context.Background(), strings.NewReader(""), out))
	assert.Contains(t, out.String(), "Max")
	assert.Contains(t, out.String(), "Driver 3")
}

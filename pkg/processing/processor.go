package processing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/config"
	"github.com/mpapenbr/lapclock/pkg/model"
	"github.com/mpapenbr/lapclock/pkg/processing/clock"
	"github.com/mpapenbr/lapclock/pkg/processing/export"
	"github.com/mpapenbr/lapclock/pkg/processing/lap"
	"github.com/mpapenbr/lapclock/pkg/processing/start"
	"github.com/mpapenbr/lapclock/pkg/repository/snapshot"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrParticipantInactive is returned for participants outside of the
	// active roster. It wraps ErrInvalidArgument.
	ErrParticipantInactive = fmt.Errorf("%w: participant not active", ErrInvalidArgument)
)

var meter = otel.Meter("lapclock.processing")

const updateBuffer = 16

// Processor owns the session state. All mutations go through its methods
// and are serialized by one lock. After each mutation the state is saved
// to the store (best effort) and a View is published on Updates.
type Processor struct {
	mu        sync.Mutex
	state     *model.State
	source    clockwork.Clock
	clock     *clock.Clock
	sequencer *start.Sequencer
	tracker   *lap.Tracker
	store     snapshot.Store
	updates   chan View
	closed    bool
	log       *log.Logger

	debounce   time.Duration
	lights     int
	lightDelay time.Duration

	lapsRegistered  metric.Int64Counter
	lapsDebounced   metric.Int64Counter
	sessionsStarted metric.Int64Counter
	saveErrors      metric.Int64Counter
}

type ProcessorOption func(proc *Processor)

// WithClock sets the monotonic time source. Defaults to the real clock.
func WithClock(source clockwork.Clock) ProcessorOption {
	return func(proc *Processor) {
		proc.source = source
	}
}

// WithStore sets the snapshot store. Without a store nothing is persisted.
func WithStore(store snapshot.Store) ProcessorOption {
	return func(proc *Processor) {
		proc.store = store
	}
}

func WithLogger(l *log.Logger) ProcessorOption {
	return func(proc *Processor) {
		proc.log = l
	}
}

func WithDebounce(d time.Duration) ProcessorOption {
	return func(proc *Processor) {
		proc.debounce = d
	}
}

func WithLights(n int) ProcessorOption {
	return func(proc *Processor) {
		proc.lights = n
	}
}

func WithLightDelay(d time.Duration) ProcessorOption {
	return func(proc *Processor) {
		proc.lightDelay = d
	}
}

// WithConfig applies the timing values of cfg. Zero values keep the defaults.
func WithConfig(cfg config.Config) ProcessorOption {
	return func(proc *Processor) {
		if cfg.Debounce > 0 {
			proc.debounce = cfg.Debounce
		}
		if cfg.Lights > 0 {
			proc.lights = cfg.Lights
		}
		if cfg.LightDelay > 0 {
			proc.lightDelay = cfg.LightDelay
		}
	}
}

func NewProcessor(opts ...ProcessorOption) *Processor {
	ret := &Processor{
		state:      model.NewState(),
		updates:    make(chan View, updateBuffer),
		log:        log.Default().Named("processing"),
		debounce:   lap.DefaultDebounce,
		lights:     start.DefaultLights,
		lightDelay: start.DefaultDelay,
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.clock = clock.New(ret.source)
	ret.tracker = lap.NewTracker(
		lap.WithDebounce(ret.debounce),
		lap.WithLogger(ret.log.Named("lap")))
	ret.sequencer = start.NewSequencer(ret.clock.Source(), sequenceEvents{ret},
		start.WithLights(ret.lights),
		start.WithDelay(ret.lightDelay),
		start.WithGuard(ret.withLock))
	ret.setupMetrics()
	return ret
}

func (p *Processor) setupMetrics() {
	p.lapsRegistered, _ = meter.Int64Counter("lapclock.laps.registered",
		metric.WithDescription("Number of registered laps"),
		metric.WithUnit("{lap}"))
	p.lapsDebounced, _ = meter.Int64Counter("lapclock.laps.debounced",
		metric.WithDescription("Number of lap registrations ignored by debouncing"),
		metric.WithUnit("{lap}"))
	p.sessionsStarted, _ = meter.Int64Counter("lapclock.sessions.started",
		metric.WithDescription("Number of completed start sequences"),
		metric.WithUnit("{session}"))
	p.saveErrors, _ = meter.Int64Counter("lapclock.snapshot.save.errors",
		metric.WithDescription("Number of failed snapshot saves"),
		metric.WithUnit("{error}"))
}

func (p *Processor) withLock(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f()
}

// Updates delivers a View after every mutation. Only the most recent
// updates are kept if the consumer falls behind. The channel is closed by Close.
func (p *Processor) Updates() <-chan View {
	return p.updates
}

// Load replaces the state with the snapshot from the store.
// A missing snapshot keeps the current state. A running session continues
// from the stored session time. A session that was in its start sequence
// is restored as not started.
func (p *Processor) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store == nil {
		return nil
	}
	if p.state.Starting {
		return fmt.Errorf("load snapshot: %w: start sequence in progress", ErrInvalidArgument)
	}
	state, err := p.store.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrSnapshotNotFound):
		p.log.Debug("no snapshot found")
		return nil
	case errors.Is(err, snapshot.ErrMalformedSnapshot):
		p.log.Warn("snapshot is malformed, using defaults", log.ErrorField(err))
	case err != nil:
		return err
	}
	state.Starting = false
	state.LightsOn = 0
	state.Session.StartedAt = time.Time{}
	if state.Session.Running {
		state.Session.StartedAt = p.clock.Now()
	}
	p.state = state
	p.log.Info("session restored",
		log.String("id", state.ID),
		log.Bool("running", state.Session.Running),
		log.Duration("elapsed", state.Session.Elapsed))
	p.publish()
	return nil
}

// Start begins the start sequence. Returns false if the session is
// already running or a start sequence is in progress.
func (p *Processor) Start(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if !p.sequencer.Start(p.state.Session.Running) {
		p.log.Debug("start ignored", log.String("status", string(p.state.Status())))
		return false
	}
	return true
}

func (p *Processor) Pause(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pause(ctx)
}

func (p *Processor) Resume(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resume(ctx)
}

// TogglePause pauses a running session and resumes a paused one.
func (p *Processor) TogglePause(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Session.Running {
		p.pause(ctx)
	} else {
		p.resume(ctx)
	}
}

func (p *Processor) pause(ctx context.Context) {
	if p.state.Starting {
		return
	}
	if p.clock.Pause(&p.state.Session) {
		p.log.Debug("session paused", log.Duration("elapsed", p.state.Session.Elapsed))
		p.mutated(ctx)
	}
}

func (p *Processor) resume(ctx context.Context) {
	if p.state.Starting {
		return
	}
	if p.clock.Resume(&p.state.Session) {
		p.log.Debug("session resumed", log.Duration("elapsed", p.state.Session.Elapsed))
		p.mutated(ctx)
	}
}

// HardReset restores the default state and removes the stored snapshot.
// It is ignored during the start sequence.
func (p *Processor) HardReset(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Starting {
		p.log.Debug("reset ignored during start sequence")
		return
	}
	if p.store != nil {
		if err := p.store.Clear(ctx); err != nil {
			p.log.Warn("could not clear snapshot", log.ErrorField(err))
		}
	}
	p.state = model.NewState()
	p.log.Info("session reset", log.String("id", p.state.ID))
	p.publish()
}

// RegisterLap completes the current lap of participant id.
// Registrations within the debounce window and during the start sequence
// are ignored.
func (p *Processor) RegisterLap(ctx context.Context, id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registerLap(ctx, id)
}

// RegisterActiveLap completes the current lap of the active participant
func (p *Processor) RegisterActiveLap(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registerLap(ctx, p.state.Roster.ActiveParticipant)
}

func (p *Processor) registerLap(ctx context.Context, id int) error {
	if err := p.checkActive(id); err != nil {
		return fmt.Errorf("register lap: %w", err)
	}
	if p.state.Starting {
		return nil
	}
	participant := p.state.Participant(id)
	if !p.tracker.RegisterLap(participant, p.clock.Now(), p.clock.SessionTime(&p.state.Session)) {
		p.lapsDebounced.Add(ctx, 1)
		return nil
	}
	p.lapsRegistered.Add(ctx, 1)
	p.mutated(ctx)
	return nil
}

func (p *Processor) ToggleFlag(ctx context.Context, flag model.Flag) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.Flags.Toggle(flag) {
		return fmt.Errorf("toggle flag %q: %w", flag, ErrInvalidArgument)
	}
	p.mutated(ctx)
	return nil
}

// SetActiveCount sets the number of participants taking part.
// It is ignored during the start sequence.
func (p *Processor) SetActiveCount(ctx context.Context, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 1 || n > model.MaxParticipants {
		return fmt.Errorf("set active count %d: %w", n, ErrInvalidArgument)
	}
	if p.state.Starting || n == p.state.Roster.ActiveCount {
		return nil
	}
	p.state.Roster.SetActiveCount(n)
	p.mutated(ctx)
	return nil
}

func (p *Processor) SetActiveParticipant(ctx context.Context, id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkActive(id); err != nil {
		return fmt.Errorf("set active participant: %w", err)
	}
	if id == p.state.Roster.ActiveParticipant {
		return nil
	}
	p.state.Roster.ActiveParticipant = id
	p.mutated(ctx)
	return nil
}

// NextActiveParticipant cycles the active participant through the roster
func (p *Processor) NextActiveParticipant(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Roster.NextActive()
	p.mutated(ctx)
}

func (p *Processor) Rename(ctx context.Context, id int, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	participant := p.state.Participant(id)
	if participant == nil {
		return fmt.Errorf("rename participant %d: %w", id, ErrInvalidArgument)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("rename participant %d: empty name: %w", id, ErrInvalidArgument)
	}
	if participant.Name == name {
		return nil
	}
	participant.Name = name
	p.mutated(ctx)
	return nil
}

// ExportLaps lists all completed laps of the active participants
func (p *Processor) ExportLaps() []export.LapRow {
	p.mu.Lock()
	defer p.mu.Unlock()
	return export.Laps(p.state.Active())
}

func (p *Processor) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buildView()
}

// State returns a deep copy of the current state
func (p *Processor) State() *model.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Close stops a pending start sequence and closes the Updates channel.
// The store is owned by the caller and not closed.
func (p *Processor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.sequencer.Close()
	p.state.Starting = false
	p.state.LightsOn = 0
	p.closed = true
	close(p.updates)
}

func (p *Processor) checkActive(id int) error {
	if p.state.Participant(id) == nil {
		return fmt.Errorf("participant %d: %w", id, ErrInvalidArgument)
	}
	if !p.state.IsActive(id) {
		return fmt.Errorf("participant %d: %w", id, ErrParticipantInactive)
	}
	return nil
}

// mutated persists the state and publishes a view.
// must be called with p.mu held
func (p *Processor) mutated(ctx context.Context) {
	p.persist(ctx)
	p.publish()
}

func (p *Processor) persist(ctx context.Context) {
	if p.store == nil {
		return
	}
	snap := p.state.Clone()
	snap.Session.Elapsed = p.clock.SessionTime(&p.state.Session).Truncate(time.Millisecond)
	snap.Session.StartedAt = time.Time{}
	if err := p.store.Save(ctx, snap); err != nil {
		p.saveErrors.Add(ctx, 1)
		p.log.Warn("could not save snapshot", log.ErrorField(err))
	}
}

func (p *Processor) publish() {
	if p.closed {
		return
	}
	v := p.buildView()
	select {
	case p.updates <- v:
	default:
		// drop the oldest view, each view is complete
		select {
		case <-p.updates:
		default:
		}
		select {
		case p.updates <- v:
		default:
		}
	}
}

// sequenceEvents applies the start sequence to the processor state.
// Its methods run with p.mu held.
type sequenceEvents struct {
	p *Processor
}

func (e sequenceEvents) OnLight(stage int) {
	e.p.state.Starting = true
	e.p.state.LightsOn = stage
	e.p.log.Debug("start light", log.Int("stage", stage))
	e.p.publish()
}

func (e sequenceEvents) OnStarted() {
	p := e.p
	ctx := context.Background()
	p.state.Starting = false
	p.state.LightsOn = 0
	p.clock.Resume(&p.state.Session)
	p.tracker.MarkBoundary(p.state.Active(), p.clock.SessionTime(&p.state.Session))
	p.sessionsStarted.Add(ctx, 1)
	p.log.Info("session started",
		log.String("id", p.state.ID),
		log.Int("participants", p.state.Roster.ActiveCount))
	p.mutated(ctx)
}

// Package timer implements the host-authoritative session countdown.
// Running peers never trust a remotely decremented counter: remaining time
// is always recomputed against the record's start timestamp on the store's
// server clock, so displays stay consistent despite message latency and
// local clock skew.
package timer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dhanucoding/retro-app/go/internal/apperrors"
	"github.com/dhanucoding/retro-app/go/internal/models"
	"github.com/dhanucoding/retro-app/go/internal/permission"
	"github.com/dhanucoding/retro-app/go/internal/store"
)

// Clock is the time source. Production uses clockwork.NewRealClock(),
// tests a fake.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// Identity supplies the session facts the permission gate needs.
type Identity interface {
	Connected() bool
	IsHost() bool
}

// Phase is the coordinator's lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhasePaused
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	case PhaseEnded:
		return "ended"
	default:
		return "idle"
	}
}

// State is a snapshot for the renderer.
type State struct {
	Phase            Phase `json:"-"`
	DurationMinutes  int   `json:"durationMinutes"`
	RemainingSeconds int   `json:"remainingSeconds"`
}

// Urgency buckets the remaining time for display emphasis.
func (s State) Urgency() string {
	switch {
	case s.RemainingSeconds <= 60:
		return "danger"
	case s.RemainingSeconds <= 300:
		return "warning"
	default:
		return "normal"
	}
}

// Coordinator drives the countdown. A local 1-second tick keeps the
// display moving between store events; at most one tick loop exists at a
// time.
type Coordinator struct {
	mu       sync.Mutex
	clock    Clock
	identity Identity

	phase     Phase
	duration  int // minutes
	remaining int // seconds
	startMs   *int64

	st  store.Store // nil while detached
	key string

	stopTick chan struct{}
	warnOnce *sync.Once

	onState func(State)
	onEnded func()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock substitutes the time source.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithStateFunc registers the renderer callback invoked after every state
// change.
func WithStateFunc(fn func(State)) Option {
	return func(c *Coordinator) { c.onState = fn }
}

// WithEndedFunc registers the completion cue invoked exactly once per run
// when the countdown reaches zero.
func WithEndedFunc(fn func()) Option {
	return func(c *Coordinator) { c.onEnded = fn }
}

// WithDefaultDuration sets the initial duration in minutes.
func WithDefaultDuration(minutes int) Option {
	return func(c *Coordinator) {
		if minutes > 0 {
			c.duration = minutes
		}
	}
}

// New returns an idle coordinator.
func New(identity Identity, opts ...Option) *Coordinator {
	c := &Coordinator{
		clock:    clockwork.NewRealClock(),
		identity: identity,
		duration: models.DefaultTimerMinutes,
		warnOnce: &sync.Once{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.remaining = c.duration * 60
	return c
}

// Attach binds the coordinator to a session's timer document.
func (c *Coordinator) Attach(st store.Store, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st = st
	c.key = key
	c.warnOnce = &sync.Once{}
}

// Detach unbinds from the store without touching local state.
func (c *Coordinator) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st = nil
	c.key = ""
}

// State returns the current snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// SetDuration configures the countdown length in minutes. Values that are
// not positive fall back to the default. Only meaningful while idle.
func (c *Coordinator) SetDuration(minutes int) error {
	if err := c.authorize(); err != nil {
		return err
	}
	if minutes <= 0 {
		minutes = models.DefaultTimerMinutes
	}

	c.mu.Lock()
	if c.phase == PhaseRunning || c.phase == PhasePaused {
		c.mu.Unlock()
		return apperrors.Validationf("cannot change duration while the timer is active")
	}
	c.duration = minutes
	c.remaining = minutes * 60
	state := c.stateLocked()
	c.mu.Unlock()

	c.emit(state)
	return nil
}

// Start begins or resumes the countdown. Local state commits immediately
// so the host is never waiting on the echoed store event; the record write
// is best-effort.
func (c *Coordinator) Start() error {
	if err := c.authorize(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.phase == PhaseRunning {
		c.mu.Unlock()
		return nil
	}
	if c.phase != PhasePaused {
		c.remaining = c.duration * 60
	}
	c.phase = PhaseRunning

	// Backdate the start timestamp on resume so that every peer's
	// recomputation (duration*60 − elapsed-since-start) lands on the
	// remaining value being resumed from.
	now := c.serverNowMsLocked()
	start := now - int64(c.duration*60-c.remaining)*1000
	c.startMs = &start

	c.startTickingLocked()
	rec := c.recordLocked(now)
	state := c.stateLocked()
	c.mu.Unlock()

	c.push(rec)
	c.emit(state)
	return nil
}

// Pause freezes the countdown at its current remaining time.
func (c *Coordinator) Pause() error {
	if err := c.authorize(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.phase != PhaseRunning {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhasePaused
	c.startMs = nil
	c.stopTickingLocked()
	rec := c.recordLocked(c.serverNowMsLocked())
	state := c.stateLocked()
	c.mu.Unlock()

	c.push(rec)
	c.emit(state)
	return nil
}

// Reset returns to idle with the configured duration, from any phase.
func (c *Coordinator) Reset() error {
	if err := c.authorize(); err != nil {
		return err
	}

	c.mu.Lock()
	c.phase = PhaseIdle
	c.startMs = nil
	c.remaining = c.duration * 60
	c.stopTickingLocked()
	rec := c.recordLocked(c.serverNowMsLocked())
	state := c.stateLocked()
	c.mu.Unlock()

	c.push(rec)
	c.emit(state)
	return nil
}

// ResetLocal drops back to idle defaults without writing to the store,
// for session teardown observed remotely.
func (c *Coordinator) ResetLocal() {
	c.mu.Lock()
	c.phase = PhaseIdle
	c.startMs = nil
	c.duration = models.DefaultTimerMinutes
	c.remaining = c.duration * 60
	c.stopTickingLocked()
	state := c.stateLocked()
	c.mu.Unlock()

	c.emit(state)
}

// ApplyRecord applies a timer document observed from the store. For a
// running record, remaining time is recomputed from the start timestamp
// and the server clock offset; a result of zero fires the terminal Ended
// transition locally even if no further store event arrives.
func (c *Coordinator) ApplyRecord(rec models.TimerRecord) {
	c.mu.Lock()
	if rec.Duration > 0 {
		c.duration = rec.Duration
	}

	var ended bool
	if rec.IsRunning && rec.StartTime != nil {
		elapsed := (c.serverNowMsLocked() - *rec.StartTime) / 1000
		if elapsed < 0 {
			elapsed = 0
		}
		remaining := c.duration*60 - int(elapsed)
		if remaining < 0 {
			remaining = 0
		}
		c.remaining = remaining
		c.startMs = rec.StartTime
		if remaining == 0 {
			ended = c.phase != PhaseEnded
			c.phase = PhaseEnded
			c.stopTickingLocked()
		} else {
			if c.phase != PhaseRunning {
				c.startTickingLocked()
			}
			c.phase = PhaseRunning
		}
	} else {
		c.remaining = rec.Remaining
		c.startMs = nil
		c.stopTickingLocked()
		switch {
		case rec.IsPaused:
			c.phase = PhasePaused
		case rec.EndTime != nil && rec.Remaining == 0:
			ended = c.phase != PhaseEnded
			c.phase = PhaseEnded
		default:
			c.phase = PhaseIdle
		}
	}
	state := c.stateLocked()
	c.mu.Unlock()

	c.emit(state)
	if ended && c.onEnded != nil {
		c.onEnded()
	}
}

func (c *Coordinator) authorize() error {
	if !permission.CanControlTimer(c.identity.Connected(), c.identity.IsHost()) {
		return apperrors.Forbiddenf("only the session host can control the timer")
	}
	return nil
}

// tick advances the local fallback countdown by one second.
func (c *Coordinator) tick() {
	c.mu.Lock()
	if c.phase != PhaseRunning {
		c.mu.Unlock()
		return
	}
	if c.remaining > 0 {
		c.remaining--
	}
	ended := c.remaining == 0
	var rec *models.TimerRecord
	if ended {
		c.phase = PhaseEnded
		c.startMs = nil
		c.stopTickingLocked()
		// Only a peer allowed to control the timer records the end.
		if permission.CanControlTimer(c.identity.Connected(), c.identity.IsHost()) {
			now := c.serverNowMsLocked()
			r := c.recordLocked(now)
			r.EndTime = &now
			rec = &r
		}
	}
	state := c.stateLocked()
	c.mu.Unlock()

	if rec != nil {
		c.push(*rec)
	}
	c.emit(state)
	if ended && c.onEnded != nil {
		c.onEnded()
	}
}

// startTickingLocked replaces any existing tick loop; exactly one runs at
// a time so the countdown never decrements twice per second.
func (c *Coordinator) startTickingLocked() {
	c.stopTickingLocked()
	stop := make(chan struct{})
	c.stopTick = stop
	ticker := c.clock.NewTicker(time.Second)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				c.tick()
			}
		}
	}()
}

func (c *Coordinator) stopTickingLocked() {
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
}

func (c *Coordinator) stateLocked() State {
	return State{
		Phase:            c.phase,
		DurationMinutes:  c.duration,
		RemainingSeconds: c.remaining,
	}
}

func (c *Coordinator) recordLocked(nowMs int64) models.TimerRecord {
	return models.TimerRecord{
		Duration:       c.duration,
		Remaining:      c.remaining,
		IsRunning:      c.phase == PhaseRunning,
		IsPaused:       c.phase == PhasePaused,
		StartTime:      c.startMs,
		LastUpdateTime: nowMs,
	}
}

func (c *Coordinator) serverNowMsLocked() int64 {
	var offset time.Duration
	if c.st != nil {
		offset = c.st.ServerOffset()
	}
	return c.clock.Now().Add(offset).UnixMilli()
}

// push writes the record to the session subtree, best-effort: a failed
// write never rolls back the committed local state.
func (c *Coordinator) push(rec models.TimerRecord) {
	c.mu.Lock()
	st, key, once := c.st, c.key, c.warnOnce
	c.mu.Unlock()
	if st == nil {
		return
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Msg("marshal timer record")
		return
	}
	if err := st.Put(context.Background(), key, payload); err != nil {
		once.Do(func() {
			log.Warn().Err(err).Msg("timer sync unavailable, continuing locally")
		})
	}
}

func (c *Coordinator) emit(state State) {
	if c.onState != nil {
		c.onState(state)
	}
}

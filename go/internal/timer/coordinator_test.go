package timer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dhanucoding/retro-app/go/internal/apperrors"
	"github.com/dhanucoding/retro-app/go/internal/models"
	"github.com/dhanucoding/retro-app/go/internal/store"
)

type fakeIdentity struct {
	connected bool
	isHost    bool
}

func (f *fakeIdentity) Connected() bool { return f.connected }
func (f *fakeIdentity) IsHost() bool    { return f.isHost }

func attachedCoordinator(t *testing.T, id *fakeIdentity, clock Clock, opts ...Option) (*Coordinator, *store.MemoryStore, string) {
	t.Helper()
	st := store.NewMemoryStore()
	key := store.KeysFor("ABC123").Timer()
	c := New(id, append([]Option{WithClock(clock)}, opts...)...)
	c.Attach(st, key)
	return c, st, key
}

func storedRecord(t *testing.T, st *store.MemoryStore, key string) models.TimerRecord {
	t.Helper()
	raw, err := st.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("no timer record in store: %v", err)
	}
	var rec models.TimerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("bad timer record: %v", err)
	}
	return rec
}

func TestControlsForbiddenForParticipant(t *testing.T) {
	id := &fakeIdentity{connected: true, isHost: false}
	c, _, _ := attachedCoordinator(t, id, clockwork.NewFakeClock())

	for name, op := range map[string]func() error{
		"Start":       c.Start,
		"Pause":       c.Pause,
		"Reset":       c.Reset,
		"SetDuration": func() error { return c.SetDuration(10) },
	} {
		if err := op(); !apperrors.Is(err, apperrors.KindForbidden) {
			t.Errorf("%s as participant error = %v, want forbidden", name, err)
		}
	}
	if c.State().Phase != PhaseIdle {
		t.Errorf("forbidden control changed phase to %v", c.State().Phase)
	}
}

func TestControlsAllowedOffline(t *testing.T) {
	id := &fakeIdentity{connected: false, isHost: false}
	c := New(id, WithClock(clockwork.NewFakeClock()))

	if err := c.Start(); err != nil {
		t.Fatalf("offline Start() error = %v", err)
	}
	if c.State().Phase != PhaseRunning {
		t.Errorf("phase = %v, want running", c.State().Phase)
	}
}

// Remaining time is recomputed from the record's start timestamp, never
// trusted from the record itself: a 5-minute timer started 185 seconds ago
// shows 115 seconds regardless of what the writer last stored.
func TestApplyRecordRecomputesRemaining(t *testing.T) {
	clock := clockwork.NewFakeClock()
	id := &fakeIdentity{connected: true, isHost: false}
	c, _, _ := attachedCoordinator(t, id, clock)

	start := clock.Now().UnixMilli()
	clock.Advance(185 * time.Second)

	c.ApplyRecord(models.TimerRecord{
		Duration:  5,
		Remaining: 299, // stale counter, must be ignored
		IsRunning: true,
		StartTime: &start,
	})

	state := c.State()
	if state.RemainingSeconds != 115 {
		t.Errorf("remaining = %d, want 115", state.RemainingSeconds)
	}
	if state.Phase != PhaseRunning {
		t.Errorf("phase = %v, want running", state.Phase)
	}
}

// The server clock offset shifts the local clock before the elapsed-time
// computation.
func TestApplyRecordUsesServerOffset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	id := &fakeIdentity{connected: true, isHost: false}
	c, st, _ := attachedCoordinator(t, id, clock)

	// Server is 10s ahead of this replica.
	st.SetServerOffset(10 * time.Second)
	start := clock.Now().Add(10 * time.Second).UnixMilli()
	clock.Advance(60 * time.Second)

	c.ApplyRecord(models.TimerRecord{Duration: 5, IsRunning: true, StartTime: &start})

	if got := c.State().RemainingSeconds; got != 240 {
		t.Errorf("remaining = %d, want 240", got)
	}
}

func TestApplyRecordEndsAtZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	id := &fakeIdentity{connected: true, isHost: false}
	c, _, _ := attachedCoordinator(t, id, clock)

	var endings int
	c.onEnded = func() { endings++ }

	start := clock.Now().UnixMilli()
	clock.Advance(6 * time.Minute)
	rec := models.TimerRecord{Duration: 5, IsRunning: true, StartTime: &start}

	c.ApplyRecord(rec)
	c.ApplyRecord(rec)

	if got := c.State(); got.Phase != PhaseEnded || got.RemainingSeconds != 0 {
		t.Errorf("state = %+v, want ended at 0", got)
	}
	if endings != 1 {
		t.Errorf("ended fired %d times, want 1", endings)
	}
}

func TestApplyPausedRecord(t *testing.T) {
	c := New(&fakeIdentity{connected: true}, WithClock(clockwork.NewFakeClock()))

	c.ApplyRecord(models.TimerRecord{Duration: 5, Remaining: 42, IsPaused: true})

	if got := c.State(); got.Phase != PhasePaused || got.RemainingSeconds != 42 {
		t.Errorf("state = %+v, want paused at 42", got)
	}
}

func TestStartWritesRunningRecord(t *testing.T) {
	clock := clockwork.NewFakeClock()
	id := &fakeIdentity{connected: true, isHost: true}
	c, st, key := attachedCoordinator(t, id, clock, WithDefaultDuration(5))

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	rec := storedRecord(t, st, key)
	if !rec.IsRunning || rec.IsPaused {
		t.Errorf("record flags = %+v", rec)
	}
	if rec.StartTime == nil || *rec.StartTime != clock.Now().UnixMilli() {
		t.Errorf("fresh start timestamp = %v, want now", rec.StartTime)
	}
	if rec.Duration != 5 || rec.Remaining != 300 {
		t.Errorf("record = %+v", rec)
	}
}

// Resuming from pause backdates the start timestamp so that peers
// recomputing elapsed time against it land on the paused remaining value.
func TestResumeBackdatesStartTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	id := &fakeIdentity{connected: true, isHost: true}
	c, st, key := attachedCoordinator(t, id, clock)

	c.ApplyRecord(models.TimerRecord{Duration: 5, Remaining: 115, IsPaused: true})
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	rec := storedRecord(t, st, key)
	if rec.StartTime == nil {
		t.Fatal("resumed record has no start timestamp")
	}
	elapsed := (clock.Now().UnixMilli() - *rec.StartTime) / 1000
	if got := rec.Duration*60 - int(elapsed); got != 115 {
		t.Errorf("recomputing the resumed record gives %d, want 115", got)
	}
}

func TestPauseWritesPausedRecord(t *testing.T) {
	clock := clockwork.NewFakeClock()
	id := &fakeIdentity{connected: true, isHost: true}
	c, st, key := attachedCoordinator(t, id, clock, WithDefaultDuration(5))

	c.Start()
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	rec := storedRecord(t, st, key)
	if rec.IsRunning || !rec.IsPaused {
		t.Errorf("record flags = %+v", rec)
	}
	if c.State().Phase != PhasePaused {
		t.Errorf("phase = %v, want paused", c.State().Phase)
	}
}

func TestResetReturnsToConfiguredDuration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	id := &fakeIdentity{connected: true, isHost: true}
	c, st, key := attachedCoordinator(t, id, clock, WithDefaultDuration(10))

	c.Start()
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	if got := c.State(); got.Phase != PhaseIdle || got.RemainingSeconds != 600 {
		t.Errorf("state = %+v, want idle at 600", got)
	}
	rec := storedRecord(t, st, key)
	if rec.IsRunning || rec.IsPaused || rec.Remaining != 600 {
		t.Errorf("record = %+v", rec)
	}
}

func TestSetDurationRejectedWhileActive(t *testing.T) {
	id := &fakeIdentity{connected: true, isHost: true}
	c, _, _ := attachedCoordinator(t, id, clockwork.NewFakeClock())

	c.Start()
	if err := c.SetDuration(10); !apperrors.Is(err, apperrors.KindValidation) {
		t.Errorf("SetDuration while running error = %v, want validation", err)
	}
}

func TestSetDurationDefaultsWhenNotPositive(t *testing.T) {
	id := &fakeIdentity{connected: true, isHost: true}
	c := New(id, WithClock(clockwork.NewFakeClock()))

	if err := c.SetDuration(0); err != nil {
		t.Fatalf("SetDuration(0) error = %v", err)
	}
	if got := c.State().DurationMinutes; got != models.DefaultTimerMinutes {
		t.Errorf("duration = %d, want default %d", got, models.DefaultTimerMinutes)
	}
}

func TestLocalTickCountsDown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	id := &fakeIdentity{connected: true, isHost: true}
	states := make(chan State, 16)
	c, _, _ := attachedCoordinator(t, id, clock,
		WithDefaultDuration(1),
		WithStateFunc(func(s State) { states <- s }),
	)

	c.Start()
	clock.Advance(time.Second)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s.RemainingSeconds == 59 {
				return
			}
		case <-deadline:
			t.Fatal("tick never advanced the countdown")
		}
	}
}

func TestResetLocalRestoresDefaults(t *testing.T) {
	clock := clockwork.NewFakeClock()
	id := &fakeIdentity{connected: true, isHost: true}
	c, st, key := attachedCoordinator(t, id, clock, WithDefaultDuration(5))

	c.Start()
	c.ResetLocal()

	if got := c.State(); got.Phase != PhaseIdle || got.DurationMinutes != models.DefaultTimerMinutes {
		t.Errorf("state = %+v, want idle at defaults", got)
	}
	// A remote teardown reset never writes back to the store.
	rec := storedRecord(t, st, key)
	if !rec.IsRunning {
		t.Errorf("ResetLocal overwrote the store record: %+v", rec)
	}
}

func TestUrgencyBuckets(t *testing.T) {
	for _, tc := range []struct {
		remaining int
		want      string
	}{
		{600, "normal"},
		{300, "warning"},
		{61, "warning"},
		{60, "danger"},
		{0, "danger"},
	} {
		s := State{RemainingSeconds: tc.remaining}
		if got := s.Urgency(); got != tc.want {
			t.Errorf("Urgency(%d) = %q, want %q", tc.remaining, got, tc.want)
		}
	}
}

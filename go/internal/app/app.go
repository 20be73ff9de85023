// Package app assembles the session layer: one App owns the store
// adapter, the durable cache, the board synchronizer, and the timer and
// reveal coordinators, and exposes the operations the transport layer
// calls.
package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dhanucoding/retro-app/go/internal/board"
	"github.com/dhanucoding/retro-app/go/internal/cache"
	"github.com/dhanucoding/retro-app/go/internal/config"
	"github.com/dhanucoding/retro-app/go/internal/models"
	"github.com/dhanucoding/retro-app/go/internal/reveal"
	"github.com/dhanucoding/retro-app/go/internal/session"
	"github.com/dhanucoding/retro-app/go/internal/store"
	"github.com/dhanucoding/retro-app/go/internal/timer"
)

// SessionState is the outward-facing view of the local user's session
// membership.
type SessionState struct {
	Connected bool   `json:"connected"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	IsHost    bool   `json:"isHost"`
}

// Notifier receives every outward-facing state change. The websocket hub
// implements it to fan updates out to connected frontends.
type Notifier interface {
	Notice(msg string)
	BoardChanged(b models.Board)
	TimerChanged(s timer.State)
	RevealChanged(mode models.RevealMode)
	PresenceChanged(count int)
	SessionChanged(s SessionState)
}

// App wires the components together and delegates operations to them.
type App struct {
	cfg      config.Config
	st       store.Store
	cache    *cache.BoardCache // nil disables durable caching
	notifier Notifier
	clock    clockwork.Clock

	manager   *session.Manager
	boardSync *board.Synchronizer
	timerCo   *timer.Coordinator
	revealCo  *reveal.Coordinator
}

// Option configures an App.
type Option func(*App)

// WithClock substitutes the autosave clock.
func WithClock(clock clockwork.Clock) Option {
	return func(a *App) { a.clock = clock }
}

// New builds a fully wired App. The cache may be nil.
func New(cfg config.Config, st store.Store, bc *cache.BoardCache, notifier Notifier, opts ...Option) *App {
	a := &App{
		cfg:      cfg,
		st:       st,
		cache:    bc,
		notifier: notifier,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}

	m := session.NewManager(st)
	a.manager = m
	a.boardSync = board.NewSynchronizer(m)
	a.timerCo = timer.New(m,
		timer.WithDefaultDuration(cfg.Timer.DefaultMinutes),
		timer.WithStateFunc(notifier.TimerChanged),
		timer.WithEndedFunc(func() { notifier.Notice("Time's up!") }),
	)
	a.revealCo = reveal.New(m,
		reveal.WithModeFunc(notifier.RevealChanged),
		reveal.WithNoticeFunc(notifier.Notice),
	)
	m.Bind(a.boardSync, a.timerCo, a.revealCo)
	m.SetHooks(session.Hooks{
		OnSessionEnded: func() {
			notifier.Notice("The host has ended the session")
			notifier.SessionChanged(a.SessionState())
		},
		OnPresence: notifier.PresenceChanged,
	})

	// Observer order matters: the durable save must land before the
	// best-effort remote push, and the frontend broadcast comes last.
	if bc != nil {
		a.boardSync.AddObserver(board.ObserverFunc(func(b models.Board, _ board.Origin) {
			if err := bc.Save(context.Background(), b); err != nil {
				log.Warn().Err(err).Msg("save board cache")
			}
		}))
	}
	a.boardSync.AddObserver(m)
	a.boardSync.AddObserver(board.ObserverFunc(func(b models.Board, _ board.Origin) {
		notifier.BoardChanged(b)
	}))

	return a
}

// Start restores the cached board, if any. Call once before serving.
func (a *App) Start(ctx context.Context) error {
	if a.cache == nil {
		return nil
	}
	b, ok, err := a.cache.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	a.boardSync.Restore(b)
	a.notifier.BoardChanged(a.boardSync.Board())
	a.notifier.Notice("Previous session data loaded")
	log.Info().Msg("restored board from cache")
	return nil
}

// Run periodically saves the board to the durable cache until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) {
	if a.cache == nil {
		<-ctx.Done()
		return
	}
	ticker := a.clock.NewTicker(time.Duration(a.cfg.AutoSaveSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := a.cache.Save(ctx, a.boardSync.Board()); err != nil {
				log.Warn().Err(err).Msg("autosave board cache")
			}
		}
	}
}

// SessionState returns the local user's current membership.
func (a *App) SessionState() SessionState {
	return SessionState{
		Connected: a.manager.Connected(),
		SessionID: a.manager.SessionID(),
		UserID:    a.manager.UserID(),
		IsHost:    a.manager.IsHost(),
	}
}

// CreateSession starts hosting a new session. With startFresh the board
// and cache are cleared first.
func (a *App) CreateSession(ctx context.Context, startFresh bool) (string, error) {
	if startFresh {
		if err := a.StartFresh(ctx); err != nil {
			return "", err
		}
	}
	code, err := a.manager.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	a.notifier.SessionChanged(a.SessionState())
	return code, nil
}

// JoinSession joins an existing session by code.
func (a *App) JoinSession(ctx context.Context, code string) error {
	if err := a.manager.JoinSession(ctx, code); err != nil {
		return err
	}
	a.notifier.SessionChanged(a.SessionState())
	return nil
}

// LeaveSession disconnects without affecting other participants.
func (a *App) LeaveSession(ctx context.Context) error {
	if err := a.manager.LeaveSession(ctx); err != nil {
		return err
	}
	a.notifier.SessionChanged(a.SessionState())
	return nil
}

// EndSession tears the session down for everyone. Host only.
func (a *App) EndSession(ctx context.Context) error {
	if err := a.manager.TeardownSession(ctx); err != nil {
		return err
	}
	a.notifier.SessionChanged(a.SessionState())
	return nil
}

// StartFresh clears the board and the durable cache.
func (a *App) StartFresh(ctx context.Context) error {
	a.boardSync.Reset()
	if a.cache != nil {
		if err := a.cache.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Board returns a copy of the current board.
func (a *App) Board() models.Board {
	return a.boardSync.Board()
}

func (a *App) AddItem(category models.Category, text string) (models.Item, error) {
	return a.boardSync.AddItem(category, text)
}

func (a *App) EditItem(category models.Category, itemID, text string) error {
	return a.boardSync.EditItem(category, itemID, text)
}

func (a *App) DeleteItem(category models.Category, itemID string) error {
	return a.boardSync.DeleteItem(category, itemID)
}

func (a *App) VoteItem(category models.Category, itemID string) error {
	return a.boardSync.VoteItem(category, itemID)
}

func (a *App) AddTeamMember(name string) error {
	return a.boardSync.AddTeamMember(name)
}

func (a *App) RemoveTeamMember(name string) error {
	return a.boardSync.RemoveTeamMember(name)
}

func (a *App) SetSprintMeta(name, date string) {
	a.boardSync.SetSprintMeta(name, date)
}

// ExportMarkdown renders the board summary and its suggested filename.
func (a *App) ExportMarkdown() (content, filename string) {
	b := a.boardSync.Board()
	return board.ExportMarkdown(b, a.clock.Now()), board.ExportFilename(b)
}

func (a *App) SetTimerDuration(minutes int) error { return a.timerCo.SetDuration(minutes) }
func (a *App) StartTimer() error                  { return a.timerCo.Start() }
func (a *App) PauseTimer() error                  { return a.timerCo.Pause() }
func (a *App) ResetTimer() error                  { return a.timerCo.Reset() }
func (a *App) TimerState() timer.State            { return a.timerCo.State() }

func (a *App) SetRevealMode(mode models.RevealMode) error { return a.revealCo.SetMode(mode) }
func (a *App) ToggleReveal() error                        { return a.revealCo.Toggle() }
func (a *App) RevealMode() models.RevealMode              { return a.revealCo.Mode() }

// ParticipantCount returns the live presence count, zero while
// disconnected.
func (a *App) ParticipantCount() int {
	return a.manager.ParticipantCount()
}

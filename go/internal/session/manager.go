// Package session owns the lifecycle of a shared retrospective session:
// create, join, leave, and host teardown, plus the watch plumbing that
// routes store events into the board, timer, and reveal components.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dhanucoding/retro-app/go/internal/apperrors"
	"github.com/dhanucoding/retro-app/go/internal/board"
	"github.com/dhanucoding/retro-app/go/internal/models"
	"github.com/dhanucoding/retro-app/go/internal/reveal"
	"github.com/dhanucoding/retro-app/go/internal/store"
	"github.com/dhanucoding/retro-app/go/internal/timer"
)

// Session codes use an unambiguous uppercase alphabet so they can be read
// aloud in a meeting.
const sessionAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewSessionID returns a fresh 8-character session code.
func NewSessionID() string {
	raw := uuid.New()
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		sb.WriteByte(sessionAlphabet[int(raw[i])%len(sessionAlphabet)])
	}
	return sb.String()
}

// NewUserID returns a fresh participant identifier.
func NewUserID() string {
	return "user-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// Hooks are the manager's outward-facing callbacks.
type Hooks struct {
	// OnSessionEnded fires on a participant when the host tears the
	// session down. Local board content survives.
	OnSessionEnded func()
	// OnPresence fires whenever the number of connected participants
	// changes.
	OnPresence func(count int)
}

// Manager tracks who the local user is within a session and moves the
// session through its lifecycle. It is the single Identity source for the
// permission gate: the board, timer, and reveal components all read
// host/connected state from here.
type Manager struct {
	mu        sync.Mutex
	st        store.Store
	hooks     Hooks
	userID    string
	sessionID string
	isHost    bool
	connected bool

	boardSync *board.Synchronizer
	timerCo   *timer.Coordinator
	revealCo  *reveal.Coordinator

	subs     []store.Subscription
	presence *presenceTracker
	pushWarn *sync.Once
}

var _ board.Identity = (*Manager)(nil)

// NewManager returns a disconnected manager with a fresh user identity.
func NewManager(st store.Store) *Manager {
	return &Manager{
		st:       st,
		userID:   NewUserID(),
		pushWarn: &sync.Once{},
	}
}

// Bind wires the collaborating components. Must be called once before any
// session operation; it exists because those components take the manager
// as their Identity at construction time.
func (m *Manager) Bind(b *board.Synchronizer, t *timer.Coordinator, r *reveal.Coordinator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boardSync = b
	m.timerCo = t
	m.revealCo = r
}

// SetHooks installs the lifecycle callbacks.
func (m *Manager) SetHooks(hooks Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = hooks
}

func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Manager) IsHost() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isHost
}

// ParticipantCount returns the number of users currently in the session,
// including the local one. Zero while disconnected.
func (m *Manager) ParticipantCount() int {
	m.mu.Lock()
	p := m.presence
	m.mu.Unlock()
	if p == nil {
		return 0
	}
	return p.Count()
}

// CreateSession starts a new session with the local user as host. The
// current board is pushed immediately so the session is joinable before
// any further edit. Returns the session code.
func (m *Manager) CreateSession(ctx context.Context) (string, error) {
	if m.Connected() {
		if err := m.LeaveSession(ctx); err != nil {
			return "", err
		}
	}

	sessionID := NewSessionID()
	keys := store.KeysFor(sessionID)

	m.mu.Lock()
	m.sessionID = sessionID
	m.isHost = true
	m.connected = true
	m.pushWarn = &sync.Once{}
	b, t, r := m.boardSync, m.timerCo, m.revealCo
	m.mu.Unlock()

	t.Attach(m.st, keys.Timer())
	r.Attach(m.st, keys.Reveal())

	if err := m.pushBoard(ctx, b.Board()); err != nil {
		m.detach()
		return "", err
	}
	if err := r.Seed(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("seed reveal record")
	}

	if err := m.subscribe(ctx, keys); err != nil {
		m.detach()
		return "", err
	}
	if err := m.joinPresence(ctx, keys); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("presence join")
	}

	log.Info().Str("session_id", sessionID).Str("user_id", m.UserID()).Msg("session created")
	return sessionID, nil
}

// JoinSession connects to an existing session as a participant and pulls
// the current board, timer, and reveal state once before relying on the
// watch stream.
func (m *Manager) JoinSession(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return apperrors.Validationf("session code cannot be empty")
	}
	if m.Connected() {
		if err := m.LeaveSession(ctx); err != nil {
			return err
		}
	}

	keys := store.KeysFor(code)
	raw, err := m.st.Get(ctx, keys.Data())
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return apperrors.NotFoundf("session %s not found", code)
		}
		return err
	}

	m.mu.Lock()
	m.sessionID = code
	m.isHost = false
	m.connected = true
	m.pushWarn = &sync.Once{}
	b, t, r := m.boardSync, m.timerCo, m.revealCo
	m.mu.Unlock()

	t.Attach(m.st, keys.Timer())
	r.Attach(m.st, keys.Reveal())

	if err := m.subscribe(ctx, keys); err != nil {
		m.detach()
		return err
	}

	// One-shot snapshot pulls. The watch stream only carries subsequent
	// changes, so current state must be read explicitly.
	if env, err := models.DecodeBoardEnvelope(raw); err != nil {
		log.Warn().Err(err).Str("session_id", code).Msg("malformed board document")
	} else {
		b.ApplyRemoteSnapshot(env.RetroData)
	}
	if raw, err := m.st.Get(ctx, keys.Timer()); err == nil {
		if rec, err := models.DecodeTimerRecord(raw); err == nil {
			t.ApplyRecord(rec)
		}
	}
	if raw, err := m.st.Get(ctx, keys.Reveal()); err == nil {
		if rec, err := models.DecodeRevealRecord(raw); err == nil {
			r.ApplyRecord(rec)
		}
	}

	if err := m.joinPresence(ctx, keys); err != nil {
		log.Warn().Err(err).Str("session_id", code).Msg("presence join")
	}

	log.Info().Str("session_id", code).Str("user_id", m.UserID()).Msg("session joined")
	return nil
}

// TeardownSession deletes the whole session subtree, disconnecting every
// participant. Host only. The local board survives.
func (m *Manager) TeardownSession(ctx context.Context) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return apperrors.Validationf("not in a session")
	}
	if !m.isHost {
		m.mu.Unlock()
		return apperrors.Forbiddenf("only the session host can end the session")
	}
	sessionID := m.sessionID
	m.mu.Unlock()

	// Detach before deleting so the deletion events of our own teardown
	// do not come back as a session-ended signal.
	m.detach()

	if err := m.st.DeleteTree(ctx, store.KeysFor(sessionID).Root()); err != nil {
		return err
	}
	log.Info().Str("session_id", sessionID).Msg("session ended")
	return nil
}

// LeaveSession disconnects from the session without affecting other
// participants. The local board survives.
func (m *Manager) LeaveSession(ctx context.Context) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	sessionID := m.sessionID
	p := m.presence
	m.mu.Unlock()

	if p != nil {
		p.Leave(ctx)
	}
	m.detach()
	log.Info().Str("session_id", sessionID).Msg("session left")
	return nil
}

// BoardChanged implements board.Observer: local changes push the whole
// document to the store, remote snapshots never echo back.
func (m *Manager) BoardChanged(b models.Board, origin board.Origin) {
	if origin != board.OriginLocal {
		return
	}
	if !m.Connected() {
		return
	}
	if err := m.pushBoard(context.Background(), b); err != nil {
		m.mu.Lock()
		once := m.pushWarn
		m.mu.Unlock()
		once.Do(func() {
			log.Warn().Err(err).Msg("board sync unavailable, continuing locally")
		})
	}
}

func (m *Manager) pushBoard(ctx context.Context, b models.Board) error {
	m.mu.Lock()
	sessionID := m.sessionID
	m.mu.Unlock()

	env := models.BoardEnvelope{
		RetroData:   b,
		LastUpdated: m.st.ServerNow().UnixMilli(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return m.st.Put(ctx, store.KeysFor(sessionID).Data(), payload)
}

func (m *Manager) subscribe(ctx context.Context, keys store.SessionKeys) error {
	dataSub, err := m.st.Watch(ctx, keys.Data(), m.onDataEvent)
	if err != nil {
		return err
	}
	timerSub, err := m.st.Watch(ctx, keys.Timer(), m.onTimerEvent)
	if err != nil {
		dataSub.Unsubscribe()
		return err
	}
	revealSub, err := m.st.Watch(ctx, keys.Reveal(), m.onRevealEvent)
	if err != nil {
		dataSub.Unsubscribe()
		timerSub.Unsubscribe()
		return err
	}

	m.mu.Lock()
	m.subs = []store.Subscription{dataSub, timerSub, revealSub}
	m.mu.Unlock()
	return nil
}

func (m *Manager) joinPresence(ctx context.Context, keys store.SessionKeys) error {
	m.mu.Lock()
	onCount := m.hooks.OnPresence
	p := newPresenceTracker(m.st, keys, m.userID, onCount)
	m.presence = p
	m.mu.Unlock()
	return p.Join(ctx)
}

// onDataEvent handles changes to the session's board document. Deletion
// means the host ended the session.
func (m *Manager) onDataEvent(ev store.Event) {
	if ev.Deleted {
		m.handleSessionEnded()
		return
	}
	env, err := models.DecodeBoardEnvelope(ev.Value)
	if err != nil {
		log.Warn().Err(err).Msg("malformed board document")
		return
	}
	m.mu.Lock()
	b := m.boardSync
	m.mu.Unlock()
	b.ApplyRemoteSnapshot(env.RetroData)
}

func (m *Manager) onTimerEvent(ev store.Event) {
	m.mu.Lock()
	t := m.timerCo
	m.mu.Unlock()
	if ev.Deleted {
		t.ResetLocal()
		return
	}
	rec, err := models.DecodeTimerRecord(ev.Value)
	if err != nil {
		log.Warn().Err(err).Msg("malformed timer document")
		return
	}
	t.ApplyRecord(rec)
}

func (m *Manager) onRevealEvent(ev store.Event) {
	m.mu.Lock()
	r := m.revealCo
	m.mu.Unlock()
	if ev.Deleted {
		r.ResetLocal()
		return
	}
	rec, err := models.DecodeRevealRecord(ev.Value)
	if err != nil {
		log.Warn().Err(err).Msg("malformed reveal document")
		return
	}
	r.ApplyRecord(rec)
}

// handleSessionEnded runs on a participant when the session subtree is
// deleted. Board content stays; timer and reveal drop back to defaults.
func (m *Manager) handleSessionEnded() {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return
	}
	sessionID := m.sessionID
	hook := m.hooks.OnSessionEnded
	m.mu.Unlock()

	m.detach()
	log.Info().Str("session_id", sessionID).Msg("session ended by host")
	if hook != nil {
		hook()
	}
}

// detach tears down all session plumbing and returns the manager to
// the disconnected state. Unsubscribing is synchronous, so no stale watch
// callback can arrive afterwards.
func (m *Manager) detach() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	p := m.presence
	m.presence = nil
	t, r := m.timerCo, m.revealCo
	m.sessionID = ""
	m.isHost = false
	m.connected = false
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if p != nil {
		p.Stop()
	}
	if t != nil {
		t.ResetLocal()
		t.Detach()
	}
	if r != nil {
		r.ResetLocal()
		r.Detach()
	}
}


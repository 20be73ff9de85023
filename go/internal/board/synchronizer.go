// Package board owns the shared retrospective document: local mutations,
// remote snapshot application, and fan-out to an ordered observer list.
package board

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dhanucoding/retro-app/go/internal/apperrors"
	"github.com/dhanucoding/retro-app/go/internal/models"
	"github.com/dhanucoding/retro-app/go/internal/permission"
)

// Identity supplies the local user's view of the session, used to stamp
// authorship onto new items and to feed the permission gate.
type Identity interface {
	UserID() string
	SessionID() string
	Connected() bool
	IsHost() bool
}

// Origin says where a board change came from.
type Origin int

const (
	// OriginLocal marks a change made by a local command. Observers that
	// push to the replicated store act only on these.
	OriginLocal Origin = iota
	// OriginRemote marks a snapshot received from the store. Pushing it
	// back would echo forever.
	OriginRemote
)

// Observer is notified after every successful board change, in
// registration order. The durable cache observer registers first so the
// local save happens before any best-effort remote push.
type Observer interface {
	BoardChanged(b models.Board, origin Origin)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(b models.Board, origin Origin)

func (f ObserverFunc) BoardChanged(b models.Board, origin Origin) { f(b, origin) }

// Synchronizer holds the local board and applies mutations against it.
type Synchronizer struct {
	mu        sync.Mutex
	board     models.Board
	identity  Identity
	observers []Observer
	clock     clockwork.Clock
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock substitutes the clock used for item timestamps and IDs.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Synchronizer) { s.clock = clock }
}

// NewSynchronizer returns a synchronizer over an empty board.
func NewSynchronizer(identity Identity, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		board:    models.NewBoard(),
		identity: identity,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddObserver appends an observer. Observers run in registration order on
// the goroutine that performed the mutation.
func (s *Synchronizer) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Board returns a deep copy of the current board.
func (s *Synchronizer) Board() models.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Clone()
}

// AddItem appends a new item to a category, stamped with the local user as
// author. Empty text after trimming is a validation error.
func (s *Synchronizer) AddItem(category models.Category, text string) (models.Item, error) {
	if !category.Valid() {
		return models.Item{}, apperrors.Validationf("unknown category %q", category)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Item{}, apperrors.Validationf("item text cannot be empty")
	}

	s.mu.Lock()
	now := s.clock.Now()
	item := models.Item{
		ID:        newItemID(now),
		Text:      text,
		CreatedAt: now.Format("2006-01-02 15:04:05"),
		Author: &models.Author{
			UserID:    s.identity.UserID(),
			SessionID: s.identity.SessionID(),
			IsHost:    s.identity.IsHost(),
		},
	}
	s.board.Items[category] = append(s.board.Items[category], item)
	snapshot := s.board.Clone()
	s.mu.Unlock()

	s.notify(snapshot, OriginLocal)
	return item, nil
}

// EditItem replaces an item's text after re-checking the permission gate.
func (s *Synchronizer) EditItem(category models.Category, itemID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.Validationf("item text cannot be empty")
	}

	s.mu.Lock()
	idx, err := s.findLocked(category, itemID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	item := s.board.Items[category][idx]
	if !permission.CanEditItem(item, s.identity.UserID(), s.identity.Connected(), s.identity.IsHost()) {
		s.mu.Unlock()
		return apperrors.Forbiddenf("item %s belongs to another participant", itemID)
	}
	s.board.Items[category][idx].Text = text
	snapshot := s.board.Clone()
	s.mu.Unlock()

	s.notify(snapshot, OriginLocal)
	return nil
}

// DeleteItem removes an item after re-checking the permission gate.
func (s *Synchronizer) DeleteItem(category models.Category, itemID string) error {
	s.mu.Lock()
	idx, err := s.findLocked(category, itemID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	item := s.board.Items[category][idx]
	if !permission.CanEditItem(item, s.identity.UserID(), s.identity.Connected(), s.identity.IsHost()) {
		s.mu.Unlock()
		return apperrors.Forbiddenf("item %s belongs to another participant", itemID)
	}
	items := s.board.Items[category]
	s.board.Items[category] = append(items[:idx], items[idx+1:]...)
	snapshot := s.board.Clone()
	s.mu.Unlock()

	s.notify(snapshot, OriginLocal)
	return nil
}

// VoteItem increments an item's vote count. Anyone may vote.
func (s *Synchronizer) VoteItem(category models.Category, itemID string) error {
	s.mu.Lock()
	idx, err := s.findLocked(category, itemID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.board.Items[category][idx].Votes++
	snapshot := s.board.Clone()
	s.mu.Unlock()

	s.notify(snapshot, OriginLocal)
	return nil
}

// AddTeamMember appends a member name. Names are case-sensitive and must
// be unique.
func (s *Synchronizer) AddTeamMember(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.Validationf("team member name cannot be empty")
	}

	s.mu.Lock()
	for _, existing := range s.board.TeamMembers {
		if existing == name {
			s.mu.Unlock()
			return apperrors.Validationf("team member %q already exists", name)
		}
	}
	s.board.TeamMembers = append(s.board.TeamMembers, name)
	snapshot := s.board.Clone()
	s.mu.Unlock()

	s.notify(snapshot, OriginLocal)
	return nil
}

// RemoveTeamMember drops a member by exact name.
func (s *Synchronizer) RemoveTeamMember(name string) error {
	s.mu.Lock()
	found := false
	members := s.board.TeamMembers[:0]
	for _, existing := range s.board.TeamMembers {
		if existing == name {
			found = true
			continue
		}
		members = append(members, existing)
	}
	if !found {
		s.mu.Unlock()
		return apperrors.NotFoundf("team member %q not found", name)
	}
	s.board.TeamMembers = members
	snapshot := s.board.Clone()
	s.mu.Unlock()

	s.notify(snapshot, OriginLocal)
	return nil
}

// SetSprintMeta updates the sprint name and date.
func (s *Synchronizer) SetSprintMeta(name, date string) {
	s.mu.Lock()
	s.board.SprintName = name
	s.board.SprintDate = date
	snapshot := s.board.Clone()
	s.mu.Unlock()

	s.notify(snapshot, OriginLocal)
}

// ApplyRemoteSnapshot replaces the local board wholesale with a snapshot
// from the store: last writer wins at document granularity. Concurrent
// edits racing within one push/receive cycle can be lost; that is the
// accepted merge policy, not a defect.
func (s *Synchronizer) ApplyRemoteSnapshot(remote models.Board) {
	remote.Normalize()
	s.mu.Lock()
	s.board = remote.Clone()
	snapshot := s.board.Clone()
	s.mu.Unlock()

	s.notify(snapshot, OriginRemote)
}

// Reset clears the board back to empty and notifies observers.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.board = models.NewBoard()
	snapshot := s.board.Clone()
	s.mu.Unlock()

	s.notify(snapshot, OriginLocal)
}

// Restore loads a board without notifying observers, for startup restore
// from the durable cache.
func (s *Synchronizer) Restore(b models.Board) {
	b.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board = b.Clone()
}

func (s *Synchronizer) findLocked(category models.Category, itemID string) (int, error) {
	if !category.Valid() {
		return 0, apperrors.Validationf("unknown category %q", category)
	}
	for i, item := range s.board.Items[category] {
		if item.ID == itemID {
			return i, nil
		}
	}
	return 0, apperrors.NotFoundf("item %s not found in %s", itemID, category)
}

func (s *Synchronizer) notify(b models.Board, origin Origin) {
	s.mu.Lock()
	observers := append([]Observer{}, s.observers...)
	s.mu.Unlock()
	for _, o := range observers {
		o.BoardChanged(b, origin)
	}
}

// newItemID builds a generation-ordered opaque ID: base-36 milliseconds
// followed by a random suffix, unique and sortable by creation time.
func newItemID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return strconv.FormatInt(now.UnixMilli(), 36) + suffix
}

package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dhanucoding/retro-app/go/internal/models"
	"github.com/dhanucoding/retro-app/go/internal/store"
)

// presenceTracker maintains the local user's presence record and a live
// count of everyone else's. Presence keys are registered as ephemeral so
// the store removes them when this client drops without a clean leave.
type presenceTracker struct {
	mu     sync.Mutex
	st     store.Store
	keys   store.SessionKeys
	userID string
	users  map[string]bool
	sub    store.Subscription
	left   bool

	onCount func(count int)
}

func newPresenceTracker(st store.Store, keys store.SessionKeys, userID string, onCount func(int)) *presenceTracker {
	return &presenceTracker{
		st:      st,
		keys:    keys,
		userID:  userID,
		users:   make(map[string]bool),
		onCount: onCount,
	}
}

// Join announces the local user and starts watching the users subtree. The
// watch starts before the initial listing so that no arrival can fall into
// the gap; the map deduplicates any overlap.
func (p *presenceTracker) Join(ctx context.Context) error {
	rec := models.PresenceRecord{
		ID:        p.userID,
		Timestamp: p.st.ServerNow().UnixMilli(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	sub, err := p.st.Watch(ctx, p.keys.UsersPattern(), p.onEvent)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()

	key := p.keys.User(p.userID)
	if err := p.st.Put(ctx, key, payload); err != nil {
		p.Stop()
		return err
	}
	p.st.RegisterEphemeral(key)

	existing, err := p.st.List(ctx, p.keys.UsersPrefix())
	if err != nil {
		log.Warn().Err(err).Msg("list session participants")
		existing = nil
	}

	p.mu.Lock()
	for key := range existing {
		if id := p.keys.UserFromKey(key); id != "" {
			p.users[id] = true
		}
	}
	p.users[p.userID] = true
	count := len(p.users)
	onCount := p.onCount
	p.mu.Unlock()

	if onCount != nil {
		onCount(count)
	}
	return nil
}

// Leave removes the local presence record. Idempotent.
func (p *presenceTracker) Leave(ctx context.Context) {
	p.mu.Lock()
	if p.left {
		p.mu.Unlock()
		return
	}
	p.left = true
	p.mu.Unlock()

	if err := p.st.Delete(ctx, p.keys.User(p.userID)); err != nil {
		log.Warn().Err(err).Msg("remove presence record")
	}
	p.Stop()
}

// Stop detaches the watch without touching the store. Idempotent.
func (p *presenceTracker) Stop() {
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// Count returns the number of participants currently present.
func (p *presenceTracker) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users)
}

func (p *presenceTracker) onEvent(ev store.Event) {
	id := p.keys.UserFromKey(ev.Key)
	if id == "" {
		return
	}

	p.mu.Lock()
	before := len(p.users)
	if ev.Deleted {
		delete(p.users, id)
	} else {
		p.users[id] = true
	}
	count := len(p.users)
	onCount := p.onCount
	p.mu.Unlock()

	if count != before && onCount != nil {
		onCount(count)
	}
}
